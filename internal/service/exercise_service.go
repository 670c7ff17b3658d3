package service

import (
	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExerciseService owns the catalog authoring path. The rest of the engine
// only ever reads the catalog.
type ExerciseService struct {
	Repo *repository.ExerciseRepository
}

func NewExerciseService(repo *repository.ExerciseRepository) *ExerciseService {
	return &ExerciseService{Repo: repo}
}

type ExerciseChoiceRequest struct {
	Text                  string          `json:"text"`
	CorrectnessPercentage decimal.Decimal `json:"correctnessPercentage"`
}

type ExerciseTestCaseRequest struct {
	Code         string `json:"code"`
	Text         string `json:"text"`
	TestCaseType string `json:"testcaseType"`
}

type ExerciseRequest struct {
	CourseID     uint            `json:"courseId"`
	ExerciseType string          `json:"exerciseType"`
	Label        string          `json:"label"`
	Text         string          `json:"text"`
	Solution     string          `json:"solution"`
	State        string          `json:"state"`
	MaxScore     decimal.Decimal `json:"maxScore"`
	ChildWeight  int             `json:"childWeight"`
	TagIDs       []uint          `json:"tagIds"`

	Choices []ExerciseChoiceRequest `json:"choices"`
	// 完形题：每组选项展开为一个单选子题
	ChoiceGroups [][]ExerciseChoiceRequest `json:"choiceGroups"`
	TestCases    []ExerciseTestCaseRequest `json:"testcases"`
	// 聚合题的子题
	SubExercises []ExerciseRequest `json:"subExercises"`
}

// CreateExercise creates an exercise and the related entities its type calls
// for, enforcing the type-dependent construction invariants: only choice
// types own choices, only code exercises own test cases, only composite
// types own sub-exercises.
func (s *ExerciseService) CreateExercise(req ExerciseRequest) (*model.Exercise, error) {
	if err := validateExerciseRequest(&req); err != nil {
		return nil, err
	}

	var created *model.Exercise
	err := s.Repo.CreateWithTx(func(tx *gorm.DB) error {
		e, err := createExerciseTx(tx, &req, nil, nil)
		if err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddSubExercise appends a sub-exercise to an existing aggregated exercise,
// taking the next free child position.
func (s *ExerciseService) AddSubExercise(parentID uint, req ExerciseRequest) (*model.Exercise, error) {
	parent, err := s.Repo.FindByID(parentID)
	if err != nil {
		return nil, err
	}
	if parent.ExerciseType != model.ExerciseAggregated {
		return nil, util.NewValidationError("只有聚合题可以追加子题")
	}
	if err := validateExerciseRequest(&req); err != nil {
		return nil, err
	}
	pos, err := s.Repo.NextChildPosition(parentID)
	if err != nil {
		return nil, err
	}
	req.CourseID = parent.CourseID

	var created *model.Exercise
	err = s.Repo.CreateWithTx(func(tx *gorm.DB) error {
		e, err := createExerciseTx(tx, &req, &parentID, &pos)
		if err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func validateExerciseRequest(req *ExerciseRequest) error {
	switch req.ExerciseType {
	case model.ExerciseSingleChoice, model.ExerciseMultiChoice,
		model.ExerciseOpenAnswer, model.ExerciseCompletion,
		model.ExerciseAggregated, model.ExerciseCode, model.ExerciseAttachment:
	default:
		return util.NewValidationError("未知的题目类型 %q", req.ExerciseType)
	}

	if len(req.TestCases) > 0 && req.ExerciseType != model.ExerciseCode {
		return util.NewValidationError("非编程题不能有测试用例")
	}
	if len(req.Choices) > 0 &&
		req.ExerciseType != model.ExerciseSingleChoice &&
		req.ExerciseType != model.ExerciseMultiChoice {
		return util.NewValidationError("开放题、附件题、完形题、聚合题和编程题不能直接拥有选项")
	}
	if len(req.ChoiceGroups) > 0 && req.ExerciseType != model.ExerciseCompletion {
		return util.NewValidationError("只有完形题可以使用选项组")
	}
	if len(req.SubExercises) > 0 && req.ExerciseType != model.ExerciseAggregated {
		return util.NewValidationError("只有聚合题可以直接添加子题")
	}

	for i := range req.SubExercises {
		if err := validateExerciseRequest(&req.SubExercises[i]); err != nil {
			return err
		}
	}
	return nil
}

func createExerciseTx(tx *gorm.DB, req *ExerciseRequest, parentID *uint, position *int) (*model.Exercise, error) {
	state := req.State
	if state == "" {
		state = model.ExerciseStatePublic
	}
	childWeight := req.ChildWeight
	if childWeight == 0 {
		childWeight = 100
	}

	e := model.Exercise{
		CourseID:      req.CourseID,
		ParentID:      parentID,
		ChildPosition: position,
		ExerciseType:  req.ExerciseType,
		Label:         req.Label,
		Text:          req.Text,
		Solution:      req.Solution,
		State:         state,
		MaxScore:      req.MaxScore,
		ChildWeight:   childWeight,
	}
	if err := tx.Create(&e).Error; err != nil {
		return nil, err
	}

	if len(req.TagIDs) > 0 {
		var tags []model.Tag
		if err := tx.Find(&tags, req.TagIDs).Error; err != nil {
			return nil, err
		}
		if err := tx.Model(&e).Association("Tags").Replace(tags); err != nil {
			return nil, err
		}
	}

	for _, c := range req.Choices {
		choice := model.ExerciseChoice{
			ExerciseID:            e.ID,
			Text:                  c.Text,
			CorrectnessPercentage: c.CorrectnessPercentage,
		}
		if err := tx.Create(&choice).Error; err != nil {
			return nil, err
		}
	}

	for _, t := range req.TestCases {
		tcType := t.TestCaseType
		if tcType == "" {
			tcType = model.TestCaseShowCodeShowText
		}
		testcase := model.ExerciseTestCase{
			ExerciseID:   e.ID,
			Code:         t.Code,
			Text:         t.Text,
			TestCaseType: tcType,
		}
		if err := tx.Create(&testcase).Error; err != nil {
			return nil, err
		}
	}

	// 完形题：每组选项生成一个无题干的单选子题
	for i, group := range req.ChoiceGroups {
		pos := i
		sub := ExerciseRequest{
			CourseID:     req.CourseID,
			ExerciseType: model.ExerciseSingleChoice,
			State:        state,
			Choices:      group,
		}
		if _, err := createExerciseTx(tx, &sub, &e.ID, &pos); err != nil {
			return nil, err
		}
	}

	for i := range req.SubExercises {
		pos := i
		if _, err := createExerciseTx(tx, &req.SubExercises[i], &e.ID, &pos); err != nil {
			return nil, err
		}
	}

	return &e, nil
}
