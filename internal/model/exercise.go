package model

import "github.com/shopspring/decimal"

// Exercise types
const (
	ExerciseSingleChoice = "single_choice"
	ExerciseMultiChoice  = "multi_choice"
	ExerciseOpenAnswer   = "open_answer"
	ExerciseCompletion   = "completion"
	ExerciseAggregated   = "aggregated"
	ExerciseCode         = "code"
	ExerciseAttachment   = "attachment"
)

// Exercise states
const (
	ExerciseStateDraft   = "draft"
	ExerciseStatePrivate = "private"
	ExerciseStatePublic  = "public"
)

type Exercise struct {
	BaseModel
	CourseID      uint            `gorm:"index;type:bigint unsigned" json:"courseId"`
	ParentID      *uint           `gorm:"index;type:bigint unsigned" json:"parentId,omitempty"`
	ChildPosition *int            `json:"childPosition,omitempty"` // 同一父题下唯一
	ExerciseType  string          `gorm:"size:50;not null" json:"exerciseType"`
	Label         string          `gorm:"size:75" json:"label"`
	Text          string          `gorm:"type:text" json:"text"` // Stem
	Solution      string          `gorm:"type:text" json:"solution"`
	State         string          `gorm:"size:20;default:'public'" json:"state"`
	MaxScore      decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"maxScore"`
	ChildWeight   int             `gorm:"default:100" json:"childWeight"` // 百分比，仅子题有意义

	Tags         []Tag              `gorm:"many2many:exercise_tags" json:"tags,omitempty"`
	Choices      []ExerciseChoice   `gorm:"foreignKey:ExerciseID" json:"choices,omitempty"`
	TestCases    []ExerciseTestCase `gorm:"foreignKey:ExerciseID" json:"testcases,omitempty"`
	SubExercises []Exercise         `gorm:"foreignKey:ParentID" json:"subExercises,omitempty"`
}

func (Exercise) TableName() string {
	return "exercises"
}

// IsBase reports whether the exercise is a base exercise (not a sub-exercise).
func (e *Exercise) IsBase() bool {
	return e.ParentID == nil
}

// IsComposite reports whether correctness derives from weighted sub-exercises.
func (e *Exercise) IsComposite() bool {
	return e.ExerciseType == ExerciseCompletion || e.ExerciseType == ExerciseAggregated
}

// CanHaveChoices reports whether the type owns choices directly.
func (e *Exercise) CanHaveChoices() bool {
	return e.ExerciseType == ExerciseSingleChoice || e.ExerciseType == ExerciseMultiChoice
}

// CanHaveTestCases reports whether the type owns test cases.
func (e *Exercise) CanHaveTestCases() bool {
	return e.ExerciseType == ExerciseCode
}

type ExerciseChoice struct {
	BaseModel
	ExerciseID uint   `gorm:"index;type:bigint unsigned" json:"exerciseId"`
	Text       string `gorm:"type:text" json:"text"`
	// 正确度百分比，可为负（选中扣分）
	CorrectnessPercentage decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"correctnessPercentage"`
}

func (ExerciseChoice) TableName() string {
	return "exercise_choices"
}

// Test case visibility
const (
	TestCaseShowCodeShowText = "show_code_show_text"
	TestCaseShowTextOnly     = "show_text_only"
	TestCaseHidden           = "hidden"
)

type ExerciseTestCase struct {
	BaseModel
	ExerciseID   uint   `gorm:"index;type:bigint unsigned" json:"exerciseId"`
	Code         string `gorm:"type:text;not null" json:"code"` // assertion
	Text         string `gorm:"type:text" json:"text"`
	TestCaseType string `gorm:"size:30;default:'show_code_show_text'" json:"testcaseType"`
}

func (ExerciseTestCase) TableName() string {
	return "exercise_testcases"
}
