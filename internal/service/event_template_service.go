package service

import (
	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type EventTemplateService struct {
	Repo *repository.EventRepository
}

func NewEventTemplateService(repo *repository.EventRepository) *EventTemplateService {
	return &EventTemplateService{Repo: repo}
}

type TemplateRuleRequest struct {
	RuleType string           `json:"ruleType"`
	MaxScore *decimal.Decimal `json:"maxScore,omitempty"`
	// id_based 规则的显式题目引用
	ExerciseIDs []uint `json:"exerciseIds"`
	// tag_based 规则的子句：子句内标签取与，子句间取或
	TagClauses [][]uint `json:"tagClauses"`
}

// CreateTemplate creates a template and its rules, assigning target slot
// numbers in request order. ID-based rules cannot carry tag clauses and
// tag-based rules cannot reference explicit exercises.
func (s *EventTemplateService) CreateTemplate(courseID uint, name string, creatorID *uint, rules []TemplateRuleRequest) (*model.EventTemplate, error) {
	for _, r := range rules {
		switch r.RuleType {
		case model.RuleIDBased:
			if len(r.TagClauses) > 0 {
				return nil, util.NewValidationError("id_based 规则不能携带标签子句")
			}
			if len(r.ExerciseIDs) == 0 {
				return nil, util.NewValidationError("id_based 规则必须引用至少一道题目")
			}
		case model.RuleTagBased:
			if len(r.ExerciseIDs) > 0 {
				return nil, util.NewValidationError("tag_based 规则不能引用具体题目")
			}
			if len(r.TagClauses) == 0 {
				return nil, util.NewValidationError("tag_based 规则必须至少有一个标签子句")
			}
		case model.RuleFullyRandom:
			if len(r.ExerciseIDs) > 0 || len(r.TagClauses) > 0 {
				return nil, util.NewValidationError("fully_random 规则不能携带题目引用或标签子句")
			}
		default:
			return nil, util.NewValidationError("未知的规则类型 %q", r.RuleType)
		}
	}

	template := model.EventTemplate{
		CourseID:  courseID,
		Name:      name,
		CreatorID: creatorID,
	}

	err := s.Repo.CreateTemplateWithTx(func(tx *gorm.DB) error {
		if err := tx.Create(&template).Error; err != nil {
			return err
		}
		for i, r := range rules {
			rule := model.EventTemplateRule{
				TemplateID:       template.ID,
				RuleType:         r.RuleType,
				TargetSlotNumber: i,
				MaxScore:         r.MaxScore,
			}
			if err := tx.Create(&rule).Error; err != nil {
				return err
			}

			if len(r.ExerciseIDs) > 0 {
				var exercises []model.Exercise
				if err := tx.Find(&exercises, r.ExerciseIDs).Error; err != nil {
					return err
				}
				for _, e := range exercises {
					if !e.IsBase() {
						return util.NewValidationError("规则不能引用子题（题目 %d）", e.ID)
					}
				}
				if err := tx.Model(&rule).Association("Exercises").Replace(exercises); err != nil {
					return err
				}
			}

			for _, tagIDs := range r.TagClauses {
				clause := model.EventTemplateRuleClause{RuleID: rule.ID}
				if err := tx.Create(&clause).Error; err != nil {
					return err
				}
				var tags []model.Tag
				if err := tx.Find(&tags, tagIDs).Error; err != nil {
					return err
				}
				if err := tx.Model(&clause).Association("Tags").Replace(tags); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Repo.FindTemplateWithRules(template.ID)
}
