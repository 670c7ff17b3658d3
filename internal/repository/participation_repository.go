package repository

import (
	"encoding/json"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ParticipationRepository struct {
	DB *gorm.DB
}

func NewParticipationRepository(db *gorm.DB) *ParticipationRepository {
	return &ParticipationRepository{DB: db}
}

// CreateWithTrees persists a participation together with its submission and
// assessment slot trees, cloned positionally from the instance slots. The
// whole write is one transaction so a participation is never visible with a
// partial tree.
func (r *ParticipationRepository) CreateWithTrees(p *model.EventParticipation, instanceSlots []model.EventInstanceSlot) error {
	childrenOf := make(map[uint][]model.EventInstanceSlot)
	var baseSlots []model.EventInstanceSlot
	for _, s := range instanceSlots {
		if s.ParentID == nil {
			baseSlots = append(baseSlots, s)
		} else {
			childrenOf[*s.ParentID] = append(childrenOf[*s.ParentID], s)
		}
	}

	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}

		submission := model.ParticipationSubmission{ParticipationID: p.ID}
		if err := tx.Create(&submission).Error; err != nil {
			return err
		}
		assessment := model.ParticipationAssessment{ParticipationID: p.ID}
		if err := tx.Create(&assessment).Error; err != nil {
			return err
		}

		for _, base := range baseSlots {
			if err := cloneSubmissionSlots(tx, submission.ID, nil, base, childrenOf); err != nil {
				return err
			}
			if err := cloneAssessmentSlots(tx, assessment.ID, nil, base, childrenOf); err != nil {
				return err
			}
		}

		p.Submission = &submission
		p.Assessment = &assessment
		return nil
	})
}

func cloneSubmissionSlots(tx *gorm.DB, submissionID uint, parentID *uint, from model.EventInstanceSlot, childrenOf map[uint][]model.EventInstanceSlot) error {
	slot := model.ParticipationSubmissionSlot{
		SubmissionID: submissionID,
		ParentID:     parentID,
		SlotNumber:   from.SlotNumber,
	}
	if err := tx.Create(&slot).Error; err != nil {
		return err
	}
	for _, child := range childrenOf[from.ID] {
		if err := cloneSubmissionSlots(tx, submissionID, &slot.ID, child, childrenOf); err != nil {
			return err
		}
	}
	return nil
}

func cloneAssessmentSlots(tx *gorm.DB, assessmentID uint, parentID *uint, from model.EventInstanceSlot, childrenOf map[uint][]model.EventInstanceSlot) error {
	slot := model.ParticipationAssessmentSlot{
		AssessmentID: assessmentID,
		ParentID:     parentID,
		SlotNumber:   from.SlotNumber,
	}
	if err := tx.Create(&slot).Error; err != nil {
		return err
	}
	for _, child := range childrenOf[from.ID] {
		if err := cloneAssessmentSlots(tx, assessmentID, &slot.ID, child, childrenOf); err != nil {
			return err
		}
	}
	return nil
}

func (r *ParticipationRepository) FindByID(id uint) (*model.EventParticipation, error) {
	var p model.EventParticipation
	err := r.DB.
		Preload("EventInstance").
		Preload("EventInstance.Event").
		Preload("Submission").
		Preload("Assessment").
		First(&p, id).Error
	return &p, err
}

func (r *ParticipationRepository) FindBySubmissionID(submissionID uint) (*model.EventParticipation, error) {
	var s model.ParticipationSubmission
	if err := r.DB.First(&s, submissionID).Error; err != nil {
		return nil, err
	}
	return r.FindByID(s.ParticipationID)
}

func (r *ParticipationRepository) FindByAssessmentID(assessmentID uint) (*model.EventParticipation, error) {
	var a model.ParticipationAssessment
	if err := r.DB.First(&a, assessmentID).Error; err != nil {
		return nil, err
	}
	return r.FindByID(a.ParticipationID)
}

func (r *ParticipationRepository) FindSubmissionSlot(slotID uint) (*model.ParticipationSubmissionSlot, error) {
	var slot model.ParticipationSubmissionSlot
	err := r.DB.Preload("SelectedChoices").First(&slot, slotID).Error
	return &slot, err
}

func (r *ParticipationRepository) FindAssessmentSlot(slotID uint) (*model.ParticipationAssessmentSlot, error) {
	var slot model.ParticipationAssessmentSlot
	err := r.DB.First(&slot, slotID).Error
	return &slot, err
}

func (r *ParticipationRepository) SlotsOfSubmission(submissionID uint) ([]model.ParticipationSubmissionSlot, error) {
	var slots []model.ParticipationSubmissionSlot
	err := r.DB.Preload("SelectedChoices").
		Where("submission_id = ?", submissionID).
		Order("parent_id asc, slot_number asc").
		Find(&slots).Error
	return slots, err
}

func (r *ParticipationRepository) SlotsOfAssessment(assessmentID uint) ([]model.ParticipationAssessmentSlot, error) {
	var slots []model.ParticipationAssessmentSlot
	err := r.DB.
		Where("assessment_id = ?", assessmentID).
		Order("parent_id asc, slot_number asc").
		Find(&slots).Error
	return slots, err
}

// UpdateAnswer saves the answer fields of a submission slot and replaces its
// selected choices in one transaction.
func (r *ParticipationRepository) UpdateAnswer(slot *model.ParticipationSubmissionSlot, choices []model.ExerciseChoice) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(slot).Select("answer_text", "attachment", "answered_at").
			Updates(map[string]interface{}{
				"answer_text": slot.AnswerText,
				"attachment":  slot.Attachment,
				"answered_at": slot.AnsweredAt,
			}).Error; err != nil {
			return err
		}
		return tx.Model(slot).Association("SelectedChoices").Replace(choices)
	})
}

func (r *ParticipationRepository) MarkSeen(slotID uint, at time.Time) error {
	return r.DB.Model(&model.ParticipationSubmissionSlot{}).
		Where("id = ? AND seen_at IS NULL", slotID).
		Update("seen_at", at).Error
}

// TurnIn is a guarded check-then-set: the transition succeeds only while the
// participation is still in progress, so a late double turn-in is rejected
// without touching state.
func (r *ParticipationRepository) TurnIn(participationID uint, at time.Time) error {
	res := r.DB.Model(&model.EventParticipation{}).
		Where("id = ? AND state = ?", participationID, model.ParticipationInProgress).
		Updates(map[string]interface{}{
			"state":         model.ParticipationTurnedIn,
			"end_timestamp": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrAlreadyTurnedIn
	}
	return nil
}

func (r *ParticipationRepository) UpdateCursor(participationID uint, slotNumber int) error {
	return r.DB.Model(&model.EventParticipation{}).
		Where("id = ?", participationID).
		Update("current_slot_number", slotNumber).Error
}

func (r *ParticipationRepository) SetExecutionState(slotID uint, state string) error {
	return r.DB.Model(&model.ParticipationSubmissionSlot{}).
		Where("id = ?", slotID).
		Update("execution_state", state).Error
}

// WriteExecutionResults records a run's raw payload and closes the transient
// running state. Field-level last write wins on concurrent runs.
func (r *ParticipationRepository) WriteExecutionResults(slotID uint, payload json.RawMessage) error {
	return r.DB.Model(&model.ParticipationSubmissionSlot{}).
		Where("id = ?", slotID).
		Updates(map[string]interface{}{
			"execution_results": payload,
			"execution_state":   model.ExecutionStateDone,
		}).Error
}

func (r *ParticipationRepository) SetAssessmentSlotScore(slotID uint, score *decimal.Decimal) error {
	return r.DB.Model(&model.ParticipationAssessmentSlot{}).
		Where("id = ?", slotID).
		Update("score", score).Error
}

func (r *ParticipationRepository) SetAssessmentSlotComment(slotID uint, comment string) error {
	return r.DB.Model(&model.ParticipationAssessmentSlot{}).
		Where("id = ?", slotID).
		Update("comment", comment).Error
}
