package service

import (
	"context"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"
	"exam_engine_backend/pkg/tracing"

	"go.uber.org/zap"
)

// participationStore is the slice of the participation repository the
// participant flow reads and writes through.
type participationStore interface {
	CreateWithTrees(p *model.EventParticipation, instanceSlots []model.EventInstanceSlot) error
	FindByID(id uint) (*model.EventParticipation, error)
	FindBySubmissionID(submissionID uint) (*model.EventParticipation, error)
	FindSubmissionSlot(slotID uint) (*model.ParticipationSubmissionSlot, error)
	SlotsOfSubmission(submissionID uint) ([]model.ParticipationSubmissionSlot, error)
	UpdateAnswer(slot *model.ParticipationSubmissionSlot, choices []model.ExerciseChoice) error
	MarkSeen(slotID uint, at time.Time) error
	TurnIn(participationID uint, at time.Time) error
	UpdateCursor(participationID uint, slotNumber int) error
}

type instanceSlotSource interface {
	FindByID(id uint) (*model.EventInstance, error)
	SlotsOfInstance(instanceID uint) ([]model.EventInstanceSlot, error)
}

// ParticipationService creates participations (with their submission and
// assessment slot trees) and handles everything the participant does until
// turn-in.
type ParticipationService struct {
	Repo         participationStore
	InstanceRepo instanceSlotSource
	Clock        Clock
}

func NewParticipationService(repo *repository.ParticipationRepository, instanceRepo *repository.EventInstanceRepository) *ParticipationService {
	return &ParticipationService{
		Repo:         repo,
		InstanceRepo: instanceRepo,
		Clock:        SystemClock{},
	}
}

// CreateParticipation clones the instance's slot tree into one submission
// tree and one assessment tree, positionally isomorphic to it and to each
// other. All rows commit in one transaction.
func (s *ParticipationService) CreateParticipation(ctx context.Context, userID, instanceID uint) (*model.EventParticipation, error) {
	_, span := tracing.StartSpan(ctx, "participations.CreateParticipation")
	defer span.End()

	instance, err := s.InstanceRepo.FindByID(instanceID)
	if err != nil {
		return nil, err
	}
	instanceSlots, err := s.InstanceRepo.SlotsOfInstance(instance.ID)
	if err != nil {
		return nil, err
	}

	p := &model.EventParticipation{
		EventInstanceID: instanceID,
		UserID:          userID,
		State:           model.ParticipationInProgress,
		BeginTimestamp:  s.Clock.Now(),
	}
	if err := s.Repo.CreateWithTrees(p, instanceSlots); err != nil {
		return nil, err
	}

	monitoring.ParticipationsCreated.Inc()
	logger.Log.Info("participation created",
		zap.Uint("userId", userID),
		zap.Uint("instanceId", instanceID),
		zap.Uint("participationId", p.ID))
	return p, nil
}

type AnswerPayload struct {
	SelectedChoiceIDs []uint  `json:"selectedChoiceIds"`
	AnswerText        *string `json:"answerText,omitempty"`
	Attachment        *string `json:"attachment,omitempty"`
}

// RecordAnswer writes a participant's answer into a submission slot. Once the
// participation is turned in every mutation is rejected and no field changes.
func (s *ParticipationService) RecordAnswer(slotID uint, payload AnswerPayload) error {
	slot, err := s.Repo.FindSubmissionSlot(slotID)
	if err != nil {
		return err
	}
	p, err := s.Repo.FindBySubmissionID(slot.SubmissionID)
	if err != nil {
		return err
	}
	if p.IsTurnedIn() {
		return util.ErrParticipationTurnedIn
	}

	exercise, err := s.ExerciseForSubmissionSlot(p, slot)
	if err != nil {
		return err
	}

	var choices []model.ExerciseChoice
	if len(payload.SelectedChoiceIDs) > 0 {
		if exercise.ExerciseType == model.ExerciseSingleChoice && len(payload.SelectedChoiceIDs) > 1 {
			return util.ErrSingleChoiceMultiple
		}
		owned := make(map[uint]model.ExerciseChoice, len(exercise.Choices))
		for _, c := range exercise.Choices {
			owned[c.ID] = c
		}
		for _, id := range payload.SelectedChoiceIDs {
			c, ok := owned[id]
			if !ok {
				return util.ErrInvalidChoice
			}
			choices = append(choices, c)
		}
	}

	if payload.AnswerText != nil {
		slot.AnswerText = *payload.AnswerText
	}
	if payload.Attachment != nil {
		slot.Attachment = *payload.Attachment
	}
	now := s.Clock.Now()
	slot.AnsweredAt = &now

	return s.Repo.UpdateAnswer(slot, choices)
}

// MarkSeen stamps the first time the participant saw the slot's exercise.
func (s *ParticipationService) MarkSeen(slotID uint) error {
	slot, err := s.Repo.FindSubmissionSlot(slotID)
	if err != nil {
		return err
	}
	p, err := s.Repo.FindBySubmissionID(slot.SubmissionID)
	if err != nil {
		return err
	}
	if p.IsTurnedIn() {
		return util.ErrParticipationTurnedIn
	}
	return s.Repo.MarkSeen(slotID, s.Clock.Now())
}

// TurnIn closes the participation. Double turn-in is rejected.
func (s *ParticipationService) TurnIn(participationID uint) error {
	return s.Repo.TurnIn(participationID, s.Clock.Now())
}

// EnforceTimeLimit force-turns-in a participation whose event has ended.
// Returns whether a transition happened. Intended to be called by the outer
// layer on reads past the deadline.
func (s *ParticipationService) EnforceTimeLimit(participationID uint) (bool, error) {
	p, err := s.Repo.FindByID(participationID)
	if err != nil {
		return false, err
	}
	if p.IsTurnedIn() {
		return false, nil
	}
	if p.EventInstance == nil || p.EventInstance.Event == nil {
		return false, nil
	}
	event := p.EventInstance.Event
	if event.EndTimestamp == nil || s.Clock.Now().Before(*event.EndTimestamp) {
		return false, nil
	}
	if err := s.Repo.TurnIn(participationID, s.Clock.Now()); err != nil {
		if err == util.ErrAlreadyTurnedIn {
			return false, nil
		}
		return false, err
	}
	logger.Log.Info("participation force-turned-in on expired time limit",
		zap.Uint("participationId", participationID))
	return true, nil
}

// MoveForward advances the cursor over the base slot sequence.
func (s *ParticipationService) MoveForward(participationID uint) error {
	p, err := s.Repo.FindByID(participationID)
	if err != nil {
		return err
	}
	if p.IsTurnedIn() {
		return util.ErrParticipationTurnedIn
	}
	return s.Repo.UpdateCursor(participationID, p.CurrentSlotNumber+1)
}

// MoveBack rewinds the cursor when the event allows going back.
func (s *ParticipationService) MoveBack(participationID uint) error {
	p, err := s.Repo.FindByID(participationID)
	if err != nil {
		return err
	}
	if p.IsTurnedIn() {
		return util.ErrParticipationTurnedIn
	}
	if p.EventInstance != nil && p.EventInstance.Event != nil && !p.EventInstance.Event.AllowGoingBack {
		return util.ErrCannotGoBack
	}
	if p.CurrentSlotNumber == 0 {
		return util.ErrCannotGoBack
	}
	return s.Repo.UpdateCursor(participationID, p.CurrentSlotNumber-1)
}

// ExerciseForSubmissionSlot resolves the exercise bound to a submission slot
// through its sibling instance slot.
func (s *ParticipationService) ExerciseForSubmissionSlot(p *model.EventParticipation, slot *model.ParticipationSubmissionSlot) (*model.Exercise, error) {
	subSlots, err := s.Repo.SlotsOfSubmission(slot.SubmissionID)
	if err != nil {
		return nil, err
	}
	_, subIndex := submissionSlotNodes(subSlots)
	path, err := slotPath(subIndex, slot)
	if err != nil {
		return nil, err
	}

	instanceSlots, err := s.InstanceRepo.SlotsOfInstance(p.EventInstanceID)
	if err != nil {
		return nil, err
	}
	instNodes, _ := instanceSlotNodes(instanceSlots)
	node, err := resolveSlotPath(instNodes, path)
	if err != nil {
		logger.Log.Error("submission slot has no sibling instance slot",
			zap.Uint("slotId", slot.ID), zap.Error(err))
		return nil, err
	}
	instSlot := node.(*model.EventInstanceSlot)
	if instSlot.Exercise == nil {
		return nil, util.ErrExerciseNotFound
	}
	return instSlot.Exercise, nil
}
