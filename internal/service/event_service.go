package service

import (
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"
)

// EventService owns the event lifecycle. Instances and participations hang
// off events created here.
type EventService struct {
	Repo  *repository.EventRepository
	Clock Clock
}

func NewEventService(repo *repository.EventRepository) *EventService {
	return &EventService{Repo: repo, Clock: SystemClock{}}
}

type EventRequest struct {
	CourseID       uint       `json:"courseId"`
	Name           string     `json:"name"`
	Instructions   string     `json:"instructions"`
	EventType      string     `json:"eventType"`
	BeginTimestamp *time.Time `json:"beginTimestamp,omitempty"`
	EndTimestamp   *time.Time `json:"endTimestamp,omitempty"`
	TemplateID     *uint      `json:"templateId,omitempty"`

	ExercisesShownAtATime *int `json:"exercisesShownAtATime,omitempty"`
	AllowGoingBack        bool `json:"allowGoingBack"`
}

func (s *EventService) CreateEvent(req EventRequest) (*model.Event, error) {
	switch req.EventType {
	case model.EventSelfServicePractice, model.EventInClassPractice,
		model.EventExam, model.EventHomeAssignment, model.EventExternal:
	default:
		return nil, util.NewValidationError("未知的活动类型 %q", req.EventType)
	}
	if req.BeginTimestamp != nil && req.EndTimestamp != nil &&
		!req.BeginTimestamp.Before(*req.EndTimestamp) {
		return nil, util.NewValidationError("活动开始时间必须早于结束时间")
	}

	event := &model.Event{
		CourseID:              req.CourseID,
		Name:                  req.Name,
		Instructions:          req.Instructions,
		EventType:             req.EventType,
		State:                 model.EventStateDraft,
		BeginTimestamp:        req.BeginTimestamp,
		EndTimestamp:          req.EndTimestamp,
		TemplateID:            req.TemplateID,
		ExercisesShownAtATime: req.ExercisesShownAtATime,
		AllowGoingBack:        req.AllowGoingBack,
	}
	if err := s.Repo.Create(event); err != nil {
		return nil, err
	}
	return event, nil
}

// 活动状态只能沿生命周期前进
var eventStateOrder = map[string]int{
	model.EventStateDraft:   0,
	model.EventStatePlanned: 1,
	model.EventStateOpen:    2,
	model.EventStateClosed:  3,
}

// UpdateEventState advances the event along its lifecycle. Reopening a
// closed event or any other backwards move is rejected.
func (s *EventService) UpdateEventState(eventID uint, state string) (*model.Event, error) {
	target, ok := eventStateOrder[state]
	if !ok {
		return nil, util.NewValidationError("未知的活动状态 %q", state)
	}
	event, err := s.Repo.FindByID(eventID)
	if err != nil {
		return nil, err
	}
	if eventStateOrder[event.State] > target {
		return nil, util.NewValidationError("活动状态不能从 %s 回退到 %s", event.State, state)
	}
	event.State = state
	if err := s.Repo.Update(event); err != nil {
		return nil, err
	}
	return event, nil
}

// IsOpenAt reports whether the event accepts participations at the given
// moment: state open and inside the begin/end window when one is set.
func (s *EventService) IsOpenAt(event *model.Event, at time.Time) bool {
	if event.State != model.EventStateOpen {
		return false
	}
	if event.BeginTimestamp != nil && at.Before(*event.BeginTimestamp) {
		return false
	}
	if event.EndTimestamp != nil && !at.Before(*event.EndTimestamp) {
		return false
	}
	return true
}
