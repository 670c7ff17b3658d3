package service

import (
	"context"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"
	"exam_engine_backend/pkg/tracing"

	"go.uber.org/zap"
)

// EventInstanceService materializes event instances: one slot per picked
// exercise, with sub-slots mirroring each exercise's sub-exercise tree.
type EventInstanceService struct {
	Repo         *repository.EventInstanceRepository
	ExerciseRepo *repository.ExerciseRepository
	EventRepo    *repository.EventRepository
	Selection    *SelectionService
}

func NewEventInstanceService(
	repo *repository.EventInstanceRepository,
	exerciseRepo *repository.ExerciseRepository,
	eventRepo *repository.EventRepository,
	selection *SelectionService,
) *EventInstanceService {
	return &EventInstanceService{
		Repo:         repo,
		ExerciseRepo: exerciseRepo,
		EventRepo:    eventRepo,
		Selection:    selection,
	}
}

// CreateEventInstance builds an instance from an explicit exercise list, or,
// when the list is nil, by running the event template's rules. The instance
// and its whole slot tree are committed atomically; a selection failure
// leaves nothing behind.
func (s *EventInstanceService) CreateEventInstance(ctx context.Context, event *model.Event, exercises []model.Exercise) (*model.EventInstance, error) {
	ctx, span := tracing.StartSpan(ctx, "instances.CreateEventInstance")
	defer span.End()

	var ruleIDs []*uint
	if exercises == nil {
		if event.TemplateID == nil {
			return nil, util.NewValidationError("活动既没有显式题目列表也没有模板，无法生成实例")
		}
		template, err := s.EventRepo.FindTemplateWithRules(*event.TemplateID)
		if err != nil {
			return nil, err
		}
		exercises, err = s.Selection.SelectExercises(ctx, template, event.CourseID, nil)
		if err != nil {
			return nil, err
		}
		ruleIDs = make([]*uint, len(exercises))
		for i := range template.Rules {
			ruleIDs[i] = &template.Rules[i].ID
		}
	}

	all, err := s.ExerciseRepo.ExercisesByCourse(event.CourseID)
	if err != nil {
		return nil, err
	}
	plans := buildSlotPlans(exercises, ruleIDs, childrenIndex(all))

	instance := &model.EventInstance{EventID: event.ID}
	if err := s.Repo.CreateWithSlots(instance, plans); err != nil {
		return nil, err
	}

	monitoring.InstancesCreated.Inc()
	logger.Log.Info("event instance materialized",
		zap.Uint("eventId", event.ID),
		zap.Uint("instanceId", instance.ID),
		zap.Int("baseSlots", len(plans)))
	return instance, nil
}

// childrenIndex arranges a flat exercise arena by parent, in declared
// sibling order.
func childrenIndex(all []model.Exercise) map[uint][]model.Exercise {
	childrenOf := make(map[uint][]model.Exercise)
	for _, e := range all {
		if e.ParentID != nil {
			childrenOf[*e.ParentID] = append(childrenOf[*e.ParentID], e)
		}
	}
	return childrenOf
}

// buildSlotPlans numbers base slots 0..n-1 in pick order and sub-slots by
// their exercise's declared sibling position.
func buildSlotPlans(exercises []model.Exercise, ruleIDs []*uint, childrenOf map[uint][]model.Exercise) []repository.SlotPlan {
	plans := make([]repository.SlotPlan, len(exercises))
	for i, e := range exercises {
		var ruleID *uint
		if ruleIDs != nil {
			ruleID = ruleIDs[i]
		}
		plans[i] = repository.SlotPlan{
			Exercise:         e,
			SlotNumber:       i,
			PopulatingRuleID: ruleID,
			Children:         buildChildPlans(e, childrenOf),
		}
	}
	return plans
}

func buildChildPlans(parent model.Exercise, childrenOf map[uint][]model.Exercise) []repository.SlotPlan {
	subs := childrenOf[parent.ID]
	plans := make([]repository.SlotPlan, 0, len(subs))
	for i, sub := range subs {
		number := i
		if sub.ChildPosition != nil {
			number = *sub.ChildPosition
		}
		plans = append(plans, repository.SlotPlan{
			Exercise:   sub,
			SlotNumber: number,
			Children:   buildChildPlans(sub, childrenOf),
		})
	}
	return plans
}
