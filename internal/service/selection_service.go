package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/monitoring"
	"exam_engine_backend/pkg/tracing"
)

// ExerciseCatalog is the slice of the exercise repository selection reads.
type ExerciseCatalog interface {
	BaseExercisesByCourse(courseID uint) ([]model.Exercise, error)
}

// SelectionService picks one concrete exercise per template rule, in
// target-slot order. The draw source is injectable so selection can be made
// deterministic in tests.
type SelectionService struct {
	ExerciseRepo ExerciseCatalog

	Rand *rand.Rand
	mu   sync.Mutex
}

func NewSelectionService(exerciseRepo *repository.ExerciseRepository) *SelectionService {
	return &SelectionService{
		ExerciseRepo: exerciseRepo,
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectExercises evaluates the template rules against the course catalog and
// returns one exercise per rule, aligned with the rule order. An exercise
// picked by an earlier rule is excluded from later draws. If a rule's
// candidate set ends up empty, the template is misconfigured relative to the
// catalog: the whole selection fails and no partial result is returned.
func (s *SelectionService) SelectExercises(ctx context.Context, template *model.EventTemplate, courseID uint, pool []uint) ([]model.Exercise, error) {
	_, span := tracing.StartSpan(ctx, "selection.SelectExercises")
	defer span.End()

	start := time.Now()
	catalog, err := s.ExerciseRepo.BaseExercisesByCourse(courseID)
	if err != nil {
		return nil, err
	}
	catalog = filterByPool(catalog, pool)

	picked := make([]model.Exercise, 0, len(template.Rules))
	pickedIDs := make(map[uint]bool, len(template.Rules))

	for i := range template.Rules {
		rule := &template.Rules[i]

		var candidates []model.Exercise
		for _, e := range exercisesSatisfying(rule, catalog) {
			if !pickedIDs[e.ID] {
				candidates = append(candidates, e)
			}
		}

		if len(candidates) == 0 {
			monitoring.SelectionFailures.Inc()
			return nil, &util.ConfigurationError{
				TemplateID: template.ID,
				RuleID:     rule.ID,
				TargetSlot: rule.TargetSlotNumber,
				Reason:     "目录中没有满足该规则且未被占用的题目",
			}
		}

		chosen := candidates[s.intn(len(candidates))]
		picked = append(picked, chosen)
		pickedIDs[chosen.ID] = true
	}

	monitoring.SelectionDuration.Observe(time.Since(start).Seconds())
	return picked, nil
}

func (s *SelectionService) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Rand.Intn(n)
}

func filterByPool(catalog []model.Exercise, pool []uint) []model.Exercise {
	if pool == nil {
		return catalog
	}
	allowed := make(map[uint]bool, len(pool))
	for _, id := range pool {
		allowed[id] = true
	}
	var out []model.Exercise
	for _, e := range catalog {
		if allowed[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

// exercisesSatisfying computes a rule's candidate set over the catalog:
// id_based keeps the explicitly referenced exercises, tag_based takes the
// union over clauses (a clause matches exercises carrying all of its tags,
// duplicates across clauses collapse), fully_random keeps the whole catalog.
func exercisesSatisfying(rule *model.EventTemplateRule, catalog []model.Exercise) []model.Exercise {
	switch rule.RuleType {
	case model.RuleIDBased:
		wanted := make(map[uint]bool, len(rule.Exercises))
		for _, e := range rule.Exercises {
			wanted[e.ID] = true
		}
		var out []model.Exercise
		for _, e := range catalog {
			if wanted[e.ID] {
				out = append(out, e)
			}
		}
		return out
	case model.RuleTagBased:
		var out []model.Exercise
		for _, e := range catalog {
			for _, clause := range rule.Clauses {
				if hasAllTags(&e, clause.Tags) {
					out = append(out, e)
					break
				}
			}
		}
		return out
	default: // fully_random
		return catalog
	}
}

func hasAllTags(e *model.Exercise, tags []model.Tag) bool {
	owned := make(map[uint]bool, len(e.Tags))
	for _, t := range e.Tags {
		owned[t.ID] = true
	}
	for _, t := range tags {
		if !owned[t.ID] {
			return false
		}
	}
	return true
}
