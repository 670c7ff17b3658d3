package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"
	"exam_engine_backend/pkg/tracing"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AssessorPolicy decides what happens to exercise types that cannot be
// scored automatically (open answer, attachment).
type AssessorPolicy struct {
	// 全自动策略：手动判分题型记 0 分而不是留待人工
	ManualFallbackZero bool
}

// AssessorForEvent picks the policy by event type: self-service practice is
// fully automatic so every submission is instantly and completely assessed;
// everything else leaves manual types pending for a human grader.
func AssessorForEvent(event *model.Event) AssessorPolicy {
	if event != nil && event.EventType == model.EventSelfServicePractice {
		return AssessorPolicy{ManualFallbackZero: true}
	}
	return AssessorPolicy{}
}

// AssessmentService derives scores for assessment slots from their sibling
// submission slots, honoring manual overrides.
type AssessmentService struct {
	Repo         *repository.ParticipationRepository
	InstanceRepo *repository.EventInstanceRepository

	// 可选的读穿缓存；短 TTL 限制答案变化后的陈旧窗口
	Cache    *redis.Client
	CacheTTL time.Duration
}

func NewAssessmentService(repo *repository.ParticipationRepository, instanceRepo *repository.EventInstanceRepository, cache *redis.Client) *AssessmentService {
	return &AssessmentService{
		Repo:         repo,
		InstanceRepo: instanceRepo,
		Cache:        cache,
		CacheTTL:     30 * time.Second,
	}
}

// GetScore resolves an assessment slot's score: a manual override always
// wins; otherwise the score is computed from the sibling submission slot and
// the slot's max score. A nil result with nil error means "no score yet"
// (manual grading pending or code not yet run) — never conflated with zero.
func (s *AssessmentService) GetScore(ctx context.Context, assessmentSlotID uint) (*decimal.Decimal, error) {
	_, span := tracing.StartSpan(ctx, "assessment.GetScore")
	defer span.End()

	slot, err := s.Repo.FindAssessmentSlot(assessmentSlotID)
	if err != nil {
		return nil, err
	}
	if slot.Score != nil {
		v := *slot.Score
		return &v, nil
	}

	if cached, ok := s.cacheGet(ctx, assessmentSlotID); ok {
		return cached, nil
	}

	p, err := s.Repo.FindByAssessmentID(slot.AssessmentID)
	if err != nil {
		return nil, err
	}
	ac, err := s.loadContext(p)
	if err != nil {
		return nil, err
	}
	score, err := ac.computeScore(slot)
	if err != nil {
		return nil, err
	}

	if score == nil {
		monitoring.AssessmentsComputed.WithLabelValues("pending").Inc()
	} else {
		monitoring.AssessmentsComputed.WithLabelValues("scored").Inc()
		s.cacheSet(ctx, assessmentSlotID, score)
	}
	return score, nil
}

// SetOverrideScore sets (or, with nil, clears) the manual override of an
// assessment slot. Clearing reverts the slot to computed scoring.
func (s *AssessmentService) SetOverrideScore(ctx context.Context, assessmentSlotID uint, value *decimal.Decimal) error {
	if _, err := s.Repo.FindAssessmentSlot(assessmentSlotID); err != nil {
		return err
	}
	if err := s.Repo.SetAssessmentSlotScore(assessmentSlotID, value); err != nil {
		return err
	}
	s.cacheDel(ctx, assessmentSlotID)
	monitoring.OverridesSet.Inc()
	return nil
}

func (s *AssessmentService) SetComment(assessmentSlotID uint, comment string) error {
	return s.Repo.SetAssessmentSlotComment(assessmentSlotID, comment)
}

// GetAssessmentState reports the completeness of a whole assessment tree:
// FULLY_ASSESSED when every slot resolves to a score, NOT_ASSESSED when none
// does, PARTIALLY_ASSESSED otherwise.
func (s *AssessmentService) GetAssessmentState(ctx context.Context, assessmentID uint) (string, error) {
	_, span := tracing.StartSpan(ctx, "assessment.GetAssessmentState")
	defer span.End()

	p, err := s.Repo.FindByAssessmentID(assessmentID)
	if err != nil {
		return "", err
	}
	ac, err := s.loadContext(p)
	if err != nil {
		return "", err
	}
	return ac.state()
}

func (s *AssessmentService) cacheKey(slotID uint) string {
	return fmt.Sprintf("assessment_score:%d", slotID)
}

func (s *AssessmentService) cacheGet(ctx context.Context, slotID uint) (*decimal.Decimal, bool) {
	if s.Cache == nil {
		return nil, false
	}
	raw, err := s.Cache.Get(ctx, s.cacheKey(slotID)).Result()
	if err != nil {
		return nil, false
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func (s *AssessmentService) cacheSet(ctx context.Context, slotID uint, score *decimal.Decimal) {
	if s.Cache == nil || score == nil {
		return
	}
	if err := s.Cache.Set(ctx, s.cacheKey(slotID), score.String(), s.CacheTTL).Err(); err != nil {
		logger.Log.Warn("score cache write failed", zap.Uint("slotId", slotID), zap.Error(err))
	}
}

func (s *AssessmentService) cacheDel(ctx context.Context, slotID uint) {
	if s.Cache == nil {
		return
	}
	s.Cache.Del(ctx, s.cacheKey(slotID))
}

// assessmentContext holds the three slot arenas of one participation plus
// the assessor policy, loaded once per scoring request.
type assessmentContext struct {
	policy AssessorPolicy

	instSlots []model.EventInstanceSlot
	subSlots  []model.ParticipationSubmissionSlot
	assSlots  []model.ParticipationAssessmentSlot

	instNodes []model.SlotNode
	subNodes  []model.SlotNode
	assIndex  map[uint]model.SlotNode

	instChildren map[uint][]*model.EventInstanceSlot
}

func (s *AssessmentService) loadContext(p *model.EventParticipation) (*assessmentContext, error) {
	if p.Submission == nil || p.Assessment == nil {
		return nil, util.ErrParticipationNotFound
	}

	instSlots, err := s.InstanceRepo.SlotsOfInstance(p.EventInstanceID)
	if err != nil {
		return nil, err
	}
	subSlots, err := s.Repo.SlotsOfSubmission(p.Submission.ID)
	if err != nil {
		return nil, err
	}
	assSlots, err := s.Repo.SlotsOfAssessment(p.Assessment.ID)
	if err != nil {
		return nil, err
	}

	var event *model.Event
	if p.EventInstance != nil {
		event = p.EventInstance.Event
	}

	return newAssessmentContext(event, instSlots, subSlots, assSlots), nil
}

func newAssessmentContext(event *model.Event, instSlots []model.EventInstanceSlot, subSlots []model.ParticipationSubmissionSlot, assSlots []model.ParticipationAssessmentSlot) *assessmentContext {
	ac := &assessmentContext{
		policy:       AssessorForEvent(event),
		instSlots:    instSlots,
		subSlots:     subSlots,
		assSlots:     assSlots,
		instChildren: make(map[uint][]*model.EventInstanceSlot),
	}
	ac.instNodes, _ = instanceSlotNodes(ac.instSlots)
	ac.subNodes, _ = submissionSlotNodes(ac.subSlots)
	_, ac.assIndex = assessmentSlotNodes(ac.assSlots)

	for i := range ac.instSlots {
		slot := &ac.instSlots[i]
		if slot.ParentID != nil {
			ac.instChildren[*slot.ParentID] = append(ac.instChildren[*slot.ParentID], slot)
		}
	}
	for _, children := range ac.instChildren {
		sort.Slice(children, func(i, j int) bool {
			return children[i].SlotNumber < children[j].SlotNumber
		})
	}
	return ac
}

// scoredSlot pairs an instance slot (the exercise) with its sibling
// submission slot (the answer), plus the paired sub-slots of a composite.
type scoredSlot struct {
	instance   *model.EventInstanceSlot
	submission *model.ParticipationSubmissionSlot
	children   []*scoredSlot
}

// computeScore derives the score for one assessment slot: correctness of the
// paired submission tree times the slot's max score.
func (ac *assessmentContext) computeScore(slot *model.ParticipationAssessmentSlot) (*decimal.Decimal, error) {
	path, err := slotPath(ac.assIndex, slot)
	if err != nil {
		return nil, err
	}
	tree, err := ac.scoredTreeAt(path)
	if err != nil {
		return nil, err
	}

	corr, err := submissionCorrectness(tree, ac.policy)
	if err != nil {
		return nil, err
	}
	if corr == nil {
		return nil, nil
	}
	if outOfRange(*corr) {
		return nil, &util.CorrectnessRangeError{
			ExerciseID:  tree.instance.ExerciseID,
			Correctness: corr.String(),
		}
	}

	max, err := ac.maxScoreAt(path)
	if err != nil {
		return nil, err
	}
	score := corr.Mul(max).Round(2)
	return &score, nil
}

// resolveScore honors a manual override before falling back to computation.
func (ac *assessmentContext) resolveScore(slot *model.ParticipationAssessmentSlot) (*decimal.Decimal, error) {
	if slot.Score != nil {
		v := *slot.Score
		return &v, nil
	}
	return ac.computeScore(slot)
}

func (ac *assessmentContext) state() (string, error) {
	assessed := 0
	for i := range ac.assSlots {
		score, err := ac.resolveScore(&ac.assSlots[i])
		if err != nil {
			return "", err
		}
		if score != nil {
			assessed++
		}
	}

	switch {
	case assessed == 0:
		return model.NotAssessed, nil
	case assessed == len(ac.assSlots):
		return model.FullyAssessed, nil
	default:
		return model.PartiallyAssessed, nil
	}
}

// scoredTreeAt resolves the same path in the instance and submission trees
// and pairs them up recursively.
func (ac *assessmentContext) scoredTreeAt(path []int) (*scoredSlot, error) {
	instNode, err := resolveSlotPath(ac.instNodes, path)
	if err != nil {
		return nil, err
	}
	return ac.pairSlots(instNode.(*model.EventInstanceSlot), path)
}

func (ac *assessmentContext) pairSlots(instSlot *model.EventInstanceSlot, path []int) (*scoredSlot, error) {
	subNode, err := resolveSlotPath(ac.subNodes, path)
	if err != nil {
		return nil, err
	}
	paired := &scoredSlot{
		instance:   instSlot,
		submission: subNode.(*model.ParticipationSubmissionSlot),
	}
	for _, child := range ac.instChildren[instSlot.ID] {
		childTree, err := ac.pairSlots(child, append(append([]int{}, path...), child.SlotNumber))
		if err != nil {
			return nil, err
		}
		paired.children = append(paired.children, childTree)
	}
	return paired, nil
}

// maxScoreAt walks the path through the instance tree: the base slot's max
// score comes from its populating rule (falling back to the exercise), and
// every level below takes its parent's share via the child weight.
func (ac *assessmentContext) maxScoreAt(path []int) (decimal.Decimal, error) {
	var max decimal.Decimal
	for depth := 1; depth <= len(path); depth++ {
		node, err := resolveSlotPath(ac.instNodes, path[:depth])
		if err != nil {
			return decimal.Zero, err
		}
		slot := node.(*model.EventInstanceSlot)
		if depth == 1 {
			switch {
			case slot.PopulatingRule != nil && slot.PopulatingRule.MaxScore != nil:
				max = *slot.PopulatingRule.MaxScore
			case slot.Exercise != nil:
				max = slot.Exercise.MaxScore
			}
			continue
		}
		weight := 100
		if slot.Exercise != nil {
			weight = slot.Exercise.ChildWeight
		}
		max = max.Mul(decimal.NewFromInt(int64(weight))).Div(decimal.NewFromInt(100))
	}
	return max, nil
}

type correctnessFunc func(slot *scoredSlot, policy AssessorPolicy) (*decimal.Decimal, error)

// correctnessTable dispatches by exercise type. Entries are pure functions;
// a nil result means "cannot be scored automatically (yet)". Populated in
// init because compositeCorrectness recurses through the table.
var correctnessTable map[string]correctnessFunc

func init() {
	correctnessTable = map[string]correctnessFunc{
		model.ExerciseSingleChoice: choiceCorrectness,
		model.ExerciseMultiChoice:  choiceCorrectness,
		model.ExerciseOpenAnswer:   manualCorrectness,
		model.ExerciseAttachment:   manualCorrectness,
		model.ExerciseCode:         codeCorrectness,
		model.ExerciseCompletion:   compositeCorrectness,
		model.ExerciseAggregated:   compositeCorrectness,
	}
}

func submissionCorrectness(slot *scoredSlot, policy AssessorPolicy) (*decimal.Decimal, error) {
	if slot.instance.Exercise == nil {
		return nil, util.ErrExerciseNotFound
	}
	fn, ok := correctnessTable[slot.instance.Exercise.ExerciseType]
	if !ok {
		return nil, util.NewValidationError("无法评分的题目类型 %q", slot.instance.Exercise.ExerciseType)
	}
	return fn(slot, policy)
}

// choiceCorrectness sums the correctness percentages of the selected
// choices. Inconsistently authored multi-choice weights can push the sum
// past 1 or below -1; that is surfaced upstream, never clamped here.
func choiceCorrectness(slot *scoredSlot, _ AssessorPolicy) (*decimal.Decimal, error) {
	sum := decimal.Zero
	for _, c := range slot.submission.SelectedChoices {
		sum = sum.Add(c.CorrectnessPercentage)
	}
	v := sum.Div(decimal.NewFromInt(100))
	return &v, nil
}

func manualCorrectness(_ *scoredSlot, policy AssessorPolicy) (*decimal.Decimal, error) {
	if policy.ManualFallbackZero {
		z := decimal.Zero
		return &z, nil
	}
	return nil, nil
}

// codeCorrectness scores passed/total test cases. Before any run: an empty
// answer scores 0, a non-empty one is pending. A result payload without the
// tests key (e.g. a compilation failure) scores 0.
func codeCorrectness(slot *scoredSlot, _ AssessorPolicy) (*decimal.Decimal, error) {
	sub := slot.submission
	if len(sub.ExecutionResults) == 0 || string(sub.ExecutionResults) == "null" {
		if strings.TrimSpace(sub.AnswerText) == "" {
			z := decimal.Zero
			return &z, nil
		}
		return nil, nil
	}

	var report struct {
		Tests *[]struct {
			Passed bool `json:"passed"`
		} `json:"tests"`
	}
	if err := json.Unmarshal(sub.ExecutionResults, &report); err != nil || report.Tests == nil {
		z := decimal.Zero
		return &z, nil
	}

	total := len(slot.instance.Exercise.TestCases)
	if total == 0 {
		z := decimal.Zero
		return &z, nil
	}
	passed := 0
	for _, t := range *report.Tests {
		if t.Passed {
			passed++
		}
	}
	v := decimal.NewFromInt(int64(passed)).Div(decimal.NewFromInt(int64(total)))
	return &v, nil
}

// compositeCorrectness aggregates weighted sub-slot correctness. Any pending
// sub-slot makes the whole composite pending; a result outside [-1, 1] is an
// authoring-data fault and is surfaced, not clamped.
func compositeCorrectness(slot *scoredSlot, policy AssessorPolicy) (*decimal.Decimal, error) {
	sum := decimal.Zero
	for _, child := range slot.children {
		c, err := submissionCorrectness(child, policy)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, nil
		}
		weight := decimal.NewFromInt(int64(child.instance.Exercise.ChildWeight))
		sum = sum.Add(c.Mul(weight).Div(decimal.NewFromInt(100)))
	}
	if outOfRange(sum) {
		return nil, &util.CorrectnessRangeError{
			ExerciseID:  slot.instance.ExerciseID,
			Correctness: sum.String(),
		}
	}
	return &sum, nil
}

var (
	one      = decimal.NewFromInt(1)
	minusOne = decimal.NewFromInt(-1)
)

func outOfRange(v decimal.Decimal) bool {
	return v.GreaterThan(one) || v.LessThan(minusOne)
}
