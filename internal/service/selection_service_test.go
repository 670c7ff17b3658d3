package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"
)

type fakeCatalog struct {
	exercises []model.Exercise
}

func (f *fakeCatalog) BaseExercisesByCourse(courseID uint) ([]model.Exercise, error) {
	return f.exercises, nil
}

func newTestSelection(catalog []model.Exercise, seed int64) *SelectionService {
	return &SelectionService{
		ExerciseRepo: &fakeCatalog{exercises: catalog},
		Rand:         rand.New(rand.NewSource(seed)),
	}
}

func taggedExercise(id uint, tagIDs ...uint) model.Exercise {
	e := model.Exercise{
		BaseModel:    model.BaseModel{ID: id},
		ExerciseType: model.ExerciseOpenAnswer,
		State:        model.ExerciseStatePublic,
	}
	for _, tid := range tagIDs {
		e.Tags = append(e.Tags, model.Tag{BaseModel: model.BaseModel{ID: tid}})
	}
	return e
}

func tagClause(tagIDs ...uint) model.EventTemplateRuleClause {
	c := model.EventTemplateRuleClause{}
	for _, tid := range tagIDs {
		c.Tags = append(c.Tags, model.Tag{BaseModel: model.BaseModel{ID: tid}})
	}
	return c
}

func TestSelectExercisesTagSemantics(t *testing.T) {
	// 标签: 1=loops 2=easy 3=arrays
	catalog := []model.Exercise{
		taggedExercise(1, 1, 2),
		taggedExercise(2, 1),
		taggedExercise(3, 3),
	}

	t.Run("正向测试: 子句内标签取与", func(t *testing.T) {
		template := &model.EventTemplate{Rules: []model.EventTemplateRule{
			{RuleType: model.RuleTagBased, Clauses: []model.EventTemplateRuleClause{tagClause(1, 2)}},
		}}
		s := newTestSelection(catalog, 1)
		picked, err := s.SelectExercises(context.Background(), template, 1, nil)
		if err != nil {
			t.Fatalf("抽题失败: %v", err)
		}
		if len(picked) != 1 || picked[0].ID != 1 {
			t.Errorf("只有题目 1 同时携带两个标签，实际选中 %v", picked)
		}
	})

	t.Run("正向测试: 子句间取或", func(t *testing.T) {
		template := &model.EventTemplate{Rules: []model.EventTemplateRule{
			{RuleType: model.RuleTagBased, Clauses: []model.EventTemplateRuleClause{
				tagClause(1, 2),
				tagClause(3),
			}},
			{RuleType: model.RuleTagBased, Clauses: []model.EventTemplateRuleClause{
				tagClause(1, 2),
				tagClause(3),
			}},
		}}
		s := newTestSelection(catalog, 1)
		picked, err := s.SelectExercises(context.Background(), template, 1, nil)
		if err != nil {
			t.Fatalf("抽题失败: %v", err)
		}
		// 候选集只有题目 1 和 3，两条规则互斥地各取一题
		got := map[uint]bool{picked[0].ID: true, picked[1].ID: true}
		if !got[1] || !got[3] {
			t.Errorf("应选中题目 1 和 3，实际 %v", got)
		}
	})
}

func TestSelectExercisesRuleExclusivity(t *testing.T) {
	catalog := []model.Exercise{
		taggedExercise(1, 1),
		taggedExercise(2, 1),
	}
	template := &model.EventTemplate{Rules: []model.EventTemplateRule{
		{RuleType: model.RuleIDBased, Exercises: []model.Exercise{{BaseModel: model.BaseModel{ID: 1}}}},
		{RuleType: model.RuleTagBased, Clauses: []model.EventTemplateRuleClause{tagClause(1)}},
	}}

	s := newTestSelection(catalog, 1)
	picked, err := s.SelectExercises(context.Background(), template, 1, nil)
	if err != nil {
		t.Fatalf("抽题失败: %v", err)
	}
	if picked[0].ID != 1 {
		t.Errorf("id_based 规则应选中题目 1，实际 %d", picked[0].ID)
	}
	// 题目 1 已被占用，第二条规则只剩题目 2
	if picked[1].ID != 2 {
		t.Errorf("已占用的题目不得重复选中，实际 %d", picked[1].ID)
	}
}

func TestSelectExercisesEmptyCandidateSet(t *testing.T) {
	catalog := []model.Exercise{
		taggedExercise(1, 1),
	}
	template := &model.EventTemplate{
		BaseModel: model.BaseModel{ID: 7},
		Rules: []model.EventTemplateRule{
			{RuleType: model.RuleIDBased, Exercises: []model.Exercise{{BaseModel: model.BaseModel{ID: 1}}}},
			// 题目 1 已被上一条规则占用，该规则无题可选
			{RuleType: model.RuleIDBased, TargetSlotNumber: 1, Exercises: []model.Exercise{{BaseModel: model.BaseModel{ID: 1}}}},
		},
	}

	s := newTestSelection(catalog, 1)
	picked, err := s.SelectExercises(context.Background(), template, 1, nil)

	var cfgErr *util.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("应返回 ConfigurationError，实际 %v", err)
	}
	if cfgErr.TemplateID != 7 || cfgErr.TargetSlot != 1 {
		t.Errorf("错误应指向模板 7 的槽位 1，实际 %+v", cfgErr)
	}
	if picked != nil {
		t.Errorf("抽题失败时不得返回部分结果，实际 %v", picked)
	}
}

func TestSelectExercisesDeterministicWithSeed(t *testing.T) {
	catalog := []model.Exercise{
		taggedExercise(1), taggedExercise(2), taggedExercise(3),
		taggedExercise(4), taggedExercise(5),
	}
	template := &model.EventTemplate{Rules: []model.EventTemplateRule{
		{RuleType: model.RuleFullyRandom},
		{RuleType: model.RuleFullyRandom},
		{RuleType: model.RuleFullyRandom},
	}}

	first, err := newTestSelection(catalog, 42).SelectExercises(context.Background(), template, 1, nil)
	if err != nil {
		t.Fatalf("抽题失败: %v", err)
	}
	second, err := newTestSelection(catalog, 42).SelectExercises(context.Background(), template, 1, nil)
	if err != nil {
		t.Fatalf("抽题失败: %v", err)
	}

	seen := map[uint]bool{}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("相同种子应得到相同结果: %d vs %d", first[i].ID, second[i].ID)
		}
		if seen[first[i].ID] {
			t.Errorf("题目 %d 被重复选中", first[i].ID)
		}
		seen[first[i].ID] = true
	}
}

func TestSelectExercisesPoolRestriction(t *testing.T) {
	catalog := []model.Exercise{
		taggedExercise(1), taggedExercise(2), taggedExercise(3),
	}
	template := &model.EventTemplate{Rules: []model.EventTemplateRule{
		{RuleType: model.RuleFullyRandom},
	}}

	s := newTestSelection(catalog, 3)
	picked, err := s.SelectExercises(context.Background(), template, 1, []uint{2})
	if err != nil {
		t.Fatalf("抽题失败: %v", err)
	}
	if len(picked) != 1 || picked[0].ID != 2 {
		t.Errorf("限定题池后只能选中题目 2，实际 %v", picked)
	}
}
