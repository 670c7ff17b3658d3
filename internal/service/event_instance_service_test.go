package service

import (
	"testing"

	"exam_engine_backend/internal/model"
)

func TestBuildSlotPlans(t *testing.T) {
	aggregated := model.Exercise{
		BaseModel:    model.BaseModel{ID: 10},
		ExerciseType: model.ExerciseAggregated,
	}
	single := model.Exercise{
		BaseModel:    model.BaseModel{ID: 20},
		ExerciseType: model.ExerciseSingleChoice,
	}
	// 子题的声明位置与目录顺序故意不一致
	childB := model.Exercise{
		BaseModel:     model.BaseModel{ID: 11},
		ExerciseType:  model.ExerciseOpenAnswer,
		ParentID:      uintPtr(10),
		ChildPosition: intPtr(1),
	}
	childA := model.Exercise{
		BaseModel:     model.BaseModel{ID: 12},
		ExerciseType:  model.ExerciseSingleChoice,
		ParentID:      uintPtr(10),
		ChildPosition: intPtr(0),
	}
	grandchild := model.Exercise{
		BaseModel:     model.BaseModel{ID: 13},
		ExerciseType:  model.ExerciseOpenAnswer,
		ParentID:      uintPtr(12),
		ChildPosition: intPtr(0),
	}

	all := []model.Exercise{aggregated, single, childB, childA, grandchild}
	ruleID1, ruleID2 := uint(71), uint(72)
	picked := []model.Exercise{single, aggregated}

	plans := buildSlotPlans(picked, []*uint{&ruleID1, &ruleID2}, childrenIndex(all))

	if len(plans) != 2 {
		t.Fatalf("应生成 2 个基础槽位计划，实际 %d", len(plans))
	}

	t.Run("正向测试: 基础槽位按选取顺序编号并记录规则", func(t *testing.T) {
		if plans[0].SlotNumber != 0 || plans[0].Exercise.ID != 20 {
			t.Errorf("槽位 0 应绑定题目 20，实际 %+v", plans[0])
		}
		if plans[0].PopulatingRuleID == nil || *plans[0].PopulatingRuleID != 71 {
			t.Errorf("槽位 0 应记录规则 71")
		}
		if plans[1].SlotNumber != 1 || plans[1].Exercise.ID != 10 {
			t.Errorf("槽位 1 应绑定题目 10，实际 %+v", plans[1])
		}
	})

	t.Run("正向测试: 子槽位沿用子题声明的位置", func(t *testing.T) {
		children := plans[1].Children
		if len(children) != 2 {
			t.Fatalf("聚合题应有 2 个子槽位，实际 %d", len(children))
		}
		numberByExercise := map[uint]int{}
		for _, c := range children {
			numberByExercise[c.Exercise.ID] = c.SlotNumber
			if c.PopulatingRuleID != nil {
				t.Errorf("子槽位不应记录模板规则")
			}
		}
		if numberByExercise[12] != 0 || numberByExercise[11] != 1 {
			t.Errorf("子槽位编号应取自声明位置，实际 %v", numberByExercise)
		}
	})

	t.Run("正向测试: 嵌套子题递归展开", func(t *testing.T) {
		for _, c := range plans[1].Children {
			if c.Exercise.ID != 12 {
				continue
			}
			if len(c.Children) != 1 || c.Children[0].Exercise.ID != 13 {
				t.Errorf("题目 12 的子槽位应包含题目 13，实际 %+v", c.Children)
			}
		}
	})

	t.Run("正向测试: 显式题目列表不记录规则", func(t *testing.T) {
		explicit := buildSlotPlans(picked, nil, childrenIndex(all))
		if explicit[0].PopulatingRuleID != nil {
			t.Errorf("显式列表生成的槽位不应有填充规则")
		}
	})
}
