package service

import (
	"encoding/json"
	"errors"
	"testing"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"

	"github.com/shopspring/decimal"
)

// scoringFixture 搭建一个参与的三棵槽位树：
//
//	槽位 0: 单选题（满分 2）
//	槽位 1: 编程题（满分 4，4 个测试用例）
//	槽位 2: 聚合题（满分 10）
//	  子槽位 0: 单选子题（权重 60）
//	  子槽位 1: 开放子题（权重 40）
type scoringFixture struct {
	inst []model.EventInstanceSlot
	sub  []model.ParticipationSubmissionSlot
	ass  []model.ParticipationAssessmentSlot
}

func newScoringFixture() *scoringFixture {
	single := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 101},
		ExerciseType: model.ExerciseSingleChoice,
		MaxScore:     decimal.NewFromInt(2),
		Choices: []model.ExerciseChoice{
			{BaseModel: model.BaseModel{ID: 1}, CorrectnessPercentage: decimal.NewFromInt(100)},
			{BaseModel: model.BaseModel{ID: 2}, CorrectnessPercentage: decimal.NewFromInt(-50)},
		},
	}
	code := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 102},
		ExerciseType: model.ExerciseCode,
		MaxScore:     decimal.NewFromInt(4),
		TestCases: []model.ExerciseTestCase{
			{BaseModel: model.BaseModel{ID: 201}},
			{BaseModel: model.BaseModel{ID: 202}},
			{BaseModel: model.BaseModel{ID: 203}},
			{BaseModel: model.BaseModel{ID: 204}},
		},
	}
	aggregated := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 103},
		ExerciseType: model.ExerciseAggregated,
		MaxScore:     decimal.NewFromInt(10),
		ChildWeight:  100,
	}
	subChoice := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 104},
		ExerciseType: model.ExerciseSingleChoice,
		ChildWeight:  60,
		Choices: []model.ExerciseChoice{
			{BaseModel: model.BaseModel{ID: 3}, CorrectnessPercentage: decimal.NewFromInt(100)},
			{BaseModel: model.BaseModel{ID: 4}, CorrectnessPercentage: decimal.Zero},
		},
	}
	subOpen := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 105},
		ExerciseType: model.ExerciseOpenAnswer,
		ChildWeight:  40,
	}

	return &scoringFixture{
		inst: []model.EventInstanceSlot{
			{BaseModel: model.BaseModel{ID: 1}, SlotNumber: 0, ExerciseID: 101, Exercise: single},
			{BaseModel: model.BaseModel{ID: 2}, SlotNumber: 1, ExerciseID: 102, Exercise: code},
			{BaseModel: model.BaseModel{ID: 3}, SlotNumber: 2, ExerciseID: 103, Exercise: aggregated},
			{BaseModel: model.BaseModel{ID: 4}, ParentID: uintPtr(3), SlotNumber: 0, ExerciseID: 104, Exercise: subChoice},
			{BaseModel: model.BaseModel{ID: 5}, ParentID: uintPtr(3), SlotNumber: 1, ExerciseID: 105, Exercise: subOpen},
		},
		sub: []model.ParticipationSubmissionSlot{
			{BaseModel: model.BaseModel{ID: 11}, SlotNumber: 0},
			{BaseModel: model.BaseModel{ID: 12}, SlotNumber: 1},
			{BaseModel: model.BaseModel{ID: 13}, SlotNumber: 2},
			{BaseModel: model.BaseModel{ID: 14}, ParentID: uintPtr(13), SlotNumber: 0},
			{BaseModel: model.BaseModel{ID: 15}, ParentID: uintPtr(13), SlotNumber: 1},
		},
		ass: []model.ParticipationAssessmentSlot{
			{BaseModel: model.BaseModel{ID: 21}, SlotNumber: 0},
			{BaseModel: model.BaseModel{ID: 22}, SlotNumber: 1},
			{BaseModel: model.BaseModel{ID: 23}, SlotNumber: 2},
			{BaseModel: model.BaseModel{ID: 24}, ParentID: uintPtr(23), SlotNumber: 0},
			{BaseModel: model.BaseModel{ID: 25}, ParentID: uintPtr(23), SlotNumber: 1},
		},
	}
}

func (f *scoringFixture) context(eventType string) *assessmentContext {
	return newAssessmentContext(&model.Event{EventType: eventType}, f.inst, f.sub, f.ass)
}

func assertScore(t *testing.T, got *decimal.Decimal, want string) {
	t.Helper()
	if got == nil {
		t.Fatalf("应得到分数 %s，实际为未评分", want)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("分数应为 %s，实际 %s", want, got)
	}
}

func TestChoiceScoring(t *testing.T) {
	t.Run("正向测试: 满分选项", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[0].SelectedChoices = []model.ExerciseChoice{f.inst[0].Exercise.Choices[0]}
		score, err := f.context(model.EventExam).computeScore(&f.ass[0])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		assertScore(t, score, "2")
	})

	t.Run("正向测试: 负分选项扣分", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[0].SelectedChoices = []model.ExerciseChoice{f.inst[0].Exercise.Choices[1]}
		score, err := f.context(model.EventExam).computeScore(&f.ass[0])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		assertScore(t, score, "-1")
	})

	t.Run("正向测试: 未作答记 0 分而不是未评分", func(t *testing.T) {
		f := newScoringFixture()
		score, err := f.context(model.EventExam).computeScore(&f.ass[0])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		assertScore(t, score, "0")
	})
}

func TestRuleMaxScoreTakesPrecedence(t *testing.T) {
	f := newScoringFixture()
	three := decimal.NewFromInt(3)
	f.inst[0].PopulatingRule = &model.EventTemplateRule{MaxScore: &three}
	f.sub[0].SelectedChoices = []model.ExerciseChoice{f.inst[0].Exercise.Choices[0]}

	score, err := f.context(model.EventExam).computeScore(&f.ass[0])
	if err != nil {
		t.Fatalf("评分失败: %v", err)
	}
	assertScore(t, score, "3")
}

func TestCodeScoring(t *testing.T) {
	t.Run("正向测试: 按通过的测试用例比例计分", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[1].AnswerText = "def reverse(xs): return xs[::-1]"
		f.sub[1].ExecutionResults = json.RawMessage(
			`{"tests":[{"passed":true},{"passed":true},{"passed":true},{"passed":false}]}`)
		score, err := f.context(model.EventExam).computeScore(&f.ass[1])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		assertScore(t, score, "3")
	})

	t.Run("正向测试: 运行结果缺少 tests 键记 0 分", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[1].AnswerText = "not even python"
		f.sub[1].ExecutionResults = json.RawMessage(`{"error":"compilation failed"}`)
		score, err := f.context(model.EventExam).computeScore(&f.ass[1])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		assertScore(t, score, "0")
	})

	t.Run("正向测试: 空答案未运行记 0 分", func(t *testing.T) {
		f := newScoringFixture()
		score, err := f.context(model.EventExam).computeScore(&f.ass[1])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		assertScore(t, score, "0")
	})

	t.Run("反向测试: 非空答案未运行保持未评分", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[1].AnswerText = "def reverse(xs): return xs[::-1]"
		score, err := f.context(model.EventExam).computeScore(&f.ass[1])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		if score != nil {
			t.Errorf("等待运行的代码题不应有分数，实际 %s", score)
		}
	})
}

func TestCompositeScoring(t *testing.T) {
	t.Run("反向测试: 子题未评分传播到组合题", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[3].SelectedChoices = []model.ExerciseChoice{f.inst[3].Exercise.Choices[0]}
		// 开放子题在考试中留待人工评分
		score, err := f.context(model.EventExam).computeScore(&f.ass[2])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		if score != nil {
			t.Errorf("组合题应随子题一起等待评分，实际 %s", score)
		}
	})

	t.Run("正向测试: 自助练习中按权重聚合", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[3].SelectedChoices = []model.ExerciseChoice{f.inst[3].Exercise.Choices[0]}
		// 自助练习全自动评分：开放子题记 0，组合正确率 = 1×0.6 + 0×0.4
		score, err := f.context(model.EventSelfServicePractice).computeScore(&f.ass[2])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		assertScore(t, score, "6")
	})

	t.Run("正向测试: 子槽位满分按权重折算", func(t *testing.T) {
		f := newScoringFixture()
		f.sub[3].SelectedChoices = []model.ExerciseChoice{f.inst[3].Exercise.Choices[0]}
		score, err := f.context(model.EventExam).computeScore(&f.ass[3])
		if err != nil {
			t.Fatalf("评分失败: %v", err)
		}
		// 满分 10 × 60% = 6
		assertScore(t, score, "6")
	})
}

func TestOverridePrecedence(t *testing.T) {
	f := newScoringFixture()
	override := decimal.RequireFromString("1.5")
	f.ass[4].Score = &override

	// 开放题按提交内容无法评分，但覆盖分生效
	score, err := f.context(model.EventExam).resolveScore(&f.ass[4])
	if err != nil {
		t.Fatalf("评分失败: %v", err)
	}
	assertScore(t, score, "1.5")

	// 清除覆盖分后回到按提交内容推导
	f.ass[4].Score = nil
	score, err = f.context(model.EventExam).resolveScore(&f.ass[4])
	if err != nil {
		t.Fatalf("评分失败: %v", err)
	}
	if score != nil {
		t.Errorf("清除覆盖分后开放题应回到未评分，实际 %s", score)
	}
}

func TestCorrectnessRangeViolation(t *testing.T) {
	multi := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 301},
		ExerciseType: model.ExerciseMultiChoice,
		MaxScore:     decimal.NewFromInt(5),
		Choices: []model.ExerciseChoice{
			{BaseModel: model.BaseModel{ID: 31}, CorrectnessPercentage: decimal.NewFromInt(100)},
			{BaseModel: model.BaseModel{ID: 32}, CorrectnessPercentage: decimal.NewFromInt(100)},
		},
	}
	inst := []model.EventInstanceSlot{
		{BaseModel: model.BaseModel{ID: 1}, SlotNumber: 0, ExerciseID: 301, Exercise: multi},
	}
	sub := []model.ParticipationSubmissionSlot{
		{BaseModel: model.BaseModel{ID: 11}, SlotNumber: 0, SelectedChoices: multi.Choices},
	}
	ass := []model.ParticipationAssessmentSlot{
		{BaseModel: model.BaseModel{ID: 21}, SlotNumber: 0},
	}

	ac := newAssessmentContext(&model.Event{EventType: model.EventExam}, inst, sub, ass)
	_, err := ac.computeScore(&ass[0])

	var rangeErr *util.CorrectnessRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("正确率超出 [-1,1] 应报数据错误，实际 %v", err)
	}
	if rangeErr.ExerciseID != 301 {
		t.Errorf("错误应指向题目 301，实际 %d", rangeErr.ExerciseID)
	}
}

func TestScoringIdempotent(t *testing.T) {
	f := newScoringFixture()
	f.sub[0].SelectedChoices = []model.ExerciseChoice{f.inst[0].Exercise.Choices[0]}
	ac := f.context(model.EventExam)

	first, err := ac.computeScore(&f.ass[0])
	if err != nil {
		t.Fatalf("评分失败: %v", err)
	}
	second, err := ac.computeScore(&f.ass[0])
	if err != nil {
		t.Fatalf("评分失败: %v", err)
	}
	if !first.Equal(*second) {
		t.Errorf("重复评分结果不一致: %s vs %s", first, second)
	}
}

func TestAssessmentState(t *testing.T) {
	open := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 401},
		ExerciseType: model.ExerciseOpenAnswer,
		MaxScore:     decimal.NewFromInt(3),
	}
	code := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 402},
		ExerciseType: model.ExerciseCode,
		MaxScore:     decimal.NewFromInt(4),
		TestCases:    []model.ExerciseTestCase{{BaseModel: model.BaseModel{ID: 41}}},
	}
	inst := []model.EventInstanceSlot{
		{BaseModel: model.BaseModel{ID: 1}, SlotNumber: 0, ExerciseID: 401, Exercise: open},
		{BaseModel: model.BaseModel{ID: 2}, SlotNumber: 1, ExerciseID: 402, Exercise: code},
	}
	sub := []model.ParticipationSubmissionSlot{
		{BaseModel: model.BaseModel{ID: 11}, SlotNumber: 0, AnswerText: "自由发挥"},
		{BaseModel: model.BaseModel{ID: 12}, SlotNumber: 1, AnswerText: "print(42)"},
	}

	t.Run("正向测试: 全部未评分", func(t *testing.T) {
		ass := []model.ParticipationAssessmentSlot{
			{BaseModel: model.BaseModel{ID: 21}, SlotNumber: 0},
			{BaseModel: model.BaseModel{ID: 22}, SlotNumber: 1},
		}
		ac := newAssessmentContext(&model.Event{EventType: model.EventExam}, inst, sub, ass)
		state, err := ac.state()
		if err != nil {
			t.Fatalf("状态计算失败: %v", err)
		}
		if state != model.NotAssessed {
			t.Errorf("应为 %s，实际 %s", model.NotAssessed, state)
		}
	})

	t.Run("正向测试: 覆盖分使状态变为部分评分", func(t *testing.T) {
		override := decimal.NewFromInt(2)
		ass := []model.ParticipationAssessmentSlot{
			{BaseModel: model.BaseModel{ID: 21}, SlotNumber: 0, Score: &override},
			{BaseModel: model.BaseModel{ID: 22}, SlotNumber: 1},
		}
		ac := newAssessmentContext(&model.Event{EventType: model.EventExam}, inst, sub, ass)
		state, err := ac.state()
		if err != nil {
			t.Fatalf("状态计算失败: %v", err)
		}
		if state != model.PartiallyAssessed {
			t.Errorf("应为 %s，实际 %s", model.PartiallyAssessed, state)
		}
	})

	t.Run("正向测试: 全部可评分时完全评分", func(t *testing.T) {
		runSub := []model.ParticipationSubmissionSlot{
			{BaseModel: model.BaseModel{ID: 11}, SlotNumber: 0, AnswerText: "自由发挥"},
			{BaseModel: model.BaseModel{ID: 12}, SlotNumber: 1, AnswerText: "print(42)",
				ExecutionResults: json.RawMessage(`{"tests":[{"passed":true}]}`)},
		}
		ass := []model.ParticipationAssessmentSlot{
			{BaseModel: model.BaseModel{ID: 21}, SlotNumber: 0},
			{BaseModel: model.BaseModel{ID: 22}, SlotNumber: 1},
		}
		// 自助练习全自动评分，开放题记 0
		ac := newAssessmentContext(&model.Event{EventType: model.EventSelfServicePractice}, inst, runSub, ass)
		state, err := ac.state()
		if err != nil {
			t.Fatalf("状态计算失败: %v", err)
		}
		if state != model.FullyAssessed {
			t.Errorf("应为 %s，实际 %s", model.FullyAssessed, state)
		}
	})
}
