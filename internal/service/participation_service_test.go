package service

import (
	"errors"
	"testing"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type fakeParticipationStore struct {
	slot          model.ParticipationSubmissionSlot
	participation model.EventParticipation
	subSlots      []model.ParticipationSubmissionSlot

	updates        int
	updatedSlot    *model.ParticipationSubmissionSlot
	updatedChoices []model.ExerciseChoice
}

func (f *fakeParticipationStore) FindSubmissionSlot(slotID uint) (*model.ParticipationSubmissionSlot, error) {
	s := f.slot
	return &s, nil
}

func (f *fakeParticipationStore) FindBySubmissionID(submissionID uint) (*model.EventParticipation, error) {
	p := f.participation
	return &p, nil
}

func (f *fakeParticipationStore) SlotsOfSubmission(submissionID uint) ([]model.ParticipationSubmissionSlot, error) {
	return f.subSlots, nil
}

func (f *fakeParticipationStore) UpdateAnswer(slot *model.ParticipationSubmissionSlot, choices []model.ExerciseChoice) error {
	f.updates++
	f.updatedSlot = slot
	f.updatedChoices = choices
	return nil
}

func (f *fakeParticipationStore) CreateWithTrees(p *model.EventParticipation, instanceSlots []model.EventInstanceSlot) error {
	return nil
}

func (f *fakeParticipationStore) FindByID(id uint) (*model.EventParticipation, error) {
	p := f.participation
	return &p, nil
}

func (f *fakeParticipationStore) MarkSeen(slotID uint, at time.Time) error { return nil }

func (f *fakeParticipationStore) TurnIn(participationID uint, at time.Time) error { return nil }

func (f *fakeParticipationStore) UpdateCursor(participationID uint, slotNumber int) error { return nil }

type fakeInstanceSource struct {
	slots []model.EventInstanceSlot
}

func (f *fakeInstanceSource) FindByID(id uint) (*model.EventInstance, error) {
	return &model.EventInstance{BaseModel: model.BaseModel{ID: id}}, nil
}

func (f *fakeInstanceSource) SlotsOfInstance(instanceID uint) ([]model.EventInstanceSlot, error) {
	return f.slots, nil
}

var answerTime = time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)

// 单个单选题槽位：提交树槽位 10 对应实例树槽位 5
func newAnswerFixture(exerciseType string) (*ParticipationService, *fakeParticipationStore) {
	exercise := &model.Exercise{
		BaseModel:    model.BaseModel{ID: 100},
		ExerciseType: exerciseType,
		Choices: []model.ExerciseChoice{
			{BaseModel: model.BaseModel{ID: 1}, ExerciseID: 100},
			{BaseModel: model.BaseModel{ID: 2}, ExerciseID: 100},
		},
	}
	store := &fakeParticipationStore{
		slot: model.ParticipationSubmissionSlot{
			BaseModel:    model.BaseModel{ID: 10},
			SubmissionID: 7,
			SlotNumber:   0,
		},
		participation: model.EventParticipation{
			BaseModel:       model.BaseModel{ID: 1},
			EventInstanceID: 2,
			State:           model.ParticipationInProgress,
		},
	}
	store.subSlots = []model.ParticipationSubmissionSlot{store.slot}
	source := &fakeInstanceSource{
		slots: []model.EventInstanceSlot{
			{
				BaseModel:       model.BaseModel{ID: 5},
				EventInstanceID: 2,
				SlotNumber:      0,
				ExerciseID:      100,
				Exercise:        exercise,
			},
		},
	}
	svc := &ParticipationService{
		Repo:         store,
		InstanceRepo: source,
		Clock:        fixedClock{at: answerTime},
	}
	return svc, store
}

func TestRecordAnswerRejectsAfterTurnIn(t *testing.T) {
	svc, store := newAnswerFixture(model.ExerciseSingleChoice)
	store.participation.State = model.ParticipationTurnedIn

	err := svc.RecordAnswer(10, AnswerPayload{SelectedChoiceIDs: []uint{1}})
	if !errors.Is(err, util.ErrParticipationTurnedIn) {
		t.Errorf("交卷后的作答应被拒绝，实际 %v", err)
	}
	if store.updates != 0 {
		t.Errorf("交卷后不应写入任何字段，实际写入 %d 次", store.updates)
	}
}

func TestRecordAnswerChoiceValidation(t *testing.T) {
	t.Run("反向测试: 选项不属于该题", func(t *testing.T) {
		svc, store := newAnswerFixture(model.ExerciseSingleChoice)
		err := svc.RecordAnswer(10, AnswerPayload{SelectedChoiceIDs: []uint{99}})
		if !errors.Is(err, util.ErrInvalidChoice) {
			t.Errorf("他题的选项应被拒绝，实际 %v", err)
		}
		if store.updates != 0 {
			t.Errorf("校验失败不应写入，实际写入 %d 次", store.updates)
		}
	})

	t.Run("反向测试: 单选题多选", func(t *testing.T) {
		svc, store := newAnswerFixture(model.ExerciseSingleChoice)
		err := svc.RecordAnswer(10, AnswerPayload{SelectedChoiceIDs: []uint{1, 2}})
		if !errors.Is(err, util.ErrSingleChoiceMultiple) {
			t.Errorf("单选题选择多项应被拒绝，实际 %v", err)
		}
		if store.updates != 0 {
			t.Errorf("校验失败不应写入，实际写入 %d 次", store.updates)
		}
	})

	t.Run("正向测试: 多选题可选多项", func(t *testing.T) {
		svc, store := newAnswerFixture(model.ExerciseMultiChoice)
		if err := svc.RecordAnswer(10, AnswerPayload{SelectedChoiceIDs: []uint{1, 2}}); err != nil {
			t.Fatalf("多选题多项作答失败: %v", err)
		}
		if len(store.updatedChoices) != 2 {
			t.Errorf("应保存两个选项，实际 %d 个", len(store.updatedChoices))
		}
	})
}

func TestRecordAnswerPersistsSelection(t *testing.T) {
	svc, store := newAnswerFixture(model.ExerciseSingleChoice)

	if err := svc.RecordAnswer(10, AnswerPayload{SelectedChoiceIDs: []uint{2}}); err != nil {
		t.Fatalf("作答失败: %v", err)
	}
	if store.updates != 1 {
		t.Fatalf("应恰好写入一次，实际 %d 次", store.updates)
	}
	if len(store.updatedChoices) != 1 || store.updatedChoices[0].ID != 2 {
		t.Errorf("保存的选项应为 2，实际 %v", store.updatedChoices)
	}
	if store.updatedSlot.AnsweredAt == nil || !store.updatedSlot.AnsweredAt.Equal(answerTime) {
		t.Errorf("作答时间应由注入时钟盖章，实际 %v", store.updatedSlot.AnsweredAt)
	}
}
