package service

import (
	"errors"
	"testing"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/util"
)

func TestCreateEventValidation(t *testing.T) {
	s := NewEventService(nil)

	t.Run("反向测试: 未知活动类型", func(t *testing.T) {
		_, err := s.CreateEvent(EventRequest{CourseID: 1, EventType: "pop_quiz"})
		var vErr *util.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("应返回校验错误，实际 %v", err)
		}
	})

	t.Run("反向测试: 开始时间晚于结束时间", func(t *testing.T) {
		begin := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
		end := begin.Add(-time.Hour)
		_, err := s.CreateEvent(EventRequest{
			CourseID:       1,
			EventType:      model.EventExam,
			BeginTimestamp: &begin,
			EndTimestamp:   &end,
		})
		var vErr *util.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("应返回校验错误，实际 %v", err)
		}
	})
}

func TestUpdateEventStateRejectsUnknownState(t *testing.T) {
	s := NewEventService(nil)
	_, err := s.UpdateEventState(1, "reopened")
	var vErr *util.ValidationError
	if !errors.As(err, &vErr) {
		t.Errorf("应返回校验错误，实际 %v", err)
	}
}

func TestEventIsOpenAt(t *testing.T) {
	s := NewEventService(nil)
	begin := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	end := begin.Add(2 * time.Hour)
	event := &model.Event{
		State:          model.EventStateOpen,
		BeginTimestamp: &begin,
		EndTimestamp:   &end,
	}

	if !s.IsOpenAt(event, begin.Add(time.Hour)) {
		t.Error("窗口内的开放活动应接受参与")
	}
	if s.IsOpenAt(event, begin.Add(-time.Minute)) {
		t.Error("开始前不应接受参与")
	}
	if s.IsOpenAt(event, end) {
		t.Error("结束时刻起不应接受参与")
	}

	event.State = model.EventStateClosed
	if s.IsOpenAt(event, begin.Add(time.Hour)) {
		t.Error("已关闭的活动不应接受参与")
	}
}
