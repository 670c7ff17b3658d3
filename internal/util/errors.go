package util

import (
	"errors"
	"fmt"
)

var (
	ErrExerciseNotFound       = errors.New("exercise not found")
	ErrTemplateNotFound       = errors.New("template not found")
	ErrEventNotFound          = errors.New("event not found")
	ErrParticipationNotFound  = errors.New("participation not found")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrParticipationTurnedIn  = errors.New("该参与已交卷，不可再修改")
	ErrAlreadyTurnedIn        = errors.New("该参与已交卷，不可重复交卷")
	ErrCannotGoBack           = errors.New("当前活动不允许回到上一题")
	ErrInvalidChoice          = errors.New("所选选项不属于该题目")
	ErrSingleChoiceMultiple   = errors.New("单选题只能选择一个选项")
	ErrNotCodeExercise        = errors.New("该槽位不是编程题，无法执行代码")
	ErrExecutionAlreadyQueued = errors.New("该槽位已有正在执行的任务")
	ErrJobNotFound            = errors.New("execution job not found")

	// ErrSlotTreeMismatch signals non-isomorphic slot trees: a materializer
	// bug, never a user-facing validation error.
	ErrSlotTreeMismatch = errors.New("slot trees are not isomorphic")
)

// ConfigurationError is an authoring fault: the template cannot be satisfied
// by the catalog (or composite weights are broken). It aborts the triggering
// operation and carries enough detail to fix the authoring data.
type ConfigurationError struct {
	TemplateID uint
	RuleID     uint
	TargetSlot int
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("template %d misconfigured: rule %d (target slot %d): %s",
		e.TemplateID, e.RuleID, e.TargetSlot, e.Reason)
}

// CorrectnessRangeError is an authoring-data-integrity fault: a computed
// correctness fell outside [-1, 1]. Surfaced, never clamped.
type CorrectnessRangeError struct {
	ExerciseID  uint
	Correctness string
}

func (e *CorrectnessRangeError) Error() string {
	return fmt.Sprintf("invalid correctness %s for exercise %d: weights misconfigured",
		e.Correctness, e.ExerciseID)
}

// ValidationError 表示创建题目/规则时违反了类型约束
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
