package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Participation states
const (
	ParticipationInProgress = "in_progress"
	ParticipationTurnedIn   = "turned_in"
)

type EventParticipation struct {
	BaseModel
	EventInstanceID uint           `gorm:"index;type:bigint unsigned" json:"eventInstanceId"`
	EventInstance   *EventInstance `gorm:"foreignKey:EventInstanceID" json:"eventInstance,omitempty"`
	UserID          uint           `gorm:"index;type:bigint unsigned" json:"userId"`
	User            *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`

	State             string     `gorm:"size:20;default:'in_progress'" json:"state"`
	BeginTimestamp    time.Time  `json:"beginTimestamp"`
	EndTimestamp      *time.Time `json:"endTimestamp,omitempty"`
	CurrentSlotNumber int        `gorm:"default:0" json:"currentSlotNumber"`

	Submission *ParticipationSubmission `gorm:"foreignKey:ParticipationID" json:"submission,omitempty"`
	Assessment *ParticipationAssessment `gorm:"foreignKey:ParticipationID" json:"assessment,omitempty"`
}

func (EventParticipation) TableName() string {
	return "event_participations"
}

func (p *EventParticipation) IsTurnedIn() bool {
	return p.State == ParticipationTurnedIn
}

type ParticipationSubmission struct {
	BaseModel
	ParticipationID uint `gorm:"uniqueIndex;type:bigint unsigned" json:"participationId"`

	Slots []ParticipationSubmissionSlot `gorm:"foreignKey:SubmissionID" json:"slots,omitempty"`
}

func (ParticipationSubmission) TableName() string {
	return "participation_submissions"
}

// Execution states for code-exercise submission slots
const (
	ExecutionStateIdle    = ""
	ExecutionStateRunning = "running"
	ExecutionStateDone    = "done"
)

type ParticipationSubmissionSlot struct {
	BaseModel
	SubmissionID uint  `gorm:"uniqueIndex:submission_slot_number;type:bigint unsigned" json:"submissionId"`
	ParentID     *uint `gorm:"uniqueIndex:submission_slot_number;type:bigint unsigned" json:"parentId,omitempty"`
	SlotNumber   int   `gorm:"uniqueIndex:submission_slot_number" json:"slotNumber"`

	SeenAt     *time.Time `json:"seenAt,omitempty"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`

	AnswerText string `gorm:"type:text" json:"answerText"`
	// 附件的不透明引用，文件本体由外部存储负责
	Attachment string `gorm:"size:512" json:"attachment"`

	SelectedChoices []ExerciseChoice `gorm:"many2many:submission_slot_selected_choices" json:"selectedChoices,omitempty"`

	// 最近一次沙箱运行的原始结果；缺少 tests 键表示运行失败（如编译错误）
	ExecutionResults json.RawMessage `gorm:"type:json" json:"executionResults,omitempty"`
	ExecutionState   string          `gorm:"size:20;default:''" json:"executionState"`
}

func (ParticipationSubmissionSlot) TableName() string {
	return "participation_submission_slots"
}

func (s *ParticipationSubmissionSlot) GetID() uint        { return s.ID }
func (s *ParticipationSubmissionSlot) GetParentID() *uint { return s.ParentID }
func (s *ParticipationSubmissionSlot) GetSlotNumber() int { return s.SlotNumber }

// Assessment states for a whole participation assessment
const (
	NotAssessed       = "not_assessed"
	PartiallyAssessed = "partially_assessed"
	FullyAssessed     = "fully_assessed"
)

type ParticipationAssessment struct {
	BaseModel
	ParticipationID  uint `gorm:"uniqueIndex;type:bigint unsigned" json:"participationId"`
	VisibleToStudent bool `gorm:"default:false" json:"visibleToStudent"`

	Slots []ParticipationAssessmentSlot `gorm:"foreignKey:AssessmentID" json:"slots,omitempty"`
}

func (ParticipationAssessment) TableName() string {
	return "participation_assessments"
}

type ParticipationAssessmentSlot struct {
	BaseModel
	AssessmentID uint  `gorm:"uniqueIndex:assessment_slot_number;type:bigint unsigned" json:"assessmentId"`
	ParentID     *uint `gorm:"uniqueIndex:assessment_slot_number;type:bigint unsigned" json:"parentId,omitempty"`
	SlotNumber   int   `gorm:"uniqueIndex:assessment_slot_number" json:"slotNumber"`

	Comment string `gorm:"type:text" json:"comment"`
	// 人工覆盖分；为空时按提交内容惰性推导
	Score *decimal.Decimal `gorm:"type:decimal(5,2)" json:"score,omitempty"`
}

func (ParticipationAssessmentSlot) TableName() string {
	return "participation_assessment_slots"
}

func (s *ParticipationAssessmentSlot) GetID() uint        { return s.ID }
func (s *ParticipationAssessmentSlot) GetParentID() *uint { return s.ParentID }
func (s *ParticipationAssessmentSlot) GetSlotNumber() int { return s.SlotNumber }
