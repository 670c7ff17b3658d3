package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventSelfServicePractice = "self_service_practice"
	EventInClassPractice     = "in_class_practice"
	EventExam                = "exam"
	EventHomeAssignment      = "home_assignment"
	EventExternal            = "external"
)

// Event states
const (
	EventStateDraft   = "draft"
	EventStatePlanned = "planned"
	EventStateOpen    = "open"
	EventStateClosed  = "closed"
)

type Event struct {
	BaseModel
	CourseID       uint           `gorm:"index;type:bigint unsigned" json:"courseId"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	Instructions   string         `gorm:"type:text" json:"instructions"`
	CreatorID      *uint          `gorm:"index;type:bigint unsigned" json:"creatorId,omitempty"`
	EventType      string         `gorm:"size:50;not null" json:"eventType"`
	State          string         `gorm:"size:20;default:'draft'" json:"state"`
	BeginTimestamp *time.Time     `json:"beginTimestamp,omitempty"`
	EndTimestamp   *time.Time     `json:"endTimestamp,omitempty"`
	TemplateID     *uint          `gorm:"index;type:bigint unsigned" json:"templateId,omitempty"`
	Template       *EventTemplate `gorm:"foreignKey:TemplateID" json:"template,omitempty"`

	ExercisesShownAtATime *int `json:"exercisesShownAtATime,omitempty"`
	AllowGoingBack        bool `gorm:"default:true" json:"allowGoingBack"`
}

func (Event) TableName() string {
	return "events"
}

type EventTemplate struct {
	BaseModel
	CourseID  uint   `gorm:"index;type:bigint unsigned" json:"courseId"`
	Name      string `gorm:"size:255" json:"name"`
	Public    bool   `gorm:"default:false" json:"public"`
	CreatorID *uint  `gorm:"index;type:bigint unsigned" json:"creatorId,omitempty"`

	Rules []EventTemplateRule `gorm:"foreignKey:TemplateID" json:"rules,omitempty"`
}

func (EventTemplate) TableName() string {
	return "event_templates"
}

// Rule types
const (
	RuleTagBased    = "tag_based"
	RuleIDBased     = "id_based"
	RuleFullyRandom = "fully_random"
)

type EventTemplateRule struct {
	BaseModel
	TemplateID       uint   `gorm:"uniqueIndex:tpl_target_slot;type:bigint unsigned" json:"templateId"`
	RuleType         string `gorm:"size:20;not null" json:"ruleType"`
	TargetSlotNumber int    `gorm:"uniqueIndex:tpl_target_slot" json:"targetSlotNumber"`
	// 该槽位的满分；为空时回退到被选题目自身的 MaxScore
	MaxScore *decimal.Decimal `gorm:"type:decimal(5,2)" json:"maxScore,omitempty"`

	Exercises []Exercise                `gorm:"many2many:event_template_rule_exercises" json:"exercises,omitempty"`
	Clauses   []EventTemplateRuleClause `gorm:"foreignKey:RuleID" json:"clauses,omitempty"`
}

func (EventTemplateRule) TableName() string {
	return "event_template_rules"
}

// EventTemplateRuleClause is one OR-branch of a tag-based rule; an exercise
// satisfies the clause by carrying all of its tags.
type EventTemplateRuleClause struct {
	BaseModel
	RuleID uint  `gorm:"index;type:bigint unsigned" json:"ruleId"`
	Tags   []Tag `gorm:"many2many:event_template_rule_clause_tags" json:"tags,omitempty"`
}

func (EventTemplateRuleClause) TableName() string {
	return "event_template_rule_clauses"
}
