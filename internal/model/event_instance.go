package model

type EventInstance struct {
	BaseModel
	EventID uint   `gorm:"index;type:bigint unsigned" json:"eventId"`
	Event   *Event `gorm:"foreignKey:EventID" json:"event,omitempty"`

	Slots []EventInstanceSlot `gorm:"foreignKey:EventInstanceID" json:"slots,omitempty"`
}

func (EventInstance) TableName() string {
	return "event_instances"
}

// EventInstanceSlot binds one exercise to one numbered position of an event
// instance. Base slots have no parent; sub-slots mirror the exercise's
// sub-exercise positions.
type EventInstanceSlot struct {
	BaseModel
	EventInstanceID uint      `gorm:"uniqueIndex:instance_slot_number;type:bigint unsigned" json:"eventInstanceId"`
	ParentID        *uint     `gorm:"uniqueIndex:instance_slot_number;type:bigint unsigned" json:"parentId,omitempty"`
	SlotNumber      int       `gorm:"uniqueIndex:instance_slot_number" json:"slotNumber"`
	ExerciseID      uint      `gorm:"index;type:bigint unsigned" json:"exerciseId"`
	Exercise        *Exercise `gorm:"foreignKey:ExerciseID" json:"exercise,omitempty"`

	// 仅基础槽位由模板规则填充
	PopulatingRuleID *uint              `gorm:"index;type:bigint unsigned" json:"populatingRuleId,omitempty"`
	PopulatingRule   *EventTemplateRule `gorm:"foreignKey:PopulatingRuleID" json:"populatingRule,omitempty"`
}

func (EventInstanceSlot) TableName() string {
	return "event_instance_slots"
}

func (s *EventInstanceSlot) GetID() uint        { return s.ID }
func (s *EventInstanceSlot) GetParentID() *uint { return s.ParentID }
func (s *EventInstanceSlot) GetSlotNumber() int { return s.SlotNumber }
