package repository

import (
	"exam_engine_backend/internal/model"

	"gorm.io/gorm"
)

// SlotPlan is the in-memory shape of one instance slot before persistence,
// built by the materializer from a picked exercise and its sub-exercise tree.
type SlotPlan struct {
	Exercise         model.Exercise
	SlotNumber       int
	PopulatingRuleID *uint
	Children         []SlotPlan
}

type EventInstanceRepository struct {
	DB *gorm.DB
}

func NewEventInstanceRepository(db *gorm.DB) *EventInstanceRepository {
	return &EventInstanceRepository{DB: db}
}

func (r *EventInstanceRepository) FindByID(id uint) (*model.EventInstance, error) {
	var inst model.EventInstance
	err := r.DB.Preload("Event").First(&inst, id).Error
	return &inst, err
}

// CreateWithSlots persists the instance and its whole slot tree in a single
// transaction: either every slot row is committed or none is.
func (r *EventInstanceRepository) CreateWithSlots(instance *model.EventInstance, plans []SlotPlan) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(instance).Error; err != nil {
			return err
		}
		for i := range plans {
			if err := createSlotPlan(tx, instance.ID, nil, &plans[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func createSlotPlan(tx *gorm.DB, instanceID uint, parentID *uint, plan *SlotPlan) error {
	slot := model.EventInstanceSlot{
		EventInstanceID:  instanceID,
		ParentID:         parentID,
		SlotNumber:       plan.SlotNumber,
		ExerciseID:       plan.Exercise.ID,
		PopulatingRuleID: plan.PopulatingRuleID,
	}
	if err := tx.Create(&slot).Error; err != nil {
		return err
	}
	for i := range plan.Children {
		if err := createSlotPlan(tx, instanceID, &slot.ID, &plan.Children[i]); err != nil {
			return err
		}
	}
	return nil
}

// SlotsOfInstance returns the flat slot arena of an instance, each slot with
// its exercise (choices and test cases included) and populating rule.
func (r *EventInstanceRepository) SlotsOfInstance(instanceID uint) ([]model.EventInstanceSlot, error) {
	var slots []model.EventInstanceSlot
	err := r.DB.
		Preload("Exercise").
		Preload("Exercise.Choices").
		Preload("Exercise.TestCases").
		Preload("PopulatingRule").
		Where("event_instance_id = ?", instanceID).
		Order("parent_id asc, slot_number asc").
		Find(&slots).Error
	return slots, err
}
