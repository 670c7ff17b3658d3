package repository

import (
	"exam_engine_backend/internal/model"

	"gorm.io/gorm"
)

type EventRepository struct {
	DB *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

func (r *EventRepository) Create(e *model.Event) error {
	return r.DB.Create(e).Error
}

func (r *EventRepository) FindByID(id uint) (*model.Event, error) {
	var e model.Event
	err := r.DB.First(&e, id).Error
	return &e, err
}

func (r *EventRepository) Update(e *model.Event) error {
	return r.DB.Save(e).Error
}

// FindTemplateWithRules loads a template with its rules in target-slot order,
// each rule carrying its explicit exercises and tag clauses.
func (r *EventRepository) FindTemplateWithRules(templateID uint) (*model.EventTemplate, error) {
	var t model.EventTemplate
	err := r.DB.
		Preload("Rules", func(db *gorm.DB) *gorm.DB {
			return db.Order("target_slot_number asc")
		}).
		Preload("Rules.Exercises").
		Preload("Rules.Clauses.Tags").
		First(&t, templateID).Error
	return &t, err
}

// CreateTemplateWithTx persists a template and its rules atomically.
func (r *EventRepository) CreateTemplateWithTx(fn func(tx *gorm.DB) error) error {
	return r.DB.Transaction(fn)
}
