package repository

import (
	"exam_engine_backend/internal/model"

	"gorm.io/gorm"
)

type ExerciseRepository struct {
	DB *gorm.DB
}

func NewExerciseRepository(db *gorm.DB) *ExerciseRepository {
	return &ExerciseRepository{DB: db}
}

func (r *ExerciseRepository) FindByID(id uint) (*model.Exercise, error) {
	var e model.Exercise
	err := r.DB.Preload("Tags").Preload("Choices").Preload("TestCases").
		First(&e, id).Error
	return &e, err
}

// BaseExercisesByCourse returns the base exercises (no parent) of a course
// with their tags, the candidate pool of the rule engine.
func (r *ExerciseRepository) BaseExercisesByCourse(courseID uint) ([]model.Exercise, error) {
	var es []model.Exercise
	err := r.DB.Preload("Tags").
		Where("course_id = ? AND parent_id IS NULL", courseID).
		Order("id asc").
		Find(&es).Error
	return es, err
}

// ExercisesByCourse returns every exercise of a course, base and sub alike,
// as a flat arena for index-based tree walks.
func (r *ExerciseRepository) ExercisesByCourse(courseID uint) ([]model.Exercise, error) {
	var es []model.Exercise
	err := r.DB.Where("course_id = ?", courseID).
		Order("parent_id asc, child_position asc, id asc").
		Find(&es).Error
	return es, err
}

// CreateWithTx runs the whole type-dependent creation (exercise plus choices,
// test cases and expanded sub-exercises) inside one transaction.
func (r *ExerciseRepository) CreateWithTx(fn func(tx *gorm.DB) error) error {
	return r.DB.Transaction(fn)
}

func (r *ExerciseRepository) NextChildPosition(parentID uint) (int, error) {
	var max *int
	err := r.DB.Model(&model.Exercise{}).
		Where("parent_id = ?", parentID).
		Select("MAX(child_position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}
