package database

import (
	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ShouldMigrate reports whether automigrate runs at boot: always outside
// release mode, in release mode only when explicitly forced.
func ShouldMigrate(mode string, force bool) bool {
	return force || mode != "release"
}

func InitDB(cfg *config.DatabaseConfig, migrate bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	if !migrate {
		return db, nil
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.Tag{},
		&model.Exercise{},
		&model.ExerciseChoice{},
		&model.ExerciseTestCase{},
		&model.Event{},
		&model.EventTemplate{},
		&model.EventTemplateRule{},
		&model.EventTemplateRuleClause{},
		&model.EventInstance{},
		&model.EventInstanceSlot{},
		&model.EventParticipation{},
		&model.ParticipationSubmission{},
		&model.ParticipationSubmissionSlot{},
		&model.ParticipationAssessment{},
		&model.ParticipationAssessmentSlot{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	return db, nil
}
