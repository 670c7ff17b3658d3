// 手动导入示例题库脚本
//
// 创建一门示例课程，包含带标签的各类题目和一个抽题模板，
// 用于本地联调或首次部署后的冒烟验证。
//
// 用法: go run scripts/seed_catalog.go

package main

import (
	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/service"
	"exam_engine_backend/pkg/database"
	"exam_engine_backend/pkg/logger"
	"log"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	logger.InitLogger(&cfg)

	// 冒烟库可能尚未建表，种子前先迁移
	db, err := database.InitDB(&cfg.Database, true)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	course := model.Course{Name: "示例课程"}
	if err := db.Create(&course).Error; err != nil {
		log.Fatalf("创建课程失败: %v", err)
	}

	tags := []model.Tag{
		{CourseID: course.ID, Name: "loops"},
		{CourseID: course.ID, Name: "arrays"},
		{CourseID: course.ID, Name: "easy"},
	}
	for i := range tags {
		if err := db.Create(&tags[i]).Error; err != nil {
			log.Fatalf("创建标签失败: %v", err)
		}
	}

	exercises := service.NewExerciseService(repository.NewExerciseRepository(db))

	single := service.ExerciseRequest{
		CourseID:     course.ID,
		ExerciseType: model.ExerciseSingleChoice,
		Text:         "for 循环会执行几次？",
		MaxScore:     decimal.NewFromInt(2),
		TagIDs:       []uint{tags[0].ID, tags[2].ID},
		Choices: []service.ExerciseChoiceRequest{
			{Text: "10", CorrectnessPercentage: decimal.NewFromInt(100)},
			{Text: "9", CorrectnessPercentage: decimal.Zero},
			{Text: "11", CorrectnessPercentage: decimal.NewFromInt(-50)},
		},
	}
	if _, err := exercises.CreateExercise(single); err != nil {
		log.Fatalf("创建单选题失败: %v", err)
	}

	code := service.ExerciseRequest{
		CourseID:     course.ID,
		ExerciseType: model.ExerciseCode,
		Text:         "实现 reverse(xs)，返回倒序的列表。",
		MaxScore:     decimal.NewFromInt(5),
		TagIDs:       []uint{tags[1].ID},
		TestCases: []service.ExerciseTestCaseRequest{
			{Code: "reverse([1,2,3]) == [3,2,1]", TestCaseType: model.TestCaseShowCodeShowText},
			{Code: "reverse([]) == []", TestCaseType: model.TestCaseHidden},
		},
	}
	if _, err := exercises.CreateExercise(code); err != nil {
		log.Fatalf("创建编程题失败: %v", err)
	}

	templates := service.NewEventTemplateService(repository.NewEventRepository(db))
	maxScore := decimal.NewFromInt(3)
	_, err = templates.CreateTemplate(course.ID, "示例模板", nil, []service.TemplateRuleRequest{
		{RuleType: model.RuleTagBased, MaxScore: &maxScore, TagClauses: [][]uint{{tags[0].ID, tags[2].ID}, {tags[1].ID}}},
		{RuleType: model.RuleFullyRandom},
	})
	if err != nil {
		log.Fatalf("创建模板失败: %v", err)
	}

	log.Println("示例题库导入完成！")
}
