package service

import (
	"os"
	"testing"

	"exam_engine_backend/pkg/logger"

	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

func uintPtr(v uint) *uint { return &v }

func intPtr(v int) *int { return &v }
