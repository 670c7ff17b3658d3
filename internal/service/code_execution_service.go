package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"exam_engine_backend/internal/model"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/util"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"
	"exam_engine_backend/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// ExecutionJob tracks one asynchronous code run for one submission slot.
type ExecutionJob struct {
	ID     string `json:"id"`
	SlotID uint   `json:"slotId"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	cancel context.CancelFunc
}

// executionStore is the slice of the participation repository the execution
// pipeline writes through.
type executionStore interface {
	FindSubmissionSlot(id uint) (*model.ParticipationSubmissionSlot, error)
	FindBySubmissionID(submissionID uint) (*model.EventParticipation, error)
	SetExecutionState(slotID uint, state string) error
	WriteExecutionResults(slotID uint, results json.RawMessage) error
}

type exerciseResolver interface {
	ExerciseForSubmissionSlot(p *model.EventParticipation, slot *model.ParticipationSubmissionSlot) (*model.Exercise, error)
}

// CodeExecutionService runs submitted code asynchronously. Each submission
// slot has at most one in-flight job; results land in the slot's execution
// results column exactly once, whether the run succeeded or failed.
type CodeExecutionService struct {
	Repo          executionStore
	Participation exerciseResolver
	Runner        CodeRunner
	Limiter       *rate.Limiter
	Timeout       time.Duration
	// 已结束作业在注册表中保留的条数上限，0 表示不清理
	HistoryLimit int

	mu        sync.Mutex
	jobs      map[string]*ExecutionJob
	slotToJob map[uint]string
	finished  []string
	wg        sync.WaitGroup
}

func NewCodeExecutionService(repo *repository.ParticipationRepository, participation *ParticipationService, runner CodeRunner, limiter *rate.Limiter) *CodeExecutionService {
	return &CodeExecutionService{
		Repo:          repo,
		Participation: participation,
		Runner:        runner,
		Limiter:       limiter,
		Timeout:       2 * time.Minute,
		HistoryLimit:  256,
		jobs:          make(map[string]*ExecutionJob),
		slotToJob:     make(map[uint]string),
	}
}

// RunCode queues the slot's current answer for execution and returns the job
// id. Rejected when the participation is turned in, the slot's exercise is
// not a code exercise, or a run for the slot is already in flight.
func (s *CodeExecutionService) RunCode(ctx context.Context, slotID uint) (string, error) {
	_, span := tracing.StartSpan(ctx, "execution.RunCode")
	defer span.End()

	slot, err := s.Repo.FindSubmissionSlot(slotID)
	if err != nil {
		return "", err
	}
	p, err := s.Repo.FindBySubmissionID(slot.SubmissionID)
	if err != nil {
		return "", err
	}
	if p.IsTurnedIn() {
		return "", util.ErrParticipationTurnedIn
	}

	exercise, err := s.Participation.ExerciseForSubmissionSlot(p, slot)
	if err != nil {
		return "", err
	}
	if exercise.ExerciseType != model.ExerciseCode {
		return "", util.ErrNotCodeExercise
	}

	s.mu.Lock()
	if _, busy := s.slotToJob[slotID]; busy {
		s.mu.Unlock()
		return "", util.ErrExecutionAlreadyQueued
	}
	// 作业用独立的超时上下文，不随请求上下文取消
	jobCtx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	job := &ExecutionJob{
		ID:     uuid.New().String(),
		SlotID: slotID,
		Status: JobPending,
		cancel: cancel,
	}
	s.jobs[job.ID] = job
	s.slotToJob[slotID] = job.ID
	s.mu.Unlock()

	if err := s.Repo.SetExecutionState(slotID, model.ExecutionStateRunning); err != nil {
		s.finishJob(job, JobFailed, err.Error())
		return "", err
	}

	req := ExecutionRequest{Code: slot.AnswerText}
	for _, tc := range exercise.TestCases {
		req.TestCases = append(req.TestCases, ExecutionTestCase{ID: tc.ID, Assertion: tc.Code})
	}

	s.wg.Add(1)
	go s.execute(jobCtx, job, req)

	logger.Log.Info("code execution queued",
		zap.String("jobId", job.ID),
		zap.Uint("slotId", slotID),
		zap.Int("testcases", len(req.TestCases)))
	return job.ID, nil
}

func (s *CodeExecutionService) execute(ctx context.Context, job *ExecutionJob, req ExecutionRequest) {
	defer s.wg.Done()
	defer job.cancel()
	start := time.Now()

	s.setStatus(job, JobRunning)
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			s.writeFailure(job, err)
			return
		}
	}

	results, err := s.Runner.Execute(ctx, req)
	if err != nil {
		s.writeFailure(job, err)
		return
	}

	if err := s.Repo.WriteExecutionResults(job.SlotID, results); err != nil {
		logger.Log.Error("failed to persist execution results",
			zap.String("jobId", job.ID), zap.Error(err))
		s.finishJob(job, JobFailed, err.Error())
		monitoring.CodeExecutions.WithLabelValues("failed").Inc()
		return
	}

	s.finishJob(job, JobDone, "")
	monitoring.CodeExecutions.WithLabelValues("done").Inc()
	monitoring.CodeExecutionDuration.Observe(time.Since(start).Seconds())
}

// writeFailure records a runner failure as the slot's execution result so
// the slot still transitions out of the running state and can be scored.
func (s *CodeExecutionService) writeFailure(job *ExecutionJob, cause error) {
	payload, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := s.Repo.WriteExecutionResults(job.SlotID, payload); err != nil {
		logger.Log.Error("failed to persist execution failure",
			zap.String("jobId", job.ID), zap.Error(err))
	}
	s.finishJob(job, JobFailed, cause.Error())
	monitoring.CodeExecutions.WithLabelValues("failed").Inc()
	logger.Log.Warn("code execution failed",
		zap.String("jobId", job.ID),
		zap.Uint("slotId", job.SlotID),
		zap.Error(cause))
}

func (s *CodeExecutionService) setStatus(job *ExecutionJob, status string) {
	s.mu.Lock()
	job.Status = status
	s.mu.Unlock()
}

func (s *CodeExecutionService) finishJob(job *ExecutionJob, status, errMsg string) {
	s.mu.Lock()
	job.Status = status
	job.Error = errMsg
	delete(s.slotToJob, job.SlotID)
	// 最旧的已结束作业先被清出注册表
	if s.HistoryLimit > 0 {
		s.finished = append(s.finished, job.ID)
		for len(s.finished) > s.HistoryLimit {
			delete(s.jobs, s.finished[0])
			s.finished = s.finished[1:]
		}
	}
	s.mu.Unlock()
}

// Job returns a snapshot of the job with the given id.
func (s *CodeExecutionService) Job(jobID string) (ExecutionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ExecutionJob{}, util.ErrJobNotFound
	}
	return *job, nil
}

// JobBySlot returns the in-flight job for a submission slot, if any.
func (s *CodeExecutionService) JobBySlot(slotID uint) (ExecutionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobID, ok := s.slotToJob[slotID]
	if !ok {
		return ExecutionJob{}, util.ErrJobNotFound
	}
	return *s.jobs[jobID], nil
}

// CancelJob aborts an in-flight run. The slot is released for a new run; a
// failure payload is written by the aborted goroutine.
func (s *CodeExecutionService) CancelJob(jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return util.ErrJobNotFound
	}
	job.cancel()
	return nil
}

// Shutdown waits for in-flight executions to finish writing their results.
func (s *CodeExecutionService) Shutdown() {
	s.wg.Wait()
}
