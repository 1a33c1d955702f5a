package di

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/YoshitsuguKoike/deeflow/internal/app/config"
	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/application/workflow"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
)

type recordingSupervisor struct {
	mu       sync.Mutex
	requests []output.WorkerRequest
}

func (s *recordingSupervisor) Spawn(_ context.Context, req output.WorkerRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return 4000 + len(s.requests), nil
}

func (s *recordingSupervisor) IsAlive(int) bool                 { return true }
func (s *recordingSupervisor) Terminate(int) error              { return nil }
func (s *recordingSupervisor) WaitExit(int, time.Duration) bool { return true }

func newTestContainer(t *testing.T, format string, out *bytes.Buffer) (*Container, *recordingSupervisor) {
	t.Helper()
	home := t.TempDir()
	cfg := appconfig.NewAppConfig(appconfig.Values{
		Home:                 home,
		AgentType:            "mock",
		TimeoutSec:           30,
		MaxValidationRetries: 1,
		GitRemote:            "origin",
		StorageType:          "local",
		StderrLevel:          "error",
	}, "default", "")

	sup := &recordingSupervisor{}
	c, err := NewContainer(Config{
		App:          cfg,
		Logger:       nopLogger{},
		OutputFormat: format,
		OutputWriter: out,
		Supervisor:   sup,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, sup
}

func TestContainer_Presenter(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newTestContainer(t, "json", &buf)

	require.NoError(t, c.GetPresenter().PresentSuccess("ok", nil))
	assert.Contains(t, buf.String(), `"success": true`)
}

// A feature created through the container is executed by a worker-side
// executor built from the same container until its first approval gate.
func TestContainer_CreateFeatureAndRunWorker(t *testing.T) {
	ctx := context.Background()
	c, sup := newTestContainer(t, "cli", &bytes.Buffer{})

	out, err := c.GetFeatureUseCase().CreateFeature(ctx, dto.CreateFeatureInput{
		Name:           "Login Page",
		Description:    "users can log in",
		RepositoryPath: t.TempDir(),
		ApprovalGates:  &execution.ApprovalGates{},
		StartRun:       true,
	})
	require.NoError(t, err)
	require.True(t, out.Run.Created)
	require.Len(t, sup.requests, 1)

	req := sup.requests[0]
	assert.Equal(t, out.Run.RunID, req.RunID)
	assert.Equal(t, out.Feature.ID, req.FeatureID)
	assert.Equal(t, out.Run.ThreadID, req.ThreadID)

	executor, err := c.NewExecutor(ctx)
	require.NoError(t, err)

	outcome, err := executor.Run(ctx, workflow.RunRequest{
		RunID:         req.RunID,
		FeatureID:     req.FeatureID,
		ThreadID:      req.ThreadID,
		ApprovalGates: req.ApprovalGates,
	})
	require.NoError(t, err)
	assert.Equal(t, agentrun.StatusWaitingApproval, outcome.Status)
	assert.Equal(t, execution.NodeRequirements, outcome.Node)

	run, err := c.GetAgentRunUseCase().GetRun(ctx, req.RunID)
	require.NoError(t, err)
	assert.Equal(t, "waiting_approval", run.Status)

	approved, err := c.GetAgentRunUseCase().ApproveRun(ctx, req.RunID)
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	require.Len(t, sup.requests, 2)
	assert.True(t, sup.requests[1].ResumeFromInterrupt)
}

func TestContainer_UnknownAgentType(t *testing.T) {
	cfg := appconfig.NewAppConfig(appconfig.Values{
		Home:        t.TempDir(),
		AgentType:   "gemini",
		TimeoutSec:  30,
		StorageType: "none",
	}, "default", "")
	c, err := NewContainer(Config{App: cfg, Logger: nopLogger{}, Supervisor: &recordingSupervisor{}})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.NewExecutor(context.Background())
	assert.ErrorContains(t, err, "unknown agent type")
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
