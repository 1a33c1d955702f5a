package presenter_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/YoshitsuguKoike/deeflow/internal/adapter/presenter"
	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

func int64p(v int64) *int64 { return &v }
func strp(v string) *string { return &v }

func TestCLIPresenter_PresentSuccess(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		message     string
		data        interface{}
		wantContain []string
	}{
		{
			name:    "feature",
			message: "Feature created",
			data: &dto.FeatureDTO{
				ID: "f-1", Slug: "login-page", Name: "Login Page", Lifecycle: "Started",
				Branch: "feat/login-page", ApprovalGates: &execution.ApprovalGates{AllowPRD: true},
			},
			wantContain: []string{"✓ Feature created", "Feature: Login Page", "Slug: login-page", "Gates: prd=true plan=false merge=false"},
		},
		{
			name:        "autonomous run",
			data:        &dto.AgentRunDTO{ID: "run-1", Status: "running", Phase: "research", CreatedAt: created},
			wantContain: []string{"Run: run-1", "Status: running", "Phase: research", "Gates: autonomous"},
		},
		{
			name: "run list",
			data: []*dto.AgentRunDTO{
				{ID: "run-1", FeatureID: "f-1", Status: "completed", CreatedAt: created},
				{ID: "run-2", FeatureID: "f-1", Status: "waiting_approval", Phase: "plan", CreatedAt: created},
			},
			wantContain: []string{"Total: 2 run(s)", "run-1", "waiting_approval", "plan"},
		},
		{
			name: "step tree",
			data: []*dto.ExecutionStepDTO{
				{ID: "s1", Name: "analyze", Type: "phase", Status: "completed", SequenceNumber: 1, DurationMs: int64p(1500)},
				{ID: "s2", ParentID: strp("s1"), Name: "agent", Type: "agent-call", Status: "completed", SequenceNumber: 2},
			},
			wantContain: []string{"1. analyze [phase] completed 1.5s", "  2. agent [agent-call] completed -"},
		},
		{
			name:        "timings",
			data:        []*dto.PhaseTimingDTO{{Phase: "plan", StartedAt: created, DurationMs: int64p(2000), ApprovalWaitMs: int64p(60000)}},
			wantContain: []string{"PHASE", "plan", "2s", "1m0s"},
		},
		{
			name:        "rejection with warning",
			data:        &dto.RejectRunOutput{Rejected: true, RunID: "run-1", Phase: "plan", Iteration: 5, IterationWarning: true, PID: 77},
			wantContain: []string{"Rejected plan of run run-1 (iteration 5)", "rejected 5 times"},
		},
		{
			name:        "refused approval",
			data:        &dto.ApproveRunOutput{RunID: "run-1", Reason: "run is not waiting for approval", Code: "INVALID_RUN_STATE", CurrentStatus: "running"},
			wantContain: []string{"✗ run is not waiting for approval [INVALID_RUN_STATE] (status: running)"},
		},
		{
			name:        "reconcile",
			data:        &dto.ReconcileOutput{Checked: 3, Interrupted: []string{"run-9"}},
			wantContain: []string{"Checked 3 running run(s), interrupted 1", "- run-9"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			p := presenter.NewCLIPresenter(buf)

			assert.NoError(t, p.PresentSuccess(tt.message, tt.data))
			for _, want := range tt.wantContain {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}

func TestCLIPresenter_PresentError(t *testing.T) {
	buf := &bytes.Buffer{}
	p := presenter.NewCLIPresenter(buf)

	err := p.PresentError(execution.ErrFeatureNotFound)
	assert.Equal(t, execution.ErrFeatureNotFound, err)
	assert.Contains(t, buf.String(), "✗ Error ["+execution.ErrFeatureNotFound.Code+"]")
}
