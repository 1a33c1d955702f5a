package agentrun

import (
	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/step"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/timing"
)

func toRunDTO(run *agentrun.AgentRun) *dto.AgentRunDTO {
	return &dto.AgentRunDTO{
		ID:            run.ID,
		FeatureID:     run.FeatureID,
		AgentType:     run.AgentType,
		AgentName:     run.AgentName,
		Status:        run.Status.String(),
		ThreadID:      run.ThreadID,
		Phase:         run.LastPhase(),
		PID:           run.PID,
		Result:        run.Result,
		Error:         run.Error,
		ApprovalGates: run.ApprovalGates,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
	}
}

func toStepDTO(s *step.ExecutionStep) *dto.ExecutionStepDTO {
	return &dto.ExecutionStepDTO{
		ID:             s.ID,
		AgentRunID:     s.AgentRunID,
		ParentID:       s.ParentID,
		Name:           s.Name,
		Type:           string(s.Type),
		Status:         string(s.Status),
		SequenceNumber: s.SequenceNumber,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		DurationMs:     s.DurationMs,
		Outcome:        s.Outcome,
		Metadata:       s.Metadata,
	}
}

func toTimingDTO(t *timing.PhaseTiming) *dto.PhaseTimingDTO {
	return &dto.PhaseTimingDTO{
		ID:                t.ID,
		AgentRunID:        t.AgentRunID,
		Phase:             t.Phase,
		StartedAt:         t.StartedAt,
		CompletedAt:       t.CompletedAt,
		DurationMs:        t.DurationMs,
		WaitingApprovalAt: t.WaitingApprovalAt,
		ApprovalWaitMs:    t.ApprovalWaitMs,
	}
}
