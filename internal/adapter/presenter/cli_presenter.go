package presenter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

// CLIPresenter implements output.Presenter for terminal output
type CLIPresenter struct {
	output io.Writer
}

// NewCLIPresenter creates a new CLI presenter
func NewCLIPresenter(output io.Writer) output.Presenter {
	return &CLIPresenter{output: output}
}

// PresentSuccess presents a successful result
func (p *CLIPresenter) PresentSuccess(message string, data interface{}) error {
	if message != "" {
		fmt.Fprintf(p.output, "✓ %s\n", message)
	}

	switch v := data.(type) {
	case nil:
		return nil
	case *dto.FeatureDTO:
		p.presentFeature(v)
	case *dto.CreateFeatureOutput:
		p.presentFeature(&v.Feature)
		if v.Run != nil {
			p.presentCreateRun(v.Run)
		}
	case []*dto.FeatureDTO:
		p.presentFeatureList(v)
	case *dto.AgentRunDTO:
		p.presentRun(v)
	case []*dto.AgentRunDTO:
		p.presentRunList(v)
	case []*dto.ExecutionStepDTO:
		p.presentSteps(v)
	case []*dto.PhaseTimingDTO:
		p.presentTimings(v)
	case *dto.CreateRunOutput:
		p.presentCreateRun(v)
	case *dto.ApproveRunOutput:
		p.presentApprove(v)
	case *dto.RejectRunOutput:
		p.presentReject(v)
	case *dto.DeleteFeatureRunOutput:
		p.presentDelete(v)
	case *dto.ResumeRunOutput:
		p.presentResume(v)
	case *dto.ReconcileOutput:
		fmt.Fprintf(p.output, "Checked %d running run(s), interrupted %d\n", v.Checked, len(v.Interrupted))
		for _, id := range v.Interrupted {
			fmt.Fprintf(p.output, "  - %s\n", id)
		}
	default:
		// Fallback for unknown types
		fmt.Fprintf(p.output, "%+v\n", data)
	}
	return nil
}

// PresentError presents an error
func (p *CLIPresenter) PresentError(err error) error {
	if code := execution.CodeOf(err); code != "" {
		fmt.Fprintf(p.output, "✗ Error [%s]: %v\n", code, err)
		return err
	}
	fmt.Fprintf(p.output, "✗ Error: %v\n", err)
	return err
}

func (p *CLIPresenter) presentFeature(f *dto.FeatureDTO) {
	fmt.Fprintf(p.output, "Feature: %s\n", f.Name)
	fmt.Fprintf(p.output, "ID: %s\n", f.ID)
	fmt.Fprintf(p.output, "Slug: %s\n", f.Slug)
	fmt.Fprintf(p.output, "Lifecycle: %s\n", f.Lifecycle)
	fmt.Fprintf(p.output, "Repository: %s\n", f.RepositoryPath)
	fmt.Fprintf(p.output, "Branch: %s\n", f.Branch)
	if f.WorktreePath != "" {
		fmt.Fprintf(p.output, "Worktree: %s\n", f.WorktreePath)
	}
	if f.SpecPath != "" {
		fmt.Fprintf(p.output, "Spec: %s\n", f.SpecPath)
	}
	fmt.Fprintf(p.output, "Gates: %s\n", formatGates(f.ApprovalGates))
	fmt.Fprintf(p.output, "Push: %t, Open PR: %t\n", f.Push, f.OpenPR)
	if f.CurrentAgentRunID != "" {
		fmt.Fprintf(p.output, "Current run: %s\n", f.CurrentAgentRunID)
	}
	if f.DeletedAt != nil {
		fmt.Fprintf(p.output, "Deleted: %s\n", formatTime(f.DeletedAt))
	}
}

func (p *CLIPresenter) presentFeatureList(features []*dto.FeatureDTO) {
	fmt.Fprintf(p.output, "Total: %d feature(s)\n", len(features))
	if len(features) == 0 {
		return
	}
	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tLIFECYCLE\tBRANCH\tCURRENT RUN\tCREATED")
	for _, f := range features {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Slug, f.Lifecycle, f.Branch, orDash(f.CurrentAgentRunID), formatTime(&f.CreatedAt))
	}
	w.Flush()
}

func (p *CLIPresenter) presentRun(r *dto.AgentRunDTO) {
	fmt.Fprintf(p.output, "Run: %s\n", r.ID)
	fmt.Fprintf(p.output, "Feature: %s\n", r.FeatureID)
	fmt.Fprintf(p.output, "Status: %s\n", r.Status)
	if r.Phase != "" {
		fmt.Fprintf(p.output, "Phase: %s\n", r.Phase)
	}
	fmt.Fprintf(p.output, "Thread: %s\n", r.ThreadID)
	fmt.Fprintf(p.output, "Agent: %s\n", r.AgentType)
	if r.PID != nil {
		fmt.Fprintf(p.output, "PID: %d\n", *r.PID)
	}
	fmt.Fprintf(p.output, "Gates: %s\n", formatGates(r.ApprovalGates))
	if r.StartedAt != nil {
		fmt.Fprintf(p.output, "Started: %s\n", formatTime(r.StartedAt))
	}
	if r.CompletedAt != nil {
		fmt.Fprintf(p.output, "Completed: %s\n", formatTime(r.CompletedAt))
	}
	if r.Error != "" {
		fmt.Fprintf(p.output, "\nError: %s\n", r.Error)
	}
	if r.Result != "" {
		fmt.Fprintf(p.output, "\nResult:\n%s\n", r.Result)
	}
}

func (p *CLIPresenter) presentRunList(runs []*dto.AgentRunDTO) {
	fmt.Fprintf(p.output, "Total: %d run(s)\n", len(runs))
	if len(runs) == 0 {
		return
	}
	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFEATURE\tSTATUS\tPHASE\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.FeatureID, r.Status, orDash(r.Phase), formatTime(&r.CreatedAt))
	}
	w.Flush()
}

// presentSteps prints the step tree, children indented under their phase
func (p *CLIPresenter) presentSteps(steps []*dto.ExecutionStepDTO) {
	children := make(map[string][]*dto.ExecutionStepDTO)
	var roots []*dto.ExecutionStepDTO
	for _, s := range steps {
		if s.ParentID == nil {
			roots = append(roots, s)
			continue
		}
		children[*s.ParentID] = append(children[*s.ParentID], s)
	}

	var walk func(s *dto.ExecutionStepDTO, depth int)
	walk = func(s *dto.ExecutionStepDTO, depth int) {
		fmt.Fprintf(p.output, "%s%d. %s [%s] %s %s\n",
			strings.Repeat("  ", depth), s.SequenceNumber, s.Name, s.Type, s.Status, formatDuration(s.DurationMs))
		for _, c := range children[s.ID] {
			walk(c, depth+1)
		}
	}
	for _, s := range roots {
		walk(s, 0)
	}
}

func (p *CLIPresenter) presentTimings(timings []*dto.PhaseTimingDTO) {
	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tSTARTED\tDURATION\tAPPROVAL WAIT")
	for _, t := range timings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Phase, formatTime(&t.StartedAt), formatDuration(t.DurationMs), formatDuration(t.ApprovalWaitMs))
	}
	w.Flush()
}

func (p *CLIPresenter) presentCreateRun(o *dto.CreateRunOutput) {
	if !o.Created {
		p.refused(o.Reason, o.Code, "")
		if o.RunID != "" {
			fmt.Fprintf(p.output, "Active run: %s\n", o.RunID)
		}
		return
	}
	fmt.Fprintf(p.output, "Run %s started (pid %d)\n", o.RunID, o.PID)
}

func (p *CLIPresenter) presentApprove(o *dto.ApproveRunOutput) {
	if !o.Approved {
		p.refused(o.Reason, o.Code, o.CurrentStatus)
		return
	}
	fmt.Fprintf(p.output, "Approved %s of run %s, worker pid %d\n", o.Phase, o.RunID, o.PID)
	if o.ApprovalWaitMs != nil {
		fmt.Fprintf(p.output, "Waited %s for approval\n", formatDuration(o.ApprovalWaitMs))
	}
}

func (p *CLIPresenter) presentReject(o *dto.RejectRunOutput) {
	if !o.Rejected {
		p.refused(o.Reason, o.Code, o.CurrentStatus)
		return
	}
	fmt.Fprintf(p.output, "Rejected %s of run %s (iteration %d), worker pid %d\n", o.Phase, o.RunID, o.Iteration, o.PID)
	if o.IterationWarning {
		fmt.Fprintf(p.output, "⚠ %s has been rejected %d times\n", o.Phase, o.Iteration)
	}
}

func (p *CLIPresenter) presentDelete(o *dto.DeleteFeatureRunOutput) {
	if !o.Deleted {
		p.refused(o.Reason, o.Code, "")
		return
	}
	fmt.Fprintf(p.output, "Deleted feature %s\n", o.FeatureID)
	if o.RunID != "" {
		fmt.Fprintf(p.output, "Run %s: signalled=%t cancelled=%t\n", o.RunID, o.Signalled, o.Cancelled)
	}
}

func (p *CLIPresenter) presentResume(o *dto.ResumeRunOutput) {
	if !o.Resumed {
		p.refused(o.Reason, o.Code, o.CurrentStatus)
		return
	}
	fmt.Fprintf(p.output, "Run %s resumes %s (pid %d)\n", o.RunID, o.PreviousRunID, o.PID)
}

func (p *CLIPresenter) refused(reason, code, status string) {
	fmt.Fprintf(p.output, "✗ %s", reason)
	if code != "" {
		fmt.Fprintf(p.output, " [%s]", code)
	}
	if status != "" {
		fmt.Fprintf(p.output, " (status: %s)", status)
	}
	fmt.Fprintln(p.output)
}

func formatGates(g *execution.ApprovalGates) string {
	if g == nil {
		return "autonomous"
	}
	return fmt.Sprintf("prd=%t plan=%t merge=%t", g.AllowPRD, g.AllowPlan, g.AllowMerge)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return (time.Duration(*ms) * time.Millisecond).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
