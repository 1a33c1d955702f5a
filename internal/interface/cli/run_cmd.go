package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/di"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start, inspect, approve and reject agent runs",
	}
	cmd.AddCommand(newRunStartCmd(opts))
	cmd.AddCommand(newRunListCmd(opts))
	cmd.AddCommand(newRunShowCmd(opts))
	cmd.AddCommand(newRunStepsCmd(opts))
	cmd.AddCommand(newRunTimingsCmd(opts))
	cmd.AddCommand(newRunApproveCmd(opts))
	cmd.AddCommand(newRunRejectCmd(opts))
	cmd.AddCommand(newRunResumeCmd(opts))
	return cmd
}

// reconcileQuietly marks runs whose worker died before reads report them
func reconcileQuietly(ctx context.Context, c *di.Container, opts *rootOptions) {
	if _, err := c.GetAgentRunUseCase().CheckAndMarkCrashed(ctx); err != nil {
		opts.logger.Warn("reconcile runs: %v", err)
	}
}

func newRunStartCmd(opts *rootOptions) *cobra.Command {
	var prompt, agentName string
	cmd := &cobra.Command{
		Use:   "start <feature>",
		Short: "Start a new run for a feature without an active run",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		f, err := c.GetFeatureUseCase().GetFeature(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if prompt == "" {
			prompt = f.Description
		}
		out, err := c.GetAgentRunUseCase().CreateRun(ctx, dto.CreateRunInput{
			FeatureID: f.ID,
			Prompt:    prompt,
			AgentName: agentName,
		})
		if err != nil {
			return nil, err
		}
		return &result{data: out, refused: !out.Created}, nil
	})
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt for the run (defaults to the feature description)")
	cmd.Flags().StringVar(&agentName, "agent-name", "", "Label recorded on the run")
	return cmd
}

func newRunListCmd(opts *rootOptions) *cobra.Command {
	var (
		feature  string
		statuses []string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, _ []string) (*result, error) {
		reconcileQuietly(ctx, c, opts)
		featureID, err := resolveFeatureID(ctx, c, feature)
		if err != nil {
			return nil, err
		}
		runs, err := c.GetAgentRunUseCase().ListRuns(ctx, dto.ListRunsInput{
			FeatureID: featureID,
			Statuses:  statuses,
			Limit:     limit,
		})
		if err != nil {
			return nil, err
		}
		return &result{data: runs}, nil
	})
	cmd.Flags().StringVar(&feature, "feature", "", "Only runs of this feature (id or slug)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only runs in these statuses")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs")
	return cmd
}

func newRunShowCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		reconcileQuietly(ctx, c, opts)
		run, err := c.GetAgentRunUseCase().GetRun(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return &result{data: run}, nil
	})
	return cmd
}

// stepQuery builds the query of steps and timings: a run id argument or --feature
func stepQuery(ctx context.Context, c *di.Container, args []string, feature string) (dto.StepQuery, error) {
	switch {
	case len(args) == 1 && feature == "":
		return dto.StepQuery{RunID: args[0]}, nil
	case len(args) == 0 && feature != "":
		id, err := resolveFeatureID(ctx, c, feature)
		if err != nil {
			return dto.StepQuery{}, err
		}
		return dto.StepQuery{FeatureID: id}, nil
	default:
		return dto.StepQuery{}, errors.New("pass either a run id or --feature")
	}
}

func newRunStepsCmd(opts *rootOptions) *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "steps [run-id]",
		Short: "Show the execution step tree of a run or feature",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		q, err := stepQuery(ctx, c, args, feature)
		if err != nil {
			return nil, err
		}
		steps, err := c.GetAgentRunUseCase().FindExecutionSteps(ctx, q)
		if err != nil {
			return nil, err
		}
		return &result{data: steps}, nil
	})
	cmd.Flags().StringVar(&feature, "feature", "", "Steps of every run of this feature (id or slug)")
	return cmd
}

func newRunTimingsCmd(opts *rootOptions) *cobra.Command {
	var feature string
	cmd := &cobra.Command{
		Use:   "timings [run-id]",
		Short: "Show phase durations and approval waits",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		q, err := stepQuery(ctx, c, args, feature)
		if err != nil {
			return nil, err
		}
		timings, err := c.GetAgentRunUseCase().FindPhaseTimings(ctx, q)
		if err != nil {
			return nil, err
		}
		return &result{data: timings}, nil
	})
	cmd.Flags().StringVar(&feature, "feature", "", "Timings of every run of this feature (id or slug)")
	return cmd
}

func newRunApproveCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <run-id>",
		Short: "Approve the phase a run is waiting on and continue",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		out, err := c.GetAgentRunUseCase().ApproveRun(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return &result{data: out, refused: !out.Approved}, nil
	})
	return cmd
}

func newRunRejectCmd(opts *rootOptions) *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "reject <run-id>",
		Short: "Reject the phase a run is waiting on and re-run it with feedback",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		out, err := c.GetAgentRunUseCase().RejectRun(ctx, dto.RejectRunInput{RunID: args[0], Feedback: feedback})
		if err != nil {
			return nil, err
		}
		res := &result{data: out, refused: !out.Rejected}
		if out.IterationWarning {
			res.message = fmt.Sprintf("%s rejected %d times, consider rewriting the feature description", out.Phase, out.Iteration)
		}
		return res, nil
	})
	cmd.Flags().StringVarP(&feedback, "feedback", "m", "", "What the agent should change (required)")
	return cmd
}

func newRunResumeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue an interrupted or failed run from its last checkpoint",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		reconcileQuietly(ctx, c, opts)
		out, err := c.GetAgentRunUseCase().ResumeRun(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return &result{data: out, refused: !out.Resumed}, nil
	})
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mark running runs whose worker died as interrupted",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, _ []string) (*result, error) {
		out, err := c.GetAgentRunUseCase().CheckAndMarkCrashed(ctx)
		if err != nil {
			return nil, err
		}
		return &result{data: out}, nil
	})
	return cmd
}
