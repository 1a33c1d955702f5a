package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/di"
)

func newFeatureCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Create, inspect and delete features",
	}
	cmd.AddCommand(newFeatureCreateCmd(opts))
	cmd.AddCommand(newFeatureListCmd(opts))
	cmd.AddCommand(newFeatureShowCmd(opts))
	cmd.AddCommand(newFeatureDeleteCmd(opts))
	return cmd
}

type featureCreateFlags struct {
	description string
	repo        string
	gated       bool
	allowPRD    bool
	allowPlan   bool
	allowMerge  bool
	push        bool
	openPR      bool
	parent      string
	worktree    bool
	noStart     bool
}

// gates returns nil, a fully autonomous run, unless gating was asked for
func (f *featureCreateFlags) gates(cmd *cobra.Command) *execution.ApprovalGates {
	flags := cmd.Flags()
	if !f.gated && !flags.Changed("allow-prd") && !flags.Changed("allow-plan") && !flags.Changed("allow-merge") {
		return nil
	}
	return &execution.ApprovalGates{
		AllowPRD:   f.allowPRD,
		AllowPlan:  f.allowPlan,
		AllowMerge: f.allowMerge,
	}
}

func newFeatureCreateCmd(opts *rootOptions) *cobra.Command {
	f := &featureCreateFlags{}
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a feature and start its first run",
		Long: `Register a feature, write its spec document and start an agent run.

Without gating flags the run is fully autonomous. --gated stops for human
approval after requirements, plan, implement and merge; --allow-prd,
--allow-plan and --allow-merge let the corresponding phases pass unattended.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		out, err := c.GetFeatureUseCase().CreateFeature(ctx, dto.CreateFeatureInput{
			Name:           args[0],
			Description:    f.description,
			RepositoryPath: f.repo,
			ApprovalGates:  f.gates(cmd),
			Push:           f.push,
			OpenPR:         f.openPR,
			ParentID:       f.parent,
			CreateWorktree: f.worktree,
			StartRun:       !f.noStart,
		})
		if err != nil {
			return nil, err
		}
		return &result{
			message: fmt.Sprintf("Feature %s created", out.Feature.Slug),
			data:    out,
			refused: out.Run != nil && !out.Run.Created,
		}, nil
	})

	cmd.Flags().StringVarP(&f.description, "description", "d", "", "What the feature should do; becomes the agent prompt")
	cmd.Flags().StringVar(&f.repo, "repo", ".", "Repository the feature is built in")
	cmd.Flags().BoolVar(&f.gated, "gated", false, "Require human approval at every gate")
	cmd.Flags().BoolVar(&f.allowPRD, "allow-prd", false, "Let requirements pass without approval")
	cmd.Flags().BoolVar(&f.allowPlan, "allow-plan", false, "Let plan pass without approval")
	cmd.Flags().BoolVar(&f.allowMerge, "allow-merge", false, "Let merge run without approval")
	cmd.Flags().BoolVar(&f.push, "push", false, "Push the feature branch when merging")
	cmd.Flags().BoolVar(&f.openPR, "open-pr", false, "Open a pull request when merging (implies --push)")
	cmd.Flags().StringVar(&f.parent, "parent", "", "Parent feature id")
	cmd.Flags().BoolVar(&f.worktree, "worktree", false, "Check the feature branch out in its own git worktree")
	cmd.Flags().BoolVar(&f.noStart, "no-start", false, "Only register the feature")
	return cmd
}

func newFeatureListCmd(opts *rootOptions) *cobra.Command {
	var (
		lifecycle string
		all       bool
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List features, newest first",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, _ []string) (*result, error) {
		features, err := c.GetFeatureUseCase().ListFeatures(ctx, dto.ListFeaturesInput{
			Lifecycle:      lifecycle,
			IncludeDeleted: all,
			Limit:          limit,
		})
		if err != nil {
			return nil, err
		}
		return &result{data: features}, nil
	})
	cmd.Flags().StringVar(&lifecycle, "lifecycle", "", "Only features in this lifecycle")
	cmd.Flags().BoolVar(&all, "all", false, "Include deleted features")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of features")
	return cmd
}

func newFeatureShowCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Show a feature",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		f, err := c.GetFeatureUseCase().GetFeature(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return &result{data: f}, nil
	})
	return cmd
}

func newFeatureDeleteCmd(opts *rootOptions) *cobra.Command {
	var cleanup bool
	cmd := &cobra.Command{
		Use:   "delete <id|slug>",
		Short: "Stop the feature's run and delete the feature",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = opts.present(func(ctx context.Context, c *di.Container, args []string) (*result, error) {
		f, err := c.GetFeatureUseCase().GetFeature(ctx, args[0])
		if err != nil {
			return nil, err
		}
		out, err := c.GetAgentRunUseCase().DeleteFeatureRun(ctx, dto.DeleteFeatureRunInput{
			FeatureID:       f.ID,
			CleanupWorktree: cleanup,
		})
		if err != nil {
			return nil, err
		}
		return &result{data: out, refused: !out.Deleted}, nil
	})
	cmd.Flags().BoolVar(&cleanup, "cleanup-worktree", false, "Also remove the feature's git worktree")
	return cmd
}

// resolveFeatureID accepts a feature id or slug
func resolveFeatureID(ctx context.Context, c *di.Container, idOrSlug string) (string, error) {
	if idOrSlug == "" {
		return "", nil
	}
	f, err := c.GetFeatureUseCase().GetFeature(ctx, idOrSlug)
	if err != nil {
		return "", err
	}
	return f.ID, nil
}
