package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/YoshitsuguKoike/deeflow/internal/application/workflow"
	"github.com/YoshitsuguKoike/deeflow/internal/buildinfo"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/process"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/telemetry"
)

// workerFlags mirror process.BuildWorkerArgs
type workerFlags struct {
	runID               string
	featureID           string
	threadID            string
	approvalGates       string
	resume              bool
	resumeFromInterrupt bool
	resumePayload       string
}

func (f *workerFlags) runRequest() (workflow.RunRequest, error) {
	req := workflow.RunRequest{
		RunID:               f.runID,
		FeatureID:           f.featureID,
		ThreadID:            f.threadID,
		Resume:              f.resume,
		ResumeFromInterrupt: f.resumeFromInterrupt,
	}
	if f.runID == "" {
		return req, fmt.Errorf("--%s is required", process.FlagRunID)
	}
	if f.approvalGates != "" {
		var gates execution.ApprovalGates
		if err := json.Unmarshal([]byte(f.approvalGates), &gates); err != nil {
			return req, fmt.Errorf("parse --%s: %w", process.FlagApprovalGates, err)
		}
		req.ApprovalGates = &gates
	}
	if f.resumeFromInterrupt {
		if f.resumePayload == "" {
			return req, fmt.Errorf("--%s requires --%s", process.FlagResumeFromInterrupt, process.FlagResumePayload)
		}
		var payload execution.ResumeCommand
		if err := json.Unmarshal([]byte(f.resumePayload), &payload); err != nil {
			return req, fmt.Errorf("parse --%s: %w", process.FlagResumePayload, err)
		}
		req.ResumePayload = &payload
	}
	return req, nil
}

// newWorkerCmd is the detached process the supervisor spawns for one run.
// SIGTERM cancels the workflow, which leaves the run interrupted.
func newWorkerCmd(opts *rootOptions) *cobra.Command {
	f := &workerFlags{}
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Execute one agent run (spawned by deeflow)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.runRequest()
			if err != nil {
				return err
			}

			logger := opts.logger
			logger.SetTimestamps(true)
			if opts.logLevel == "" && logger.GetLevel() > LogLevelInfo {
				logger.SetLevel(LogLevelInfo)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Init(telemetry.Options{
				Stdout:  opts.cfg.TraceStdout(),
				Writer:  cmd.OutOrStdout(),
				Version: buildinfo.GetVersion(),
			})
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Warn("flush spans: %v", err)
				}
			}()

			c, err := opts.container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			executor, err := c.NewExecutor(ctx)
			if err != nil {
				return err
			}

			logger.Info("worker %d starting run %s (feature %s, thread %s, resume=%t)",
				os.Getpid(), req.RunID, req.FeatureID, req.ThreadID, req.Resume || req.ResumeFromInterrupt)
			outcome, err := executor.Run(ctx, req)
			if err != nil {
				logger.Error("run %s: %v", req.RunID, err)
				return err
			}
			if outcome.Err != nil {
				logger.Error("run %s ended %s at %s: %v", outcome.RunID, outcome.Status, outcome.Node, outcome.Err)
				return nil
			}
			logger.Info("run %s ended %s at %s", outcome.RunID, outcome.Status, outcome.Node)
			return nil
		},
	}

	f.bind(cmd.Flags())
	return cmd
}

func (f *workerFlags) bind(flags *pflag.FlagSet) {
	flags.StringVar(&f.runID, process.FlagRunID, "", "Run to execute")
	flags.StringVar(&f.featureID, process.FlagFeatureID, "", "Expected feature of the run")
	flags.StringVar(&f.threadID, process.FlagThreadID, "", "Expected checkpoint thread of the run")
	flags.StringVar(&f.approvalGates, process.FlagApprovalGates, "", "Approval gates as JSON")
	flags.BoolVar(&f.resume, process.FlagResume, false, "Continue from the latest checkpoint")
	flags.BoolVar(&f.resumeFromInterrupt, process.FlagResumeFromInterrupt, false, "Apply the resume payload to a suspended checkpoint")
	flags.StringVar(&f.resumePayload, process.FlagResumePayload, "", "Human decision as JSON")
}
