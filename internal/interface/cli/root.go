package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/deeflow/internal/app"
	"github.com/YoshitsuguKoike/deeflow/internal/app/config"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	infraConfig "github.com/YoshitsuguKoike/deeflow/internal/infra/config"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/di"
)

// DefaultHome is the deeflow home when DEEFLOW_HOME is unset
const DefaultHome = ".deeflow"

// errRefused makes the process exit non-zero after a refusal was presented
var errRefused = errors.New("request refused")

// presentedError marks an error the presenter already showed
type presentedError struct {
	err error
}

func (e presentedError) Error() string { return e.err.Error() }
func (e presentedError) Unwrap() error { return e.err }

// rootOptions is the state shared by all commands of one invocation
type rootOptions struct {
	jsonOutput bool
	logLevel   string

	cfg    config.Config
	logger *Logger
	// supervisor replaces the process supervisor, for tests
	supervisor output.WorkerSupervisor
}

// NewRoot builds the deeflow command tree
func NewRoot() *cobra.Command {
	return newRoot(&rootOptions{})
}

func newRoot(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "deeflow",
		Short:         "Drive features through analyze, requirements, research, plan, implement and merge with a coding agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Priority: ENV > setting.json > defaults
			baseDir := DefaultHome
			if home := os.Getenv("DEEFLOW_HOME"); home != "" {
				baseDir = home
			}

			cfg, err := infraConfig.LoadSettings(baseDir)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			level := cfg.StderrLevel()
			if opts.logLevel != "" {
				level = opts.logLevel
			}
			InitGlobalLogger(level)
			opts.logger = GetLogger()
			opts.logger.SetOutput(cmd.ErrOrStderr())
			InitializeLoggers(opts.logger)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}

	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Print results as JSON")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newFeatureCmd(opts))
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newReconcileCmd(opts))
	cmd.AddCommand(newWorkerCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// container opens the DI container for one command
func (o *rootOptions) container(cmd *cobra.Command) (*di.Container, error) {
	format := "cli"
	if o.jsonOutput {
		format = "json"
	}
	var logger app.Logger
	if o.logger != nil {
		logger = &loggerBridge{cliLogger: o.logger}
	}
	return di.NewContainer(di.Config{
		App:          o.cfg,
		Logger:       logger,
		OutputFormat: format,
		OutputWriter: cmd.OutOrStdout(),
		Supervisor:   o.supervisor,
	})
}

// result is what a command body hands to the presenter
type result struct {
	message string
	data    interface{}
	refused bool
}

// present runs body against a fresh container and renders its result or error
func (o *rootOptions) present(body func(ctx context.Context, c *di.Container, args []string) (*result, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := o.container(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := body(cmd.Context(), c, args)
		if err != nil {
			return presentedError{err: c.GetPresenter().PresentError(err)}
		}
		if err := c.GetPresenter().PresentSuccess(res.message, res.data); err != nil {
			return err
		}
		if res.refused {
			return presentedError{err: errRefused}
		}
		return nil
	}
}

// Execute runs the command tree and returns the process exit code. Errors
// the presenter has not shown yet are printed to stderr.
func Execute(ctx context.Context) int {
	err := NewRoot().ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var shown presentedError
	if !errors.As(err, &shown) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return 1
}
