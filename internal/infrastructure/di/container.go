package di

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	agentgateway "github.com/YoshitsuguKoike/deeflow/internal/adapter/gateway/agent"
	storagegateway "github.com/YoshitsuguKoike/deeflow/internal/adapter/gateway/storage"
	"github.com/YoshitsuguKoike/deeflow/internal/adapter/presenter"
	"github.com/YoshitsuguKoike/deeflow/internal/app"
	appconfig "github.com/YoshitsuguKoike/deeflow/internal/app/config"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/application/service"
	agentrunusecase "github.com/YoshitsuguKoike/deeflow/internal/application/usecase/agentrun"
	featureusecase "github.com/YoshitsuguKoike/deeflow/internal/application/usecase/feature"
	"github.com/YoshitsuguKoike/deeflow/internal/application/workflow"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/git"
	sqliterepo "github.com/YoshitsuguKoike/deeflow/internal/infrastructure/persistence/sqlite"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/process"
	filerepo "github.com/YoshitsuguKoike/deeflow/internal/infrastructure/repository"
)

// Container is the DI container that holds all dependencies
// This implements manual dependency injection for Clean Architecture
type Container struct {
	// Infrastructure Layer - Database
	db *sql.DB

	// Infrastructure Layer - Repositories
	featureRepo    repository.FeatureRepository
	runRepo        repository.AgentRunRepository
	stepRepo       repository.ExecutionStepRepository
	timingRepo     repository.PhaseTimingRepository
	checkpointRepo repository.CheckpointRepository
	specDocRepo    repository.SpecDocumentRepository

	// Infrastructure Layer - Gateways
	gitGateway output.GitGateway
	supervisor output.WorkerSupervisor

	// Application Layer - Use Cases
	agentRunUseCase input.AgentRunUseCase
	featureUseCase  input.FeatureUseCase

	// Adapter Layer - Presenters
	presenter output.Presenter

	config Config
}

// Config holds configuration for the container
type Config struct {
	App          appconfig.Config
	Logger       app.Logger
	OutputFormat string // Output format (cli, json)
	OutputWriter io.Writer
	// Supervisor replaces the process supervisor, for tests
	Supervisor output.WorkerSupervisor
}

// NewContainer creates and initializes the DI container
func NewContainer(config Config) (*Container, error) {
	if config.App == nil {
		return nil, fmt.Errorf("container requires an app config")
	}
	c := &Container{config: config}

	if c.config.OutputWriter == nil {
		c.config.OutputWriter = os.Stdout
	}
	c.config.Logger = app.LoggerOr(c.config.Logger)

	// Initialize dependencies in dependency order
	if err := c.initializeInfrastructure(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	c.initializeApplication()
	c.initializeAdapters()

	return c, nil
}

// initializeInfrastructure initializes infrastructure layer components
func (c *Container) initializeInfrastructure() error {
	cfg := c.config.App

	// 1. Open SQLite database (migrations run on open)
	dbPath := cfg.DBPath()
	if dbPath != sqliterepo.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sqliterepo.Open(dbPath)
	if err != nil {
		return err
	}
	c.db = db

	// 2. Repositories
	c.featureRepo = sqliterepo.NewFeatureRepository(db)
	c.runRepo = sqliterepo.NewAgentRunRepository(db)
	c.stepRepo = sqliterepo.NewExecutionStepRepository(db)
	c.timingRepo = sqliterepo.NewPhaseTimingRepository(db)
	c.checkpointRepo = sqliterepo.NewCheckpointRepository(db)
	c.specDocRepo = filerepo.NewSpecDocumentRepository(afero.NewOsFs())

	// 3. Gateways
	c.gitGateway = git.NewCLIGateway()

	c.supervisor = c.config.Supervisor
	if c.supervisor == nil {
		bin := cfg.WorkerBin()
		if bin == "" {
			bin, err = process.CurrentExecutable()
			if err != nil {
				return err
			}
		}
		sup := process.NewSupervisor(bin, cfg.LogDir())
		// Workers must find the same home, whatever the caller's cwd
		sup.Env = []string{"DEEFLOW_HOME=" + absPath(cfg.Home())}
		c.supervisor = sup
	}
	return nil
}

// initializeApplication initializes application layer components
func (c *Container) initializeApplication() {
	cfg := c.config.App

	c.agentRunUseCase = agentrunusecase.NewAgentRunUseCase(agentrunusecase.Deps{
		Runs:       c.runRepo,
		Features:   c.featureRepo,
		Steps:      c.stepRepo,
		Timings:    c.timingRepo,
		SpecDocs:   c.specDocRepo,
		Supervisor: c.supervisor,
		Git:        c.gitGateway,
		Logger:     c.config.Logger,
	})

	c.featureUseCase = featureusecase.NewFeatureUseCase(
		c.featureRepo,
		c.specDocRepo,
		c.gitGateway,
		c.agentRunUseCase,
		featureusecase.Options{
			SpecRoot:     absPath(appconfig.SpecRoot(cfg)),
			WorktreeRoot: absPath(appconfig.WorktreeRoot(cfg)),
			BaseBranch:   cfg.BaseBranch(),
			Remote:       cfg.GitRemote(),
		},
		c.config.Logger,
	)
}

// initializeAdapters initializes adapter layer components
func (c *Container) initializeAdapters() {
	switch c.config.OutputFormat {
	case "json":
		c.presenter = presenter.NewJSONPresenter(c.config.OutputWriter)
	default: // "cli"
		c.presenter = presenter.NewCLIPresenter(c.config.OutputWriter)
	}
}

// NewExecutor builds the workflow executor a worker runs. The agent and
// storage gateways are only created here since only workers need them.
func (c *Container) NewExecutor(ctx context.Context) (*workflow.Executor, error) {
	cfg := c.config.App

	agent, err := agentgateway.NewAgentGateway(cfg.AgentType(), agentgateway.Options{
		Bin:     cfg.AgentBin(),
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent gateway: %w", err)
	}

	storage, err := storagegateway.NewStorageGateway(ctx, storagegateway.Config{
		Type:    cfg.StorageType(),
		BaseDir: cfg.Home(),
		S3: storagegateway.S3Config{
			BucketName: cfg.S3Bucket(),
			Prefix:     cfg.S3Prefix(),
			Region:     cfg.S3Region(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage gateway: %w", err)
	}

	return workflow.NewExecutor(workflow.ExecutorDeps{
		Runs:        c.runRepo,
		Features:    c.featureRepo,
		Steps:       c.stepRepo,
		Timings:     c.timingRepo,
		Checkpoints: c.checkpointRepo,
		SpecDocs:    c.specDocRepo,
		Agent:       agent,
		Prompts:     service.NewPromptBuilderService(),
		Verifier:    service.NewMergeVerifier(c.gitGateway, cfg.GitRemote(), cfg.BaseBranch(), c.config.Logger),
	},
		workflow.WithStorage(storage),
		workflow.WithLogger(c.config.Logger),
		workflow.WithMaxValidationRetries(cfg.MaxValidationRetries()),
		workflow.WithAgentTimeout(cfg.Timeout()),
	), nil
}

// GetAgentRunUseCase returns the agent run use case
func (c *Container) GetAgentRunUseCase() input.AgentRunUseCase {
	return c.agentRunUseCase
}

// GetFeatureUseCase returns the feature use case
func (c *Container) GetFeatureUseCase() input.FeatureUseCase {
	return c.featureUseCase
}

// GetPresenter returns the presenter
func (c *Container) GetPresenter() output.Presenter {
	return c.presenter
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
