package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pressgate/pkg/audit"
	"pressgate/pkg/config"
	"pressgate/pkg/creds"
	"pressgate/pkg/log"
	"pressgate/pkg/log/sinks"
	"pressgate/pkg/orchestrator"
	"pressgate/pkg/security"
	"pressgate/pkg/storage"
	"pressgate/pkg/types"

	// Ensure all provider implementations are initialized
	_ "pressgate/pkg/provider/agentic"
	_ "pressgate/pkg/provider/scripted"
)

type RunCmd struct {
	Config  string `help:"The publishing run configuration file." default:"pressgate.yml"`
	Varfile string `help:"The YAML varfile for input variables." default:"pgvars.yml"`
}

func (r *RunCmd) Run() error {
	taskID := uuid.New().String()

	consoleSink := sinks.NewConsoleSink()

	logsDir := ".pressgate/logs"
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs directory %q: %w", logsDir, err)
	}
	logFilePath := filepath.Join(logsDir, fmt.Sprintf("%s.json", taskID))
	fileSink, err := sinks.NewFileSink(logFilePath)
	if err != nil {
		return fmt.Errorf("creating file log sink: %w", err)
	}

	redactor := security.NewRedactor()
	logRouter := log.NewRouter(consoleSink, fileSink)
	logRouter.Redactor = redactor

	base := zerolog.New(logRouter).With().Timestamp().Logger()
	cmdLogger := log.NewZerologAdapter(base)

	cmdLogger.Info().Msgf("Starting publishing task with ID: %s", taskID)
	cmdLogger.Info().Msgf("Logs will be saved to %q", logFilePath)

	defer func() {
		if err := logRouter.Close(); err != nil {
			fmt.Printf("Error during log shutdown: %v", err)
		}
	}()

	if err := godotenv.Load(); err != nil {
		cmdLogger.Warn().Err(err).Msgf("No .env file found or error thrown while loading it. Relying on existing ENV if vars use {{ env.* }}")
	}

	rc, err := config.LoadFromFile(r.Config)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Failed to load config file %s", r.Config)
		return fmt.Errorf("loading config file %q: %w", r.Config, err)
	}
	cmdLogger.Info().Msgf("Successfully loaded run config: %q", rc.Name)

	configAbsPath, err := filepath.Abs(r.Config)
	if err != nil {
		return fmt.Errorf("determining absolute path for config file %q: %w", r.Config, err)
	}
	configDir := filepath.Dir(configAbsPath)

	var varCtx config.VarContext
	if _, statErr := os.Stat(r.Varfile); os.IsNotExist(statErr) {
		cmdLogger.Warn().Msgf("Varfile %s not found. Proceeding without variables.", r.Varfile)
		varCtx = make(config.VarContext)
	} else {
		varCtx, err = config.ResolveVarfile(r.Varfile)
		if err != nil {
			return fmt.Errorf("resolving varfile %q: %w", r.Varfile, err)
		}
		cmdLogger.Info().Msgf("Successfully loaded and resolved varfile: %s", r.Varfile)
	}

	rc, err = config.InjectVars(rc, varCtx)
	if err != nil {
		cmdLogger.Error().Err(err).Msg("Failed to resolve config variables")
		return fmt.Errorf("resolving config variables: %w", err)
	}

	providerConfigs, err := rc.ProviderConfigs(configDir)
	if err != nil {
		return fmt.Errorf("building provider configurations: %w", err)
	}

	shotsDir := rc.Orchestrator.ScreenshotDir
	if shotsDir == "" {
		shotsDir = ".pressgate/screenshots"
	}
	shots, err := storage.NewFSStore(config.ResolvePath(configDir, shotsDir))
	if err != nil {
		return fmt.Errorf("creating screenshot store: %w", err)
	}

	opts, err := orchestratorOptions(&rc.Orchestrator)
	if err != nil {
		return fmt.Errorf("reading orchestrator settings: %w", err)
	}

	var notifier orchestrator.Notifier = orchestrator.NopNotifier{}
	if rc.Orchestrator.WebhookURL != "" {
		notifier = orchestrator.NewWebhookNotifier(rc.Orchestrator.WebhookURL)
	}

	orch, err := orchestrator.New(providerConfigs, orchestrator.Deps{
		Logger:   cmdLogger,
		Creds:    creds.NewEnvResolver(),
		Shots:    shots,
		Audit:    audit.NewRecorder(shots, cmdLogger, redactor),
		Notifier: notifier,
		Redactor: redactor,
	}, opts)
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task := types.NewPublishTask(taskID, rc.Task, rc.Chain)
	result, err := orch.Publish(ctx, task)
	if err != nil {
		cmdLogger.Error().Err(err).Msg("Publishing task could not run")
		return err
	}

	if !result.Success {
		cmdLogger.Error().
			Str("final_state", string(result.FinalState)).
			Msgf("Publishing task did not complete: %s", result.Reason)
		return fmt.Errorf("task %s finished in state %s: %s", taskID, result.FinalState, result.Reason)
	}

	cmdLogger.Info().
		Str("published_url", result.PublishedURL).
		Msgf("Publishing task completed successfully. Logs can be found at %q", logFilePath)
	return nil
}

func orchestratorOptions(oc *config.OrchestratorConfig) (orchestrator.Options, error) {
	opts := orchestrator.Options{SessionLimit: oc.MaxSessions}

	backoff, err := oc.BackoffSchedule()
	if err != nil {
		return opts, err
	}
	opts.Retry = orchestrator.RetryPolicy{
		MaxAttempts: oc.MaxAttempts,
		Backoff:     backoff,
	}

	if opts.PhaseTimeout, err = config.Duration(oc.PhaseTimeout, orchestrator.DefaultPhaseTimeout); err != nil {
		return opts, fmt.Errorf("invalid phase_timeout: %w", err)
	}
	if opts.TaskTimeout, err = config.Duration(oc.TaskTimeout, orchestrator.DefaultTaskTimeout); err != nil {
		return opts, fmt.Errorf("invalid task_timeout: %w", err)
	}
	return opts, nil
}
