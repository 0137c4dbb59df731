package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pressgate/pkg/config"
	"pressgate/pkg/log"
	"pressgate/pkg/log/sinks"
	"pressgate/pkg/provider"
	"pressgate/pkg/provider/scripted"

	// Ensure all provider implementations are initialized
	_ "pressgate/pkg/provider/agentic"
)

type LintCmd struct {
	Config  string `help:"The publishing run configuration file." default:"pressgate.yml"`
	Varfile string `help:"The YAML varfile for input variables." default:"pgvars.yml"`
}

func (l *LintCmd) Run() error {
	logRouter := log.NewRouter(sinks.NewConsoleSink())
	base := zerolog.New(logRouter).With().Timestamp().Logger()
	cmdLogger := log.NewZerologAdapter(base)

	cmdLogger.Info().Msgf("Validating %s using %s", l.Config, l.Varfile)

	if err := godotenv.Load(); err != nil {
		cmdLogger.Warn().Err(err).Msgf("No .env file found or error thrown while loading it. Relying on existing ENV if vars use {{ env.* }}")
	}

	rc, err := config.LoadFromFile(l.Config)
	if err != nil {
		cmdLogger.Error().Err(err).Msgf("Failed to load config file %s", l.Config)
		return fmt.Errorf("loading config file %q: %w", l.Config, err)
	}
	cmdLogger.Info().Msgf("Successfully loaded run config: %s", rc.Name)

	configAbsPath, err := filepath.Abs(l.Config)
	if err != nil {
		return fmt.Errorf("determining absolute path for config file %q: %w", l.Config, err)
	}
	configDir := filepath.Dir(configAbsPath)

	var varCtx config.VarContext
	if _, statErr := os.Stat(l.Varfile); os.IsNotExist(statErr) {
		cmdLogger.Warn().Msgf("Varfile %s not found. Proceeding without variables.", l.Varfile)
		varCtx = make(config.VarContext)
	} else {
		varCtx, err = config.ResolveVarfile(l.Varfile)
		if err != nil {
			return fmt.Errorf("resolving varfile %q: %w", l.Varfile, err)
		}
		cmdLogger.Info().Msgf("Successfully loaded and resolved varfile: %s", l.Varfile)
	}

	if rc, err = config.InjectVars(rc, varCtx); err != nil {
		cmdLogger.Error().Err(err).Msg("Config variable resolution failed")
		return fmt.Errorf("resolving config variables: %w", err)
	}

	providerConfigs, err := rc.ProviderConfigs(configDir)
	if err != nil {
		cmdLogger.Error().Err(err).Msg("Provider configuration validation failed")
		return fmt.Errorf("building provider configurations: %w", err)
	}

	cmdLogger.Info().Msg("Validating individual providers...")
	for _, cfg := range providerConfigs {
		plog := cmdLogger.With().
			Str("provider", cfg.Name).
			Str("kind", string(cfg.Kind)).
			Logger()

		if !provider.Registered(cfg.Kind) {
			plog.Error().Msg("No implementation registered for provider kind")
			return fmt.Errorf("provider %q uses unregistered kind %q", cfg.Name, cfg.Kind)
		}

		if cfg.Kind == provider.KindScripted {
			table := scripted.DefaultTable()
			if path := cfg.Option("selector_table", ""); path != "" {
				table, err = scripted.LoadSelectorTable(path)
				if err != nil {
					plog.Error().Err(err).Msg("Selector table validation failed")
					return fmt.Errorf("validating selector table for provider %q: %w", cfg.Name, err)
				}
			}
			if err := table.Validate(); err != nil {
				plog.Error().Err(err).Msg("Selector table validation failed")
				return fmt.Errorf("validating selector table for provider %q: %w", cfg.Name, err)
			}
			plog.Info().Msgf("Selector table valid (login form: %s)", table.Login.Username)
		}

		if cfg.Kind == provider.KindAgentic && cfg.Option("api_key", "") == "" {
			plog.Error().Msg("Agentic provider is missing the api_key option")
			return fmt.Errorf("provider %q is missing option 'api_key'", cfg.Name)
		}

		plog.Info().Msg("Provider configuration validation passed")
	}

	cmdLogger.Info().Msg("Successfully validated run configuration ✅")
	return nil
}
