package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/permit-scout/internal/ai/gemini"
	"github.com/spigell/permit-scout/internal/logger"
	"github.com/spigell/permit-scout/internal/pipeline"
	"github.com/spigell/permit-scout/internal/secrets"
	"github.com/spigell/permit-scout/internal/service"
	"github.com/spigell/permit-scout/internal/storage"
)

// application holds everything a command needs for one invocation.
type application struct {
	config *Config
	logger *zap.Logger
	db     *storage.DB
	svc    *service.Service
	user   string
}

// setup builds the logger, opens the database and wires the service. The
// pipeline and the AI briefer are attached only when they are configured.
func setup(ctx context.Context, cmd *cobra.Command) *application {
	base, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		base.Fatal("getting a config", zap.Error(err))
	}

	user := strings.TrimSpace(config.User)
	lg := logger.ForCommand(base, cmd.CommandPath(), user)

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	lg.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	db, err := storage.New(config.Database)
	if err != nil {
		lg.Fatal("opening the database", zap.String("path", config.Database), zap.Error(err))
	}

	opts := []service.Option{service.WithPipeline(newPipeline(config.Pipeline, lg))}

	briefer, err := newBriefer(ctx, config.AI, lg)
	if err != nil {
		lg.Warn("project briefs disabled", zap.Error(err))
	}
	if briefer != nil {
		opts = append(opts, service.WithBriefer(briefer))
	}

	return &application{
		config: config,
		logger: lg,
		db:     db,
		svc:    service.New(db, lg, opts...),
		user:   user,
	}
}

func (a *application) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing the database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newPipeline(cfg *PipelineConfig, lg *zap.Logger) *pipeline.Client {
	token, err := secrets.Optional(secrets.Source{
		Name: "pipeline token",
		File: cfg.TokenFile,
	})
	if err != nil {
		lg.Fatal(
			"loading pipeline token",
			zap.Error(err),
			zap.String("hint", "set PERMIT_SCOUT_PIPELINE_TOKEN_FILE environment variable or the 'pipeline.token-file' key in the configuration file"),
		)
	}

	client := pipeline.New(lg, cfg.URL, token)
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}
	return client
}

func newBriefer(ctx context.Context, cfg *AIConfig, lg *zap.Logger) (*gemini.Briefer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}

	return gemini.NewBriefer(generator, lg, cfg.Gemini.MaxLogLength), nil
}
