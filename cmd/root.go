package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "permit-scout"

	defaultDatabase = "./data/permit-scout.db"
	defaultUser     = "local"
	defaultSchedule = "@every 6h"
)

type Config struct {
	Database string          `mapstructure:"database"`
	User     string          `mapstructure:"user"`
	Schedule string          `mapstructure:"schedule"`
	Pipeline *PipelineConfig `mapstructure:"pipeline"`
	AI       *AIConfig       `mapstructure:"ai"`
}

type PipelineConfig struct {
	URL       string `mapstructure:"url"`
	TokenFile string `mapstructure:"token-file"`
	UserAgent string `mapstructure:"user-agent"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "permit-scout scores construction leads against your criteria and keeps track of scans",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"pipeline.token-file":    "PERMIT_SCOUT_PIPELINE_TOKEN_FILE",
		"pipeline.url":           "PERMIT_SCOUT_PIPELINE_URL",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"user":                   "PERMIT_SCOUT_USER",
		"database":               "PERMIT_SCOUT_DATABASE",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("database", defaultDatabase)
	viper.SetDefault("user", defaultUser)
	viper.SetDefault("schedule", defaultSchedule)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is permit-scout.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("user", "u", "", "user whose criteria and saved projects are used")
	rootCmd.PersistentFlags().String("database", "", "path to the SQLite database")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// An explicit config file must exist; the default one is optional.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Pipeline == nil {
		config.Pipeline = &PipelineConfig{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}

	return config, nil
}
