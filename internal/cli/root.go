package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/rectify/internal/logging"
	"github.com/ppiankov/rectify/internal/model"
	"github.com/ppiankov/rectify/internal/pipeline"
	"github.com/ppiankov/rectify/internal/store"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "rectify",
	Short: "Rectify - hallucination detection and correction for LLM answers",
	Long: `Rectify checks answers produced by a language model against a knowledge base.

Every answer is decomposed into atomic claims. Each claim is matched with
evidence from the knowledge base and judged SUPPORTED, CONTRADICTED,
PARTIALLY_SUPPORTED or UNVERIFIED. The answer is then rewritten from the
verdicts and compared with the original to flag hallucinations.

Rectify reports what the evidence says. It does not know more than the
documents you give it.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of rectify.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rectify %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.rectify/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides system.log_level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json (overrides system.log_format)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("system.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("system.log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig points viper at the config file and the RECTIFY_* environment
func initConfig() {
	configureViper(viper.GetViper(), cfgFile)
}

func configureViper(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home + "/.rectify")
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	// RECTIFY_LLM_API_KEY -> llm.api_key
	v.SetEnvPrefix("RECTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig merges defaults, the config file, RECTIFY_* variables and
// bound flags into a model.Config. A missing config file is not an error.
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := setDefaults(v, cfg); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(cfg)
	applyKeyFallbacks(cfg, os.Getenv)
	return cfg, nil
}

// setDefaults registers every key of cfg with viper so that environment
// variables are honoured for keys absent from the config file
func setDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	walkDefaults(v, "", tree)

	// omitempty keys are absent from the marshalled defaults
	for _, key := range []string{
		"llm.http_proxy", "llm.https_proxy",
		"vector_db.embedding_base_url", "vector_db.embedding_api_key",
		"vector_db.dsn", "vector_db.cache_dir",
	} {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func walkDefaults(v *viper.Viper, prefix string, tree map[string]interface{}) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok {
			walkDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// expandEnv substitutes ${VAR} references in string settings
func expandEnv(cfg *model.Config) {
	for _, s := range []*string{
		&cfg.LLM.APIKey,
		&cfg.LLM.BaseURL,
		&cfg.LLM.Model,
		&cfg.LLM.HTTPProxy,
		&cfg.LLM.HTTPSProxy,
		&cfg.VectorDB.EmbeddingAPIKey,
		&cfg.VectorDB.EmbeddingBaseURL,
		&cfg.VectorDB.DBPath,
		&cfg.VectorDB.DSN,
		&cfg.VectorDB.CacheDir,
		&cfg.Server.Addr,
	} {
		if strings.Contains(*s, "$") {
			*s = os.ExpandEnv(*s)
		}
	}
}

// providerKeyEnv maps providers to the variable holding their API key
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"claude":    "ANTHROPIC_API_KEY",
}

// applyKeyFallbacks fills empty credentials from the provider's usual
// environment variables
func applyKeyFallbacks(cfg *model.Config, getenv func(string) string) {
	provider := strings.ToLower(cfg.LLM.Provider)
	if cfg.LLM.APIKey == "" {
		if env, ok := providerKeyEnv[provider]; ok {
			cfg.LLM.APIKey = getenv(env)
		}
	}
	if provider == "ollama" {
		if base := getenv("OLLAMA_BASE_URL"); base != "" && cfg.LLM.BaseURL == model.DefaultConfig().LLM.BaseURL {
			cfg.LLM.BaseURL = base
		}
	}

	if cfg.VectorDB.EmbeddingAPIKey == "" {
		switch {
		case getenv("OPENAI_API_KEY") != "":
			cfg.VectorDB.EmbeddingAPIKey = getenv("OPENAI_API_KEY")
		case provider == "openai":
			cfg.VectorDB.EmbeddingAPIKey = cfg.LLM.APIKey
		}
	}
}

// newLogger builds the process logger from the system section
func newLogger(cfg *model.Config) (*zap.Logger, error) {
	level := cfg.System.LogLevel
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.System.LogFormat)
}

// setup loads the configuration and logger shared by every command
func setup() (*model.Config, *zap.Logger, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	if verbose && viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// validated returns cfg's fatal problems and logs its warnings
func validated(cfg *model.Config, logger *zap.Logger) error {
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		logger.Warn("configuration warning", zap.String("detail", w))
	}
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// buildPipeline validates cfg and wires every stage
func buildPipeline(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*pipeline.Pipeline, error) {
	if err := validated(cfg, logger); err != nil {
		return nil, err
	}
	p, err := pipeline.New(ctx, cfg, pipeline.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline: %w", err)
	}
	return p, nil
}

// openStore opens the knowledge base alone, for commands that never call
// the text-generation gateway
func openStore(ctx context.Context, cfg *model.Config) (store.Store, error) {
	embedder, err := store.NewEmbedder(cfg.VectorDB, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	st, err := store.Open(ctx, cfg.VectorDB, embedder)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
