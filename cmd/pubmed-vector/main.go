// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pubmed-vector CLI. Each pipeline
// stage is a subcommand: fetch, extract, embed and load build the
// collection; search, prompt and serve query it.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-vector/internal/logging"
	"github.com/pdiddy/pubmed-vector/internal/metrics"
	"github.com/pdiddy/pubmed-vector/internal/secrets"
	"github.com/pdiddy/pubmed-vector/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Process-wide state set up by rootCmd before any subcommand runs.
var (
	logger     *zap.Logger
	registry   *prometheus.Registry
	appMetrics *metrics.Metrics
	appConfig  types.PipelineConfig
)

var rootCmd = &cobra.Command{
	Use:   "pubmed-vector",
	Short: "PubMed ingestion and semantic retrieval pipeline",
	Long: `pubmed-vector downloads PubMed records, extracts them from XML, embeds
title and abstract, stores the vectors in Milvus (or a local SQLite file)
and answers similarity queries.

Stages run in order: fetch -> extract -> embed -> load. Each stage reads
the previous stage's directory and skips batches it has already produced,
so an interrupted run can simply be restarted.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}

		log, err := logging.New(logging.Options{
			Level:       viper.GetString("log_level"),
			Development: viper.GetBool("log_dev"),
		})
		if err != nil {
			return err
		}
		logger = log

		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir, logger)
		if err != nil {
			return err
		}
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}

		cfg, err := loadConfig(s)
		if err != nil {
			return err
		}
		appConfig = cfg

		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		appMetrics = metrics.New(registry)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// configKeys lists every settable key. Each is bound to its
// PUBMED_VECTOR_<SECTION>_<KEY> environment variable.
var configKeys = []string{
	"fetch.query", "fetch.rel_days", "fetch.min_date", "fetch.max_date",
	"fetch.page_size", "fetch.fetch_batch_size", "fetch.api_key", "fetch.email",
	"fetch.output_dir", "fetch.timeout", "fetch.user_agent",
	"fetch.retry.max_attempts", "fetch.retry.base_delay",

	"extract.input_dir", "extract.output_dir",

	"embedding.url", "embedding.model", "embedding.api_key", "embedding.dimension",
	"embedding.delay", "embedding.workers", "embedding.on_failure", "embedding.cache_dir",
	"embedding.input_dir", "embedding.output_dir", "embedding.timeout", "embedding.user_agent",
	"embedding.retry.max_attempts", "embedding.retry.base_delay",

	"store.backend", "store.address", "store.username", "store.password", "store.database",
	"store.collection", "store.dimension", "store.nlist", "store.nprobe", "store.timeout",
	"store.path", "store.insert_batch_size", "store.input_dir",

	"tool.addr", "tool.top_k", "tool.score",
}

// legacyEnv maps keys to the unprefixed variable names older deployments use.
var legacyEnv = map[string]string{
	"embedding.url":    "EMBEDDING_API_URL",
	"embedding.model":  "EMBEDDING_MODEL",
	"store.collection": "COLLECTION_NAME",
	"store.address":    "MILVUS_URI",
	"log_level":        "LOG_LEVEL",
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./pubmed-vector.yaml or ~/.config/pubmed-vector/pubmed-vector.yaml)")
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.String("secrets-dir", ".secrets", "directory of credential files")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("log-dev", false, "human-readable console logs")

	pf.String("embedding-url", "", "OpenAI-compatible embedding endpoint")
	pf.String("model", "", "embedding model name")
	pf.String("backend", "", "vector store backend: milvus or sqlite")
	pf.String("address", "", "Milvus address (host:port)")
	pf.String("collection", "", "collection name")
	pf.String("db", "", "SQLite database path when --backend=sqlite")

	bindFlags(pf, map[string]string{
		"log_level":        "log-level",
		"log_dev":          "log-dev",
		"embedding.url":    "embedding-url",
		"embedding.model":  "model",
		"store.backend":    "backend",
		"store.address":    "address",
		"store.collection": "collection",
		"store.path":       "db",
	})
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pubmed-vector")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "pubmed-vector"))
		}
	}

	viper.SetEnvPrefix("PUBMED_VECTOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range configKeys {
		_ = viper.BindEnv(key)
	}
	for key, legacy := range legacyEnv {
		prefixed := "PUBMED_VECTOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(key, prefixed, legacy)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig decodes viper's merged view into a PipelineConfig, fills
// credentials from secret files and applies defaults.
func loadConfig(s map[string]string) (types.PipelineConfig, error) {
	var cfg types.PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	secrets.Apply(&cfg, s)
	if cfg.Store.Dimension == 0 {
		cfg.Store.Dimension = cfg.Embedding.Dimension
	}
	cfg = cfg.WithDefaults()
	if cfg.Store.Dimension != cfg.Embedding.Dimension {
		return cfg, fmt.Errorf("store dimension %d does not match embedding dimension %d",
			cfg.Store.Dimension, cfg.Embedding.Dimension)
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
