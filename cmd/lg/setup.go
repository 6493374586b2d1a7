package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zulandar/linegrade/internal/config"
	"github.com/zulandar/linegrade/internal/db"
	"github.com/zulandar/linegrade/internal/dispatch"
	"github.com/zulandar/linegrade/internal/engine"
	"github.com/zulandar/linegrade/internal/logging"
	"github.com/zulandar/linegrade/internal/phrasecache"
	"github.com/zulandar/linegrade/internal/queue"
	"github.com/zulandar/linegrade/internal/rating"
	"github.com/zulandar/linegrade/internal/session"
	"github.com/zulandar/linegrade/internal/telegraph"
	"github.com/zulandar/linegrade/internal/telegraph/discord"
	"github.com/zulandar/linegrade/internal/telegraph/slack"
	"gorm.io/gorm"
)

const defaultConfigPath = "linegrade.yaml"

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to linegrade config file")
}

// loadConfig reads .env (when present) into the environment, loads the
// config file and installs the process logger.
func loadConfig(configPath string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if _, err := logging.New(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func dispatchOptions(cfg *config.Config) dispatch.Options {
	return dispatch.Options{
		BatchSize:   cfg.Queue.BatchSize,
		MaxAttempts: cfg.Queue.MaxAttempts,
		RepSpeakers: cfg.Dispatch.RepSpeakers,
	}
}

// buildRater returns the rating client, capped at the configured number of
// in-flight calls for the whole process.
func buildRater(cfg *config.Config) rating.Rater {
	client := rating.NewClient(rating.Config{
		BaseURL: cfg.Rating.BaseURL,
		APIKey:  cfg.Rating.APIKey,
		Model:   cfg.Rating.Model,
		Timeout: cfg.Rating.Timeout,
	}, rating.WithRetryMaxAttempts(cfg.Rating.RetryAttempts))
	return rating.Limit(client, cfg.Rating.MaxConcurrency)
}

// buildCache fronts the phrase table with an in-process LRU. Nil when the
// cache is disabled.
func buildCache(cfg *config.Config, gormDB *gorm.DB) *phrasecache.Guard {
	if cfg.Cache.Disabled {
		return nil
	}
	return phrasecache.NewGuard(phrasecache.NewLayered(
		phrasecache.NewMemoryCache(cfg.Cache.MemoryEntries),
		phrasecache.NewGormCache(gormDB),
	))
}

// workerFactory returns a RunPool factory whose workers share one rater and
// one cache.
func workerFactory(cfg *config.Config, gormDB *gorm.DB) func(i int) (*engine.Worker, error) {
	jobs := queue.New(gormDB)
	sessions := session.New(gormDB)
	cache := buildCache(cfg, gormDB)
	rater := buildRater(cfg)
	return func(int) (*engine.Worker, error) {
		return engine.NewWorker(jobs, sessions, cache, rater, engine.Options{
			Lease:        cfg.Queue.Lease,
			PollInterval: cfg.Queue.PollInterval,
		})
	}
}

// buildNotifier wires the configured chat platforms. The notifier is empty
// when none has a bot token.
func buildNotifier(cfg *config.Config) (*telegraph.Notifier, error) {
	var adapters []telegraph.Adapter
	if s := cfg.Alerts.Slack; s.BotToken != "" {
		a, err := slack.New(slack.AdapterOpts{BotToken: s.BotToken, ChannelID: s.ChannelID})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if d := cfg.Alerts.Discord; d.BotToken != "" {
		a, err := discord.New(discord.AdapterOpts{BotToken: d.BotToken, ChannelID: d.ChannelID})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return telegraph.NewNotifier(adapters...), nil
}
