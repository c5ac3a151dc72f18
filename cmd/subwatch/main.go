package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/subwatch/subwatch"
	"github.com/subwatch/subwatch/internal/provconfig"
	"github.com/subwatch/subwatch/internal/store"
	"github.com/subwatch/subwatch/internal/tracker"
	_ "github.com/subwatch/subwatch/providers"
)

const appName = "subwatch"

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = subwatch.WithLogger(ctx, logger)

	app := &cli.App{
		Name:  appName,
		Usage: "track channel subscriptions across video platforms",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data-dir",
				Value: defaultDataDir(),
				Usage: "store databases in `DIR`",
			},
		},
		Commands: []*cli.Command{
			providersCommand(),
			configureCommand(),
			unconfigureCommand(),
			addCommand(),
			listCommand(),
			syncCommand(),
			watchCommand(),
		},
		HideHelpCommand: true,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Fatal(err.Error())
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return "."
}

type env struct {
	store   *store.Store
	configs provconfig.Store
	tracker *tracker.Tracker
}

func openEnv(c *cli.Context) (*env, error) {
	dataDir := c.String("data-dir")
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, err
	}
	st, err := store.New(filepath.Join(dataDir, "subwatch.sqlite3"), zap.L())
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		_ = st.Close()
		return nil, err
	}
	configs, err := provconfig.Open(filepath.Join(dataDir, "providers.db"))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	cfg := tracker.DefaultConfig
	cfg.Store = st
	cfg.ConfigStore = configs
	if interval := c.Duration("interval"); interval > 0 {
		cfg.SyncInterval = interval
	}
	t := tracker.New(cfg)
	if err := t.RestoreProviders(c.Context); err != nil {
		zap.S().Warnf("failed to restore some providers: %v", err)
	}
	return &env{store: st, configs: configs, tracker: t}, nil
}

func (e *env) close() {
	e.tracker.Close()
	_ = e.configs.Close()
	_ = e.store.Close()
}

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "list available providers and their state",
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			for _, id := range subwatch.DefaultProviderRegistry.List() {
				p, err := subwatch.DefaultProviderRegistry.Get(id)
				if err != nil {
					return err
				}
				info := p.Info()
				fmt.Printf("%s\t%s\t%s\n", info.ID, p.State(), info.Name)
				for _, field := range info.Settings {
					required := ""
					if field.Required {
						required = " (required)"
					}
					fmt.Printf("\t%s\t%s%s\n", field.Key, field.Label, required)
				}
			}
			return nil
		},
	}
}

func configureCommand() *cli.Command {
	return &cli.Command{
		Name:      "configure",
		Usage:     "configure a provider from a YAML settings file",
		ArgsUsage: "PROVIDER",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "settings",
				Usage:    "read settings from YAML `FILE`",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one provider id")
			}
			data, err := os.ReadFile(c.String("settings"))
			if err != nil {
				return err
			}
			var config subwatch.Configuration
			if err := yaml.Unmarshal(data, &config); err != nil {
				return fmt.Errorf("failed to parse settings file: %w", err)
			}
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.tracker.ConfigureProvider(c.Context, c.Args().First(), config); err != nil {
				var verr *subwatch.ValidationError
				if errors.As(err, &verr) {
					for field, message := range verr.Fields {
						fmt.Fprintf(os.Stderr, "%s: %s\n", field, message)
					}
				}
				return err
			}
			return nil
		},
	}
}

func unconfigureCommand() *cli.Command {
	return &cli.Command{
		Name:      "unconfigure",
		Usage:     "remove a provider's configuration",
		ArgsUsage: "PROVIDER",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one provider id")
			}
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			return e.tracker.UnconfigureProvider(c.Context, c.Args().First())
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "subscribe to one or more channel URLs",
		ArgsUsage: "URL...",
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			for _, rawURL := range c.Args().Slice() {
				sub, err := e.tracker.AddSubscription(c.Context, rawURL)
				if errors.Is(err, tracker.ErrSubscriptionExists) {
					fmt.Printf("already subscribed to %s\n", sub.Name)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Printf("subscribed to %s (%s)\n", sub.Name, sub.Provider)
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list subscriptions and their new videos",
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			subs, err := e.store.ListSubscriptions()
			if err != nil {
				return err
			}
			for _, sub := range subs {
				videos, err := e.store.ListVideos(sub.ID)
				if err != nil {
					return err
				}
				unseen := 0
				for _, video := range videos {
					if video.New {
						unseen++
					}
				}
				fmt.Printf("%s\t%s\t%d videos (%d new)\n", sub.Provider, sub.Name, len(videos), unseen)
			}
			return nil
		},
	}
}

func updateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "metadata",
			Value: true,
			Usage: "refresh video metadata (title, description)",
		},
		&cli.BoolFlag{
			Name:  "statistics",
			Value: false,
			Usage: "refresh video statistics (view counts)",
		},
	}
}

func updateOptions(c *cli.Context) subwatch.UpdateOptions {
	return subwatch.UpdateOptions{
		Metadata:   c.Bool("metadata"),
		Statistics: c.Bool("statistics"),
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "sync every subscription once",
		Flags: updateFlags(),
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			subs, err := e.store.ListSubscriptions()
			if err != nil {
				return err
			}
			opts := updateOptions(c)
			bar := progressbar.Default(int64(len(subs)), "syncing")
			var failures int
			for i := range subs {
				sub := &subs[i]
				if _, err := e.tracker.SyncSubscription(c.Context, sub); err != nil {
					zap.S().Warnf("sync failed for %s: %v", sub.Name, err)
					failures++
				} else if err := e.tracker.RefreshVideos(c.Context, sub, opts); err != nil {
					zap.S().Warnf("refresh finished with errors for %s: %v", sub.Name, err)
				}
				_ = bar.Add(1)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d subscriptions failed to sync", failures, len(subs))
			}
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "sync periodically until interrupted",
		Flags: append(updateFlags(),
			&cli.DurationFlag{
				Name:  "interval",
				Value: 30 * time.Minute,
				Usage: "time between sync passes",
			},
		),
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			events, err := e.tracker.Subscribe()
			if err != nil {
				return err
			}
			go func() {
				logger := zap.S()
				for event := range events.Receive() {
					switch e := event.(type) {
					case tracker.SubscriptionAdded:
						logger.Infof("subscribed to %s", e.Subscription.Name)
					case tracker.VideosDiscovered:
						for _, video := range e.Videos {
							logger.Infof("new video from %s: %s", e.Subscription.Name, video.Title)
						}
					case tracker.VideoUpdated:
						for _, change := range e.Changes {
							logger.Debugf("%s %v: %#v -> %#v", e.Video.VideoID, change.Path, change.From, change.To)
						}
					}
				}
			}()
			err = e.tracker.Run(c.Context, updateOptions(c))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
