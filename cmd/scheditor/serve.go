package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"scheditor/internal/config"
	"scheditor/internal/events"
	"scheditor/internal/ics"
	appLog "scheditor/internal/log"
	"scheditor/internal/metrics"
	"scheditor/internal/model"
	"scheditor/internal/remote"
	"scheditor/internal/schema"
	"scheditor/internal/store"
	"scheditor/internal/web"
)

// loadConfig reads the config file, applies .env files and SCHEDITOR_*
// overrides, and sets the log level.
func loadConfig(c *cli.Context) (*config.Config, error) {
	config.LoadDotEnv(c.StringSlice("env")...)

	path := c.String("config")
	conf, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	conf.ApplyEnv()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	return conf, nil
}

// loadSchema opens the watched schema store. A missing schema file means
// no custom fields.
func loadSchema(conf *config.Config) (*schema.Store, bool, error) {
	st, err := schema.NewStore(conf.SchemaPath)
	if err == nil {
		return st, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("field schema not found; only built-in fields", "path", conf.SchemaPath)
		st, err = schema.NewStaticStore(nil)
		return st, false, err
	}
	return nil, false, err
}

// isFeedEvent reports whether rec came from an ICS subscription.
func isFeedEvent(rec model.EventRecord) bool {
	s, _ := rec.Value(ics.SourceField).(string)
	return s != ""
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
		},
		Action: func(c *cli.Context) error {
			conf, err := loadConfig(c)
			if err != nil {
				return err
			}
			if l := c.String("listen"); l != "" {
				conf.Listen = l
			}
			return serve(c.Context, conf)
		},
	}
}

func serve(parent context.Context, conf *config.Config) error {
	appLog.Info("scheditor starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"schema_path", conf.SchemaPath,
		"data_path", conf.DataPath,
		"snapshot_cron", conf.SnapshotCron,
		"feed_count", len(conf.Feeds),
		"remote", conf.Remote.BaseURL != "",
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register(prometheus.DefaultRegisterer)

	fields, watch, err := loadSchema(conf)
	if err != nil {
		return fmt.Errorf("load field schema: %w", err)
	}
	if watch {
		if err := fields.Start(ctx); err != nil {
			appLog.Error("field schema watch disabled", err, "path", conf.SchemaPath)
		}
	}

	seed, err := ics.LoadFile(conf.DataPath)
	if err != nil {
		return fmt.Errorf("load events %s: %w", conf.DataPath, err)
	}
	collection := store.New(seed)
	appLog.Info("event collection loaded", "path", conf.DataPath, "events", collection.Len())

	dispatcher, closeSinks, err := events.FromConfig(conf.Notify)
	if err != nil {
		return fmt.Errorf("notification sinks: %w", err)
	}
	if dispatcher.Len() > 0 {
		collection.OnChange(func(ch store.Change) {
			// 구독 피드에서 들어온 변경은 알리지 않는다.
			if isFeedEvent(ch.Record) {
				return
			}
			dispatcher.Dispatch(context.WithoutCancel(ctx), events.Lifecycle(ch.Action, ch.Record))
		})
	}

	deps := web.Deps{
		Config: conf,
		Schema: fields,
		Events: collection,
	}
	if conf.Remote.BaseURL != "" {
		rc := remote.New(conf.Remote.BaseURL,
			remote.WithToken(conf.Remote.Token),
			remote.WithTimeout(conf.Remote.Timeout),
		)
		deps.Confirmer = rc
		deps.Remover = rc
	}

	var wg sync.WaitGroup

	snap := &ics.Snapshotter{
		Path: conf.DataPath,
		Events: func() []model.EventRecord {
			all := collection.Events()
			out := all[:0]
			for _, ev := range all {
				if !isFeedEvent(ev) {
					out = append(out, ev)
				}
			}
			return out
		},
		Options: ics.EncodeOptions{Name: "scheditor"},
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := snap.Run(ctx, conf.SnapshotCron); err != nil {
			appLog.Error("event snapshot failed", err, "path", conf.DataPath)
		}
	}()

	if len(conf.Feeds) > 0 {
		sources := make([]ics.Source, 0, len(conf.Feeds))
		for _, f := range conf.Feeds {
			sources = append(sources, ics.Source{ID: f.ID, URL: f.URL})
		}
		im := &ics.Importer{
			Fetcher: ics.NewFetcher(conf.FeedCacheDir),
			Sources: sources,
			Target:  collection,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = im.SyncAll(ctx)
			if err := ics.Schedule(ctx, conf.FeedCron, "feeds", func() error { return im.SyncAll(ctx) }); err != nil {
				appLog.Error("feed schedule failed", err, "spec", conf.FeedCron)
			}
		}()
	}

	srv := web.NewServer(deps)
	serveErr := srv.Serve(ctx)
	stop()

	wg.Wait()

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Wait(waitCtx); err != nil {
		appLog.Warn("pending notifications abandoned", "err", err.Error())
	}
	if err := closeSinks(); err != nil {
		appLog.Error("closing notification sinks", err)
	}
	appLog.Info("scheditor exiting")
	return serveErr
}
