package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"covidboard/internal/config"
	"covidboard/internal/covid"
	"covidboard/internal/dashboard"
	appLog "covidboard/internal/log"
	"covidboard/internal/news"
	"covidboard/internal/sched"
	"covidboard/internal/store"
	"covidboard/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	csvPath    string
	once       bool
}

func main() {
	appLog.Info("covidboard starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevelFromString(conf.LogLevel)

	// CLI -listen overrides the config file if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh_cron", conf.RefreshCron,
		"area_name", conf.Covid.AreaName,
		"area_type", conf.Covid.AreaType,
		"news_api", conf.News.APIKey != "",
		"rss_count", len(conf.News.RSS),
		"database", conf.Database,
		"once", flags.once,
	)

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone, falling back to UTC", err, "timezone", conf.Timezone)
		loc = time.UTC
	}

	var st store.Store = store.Noop{}
	if conf.Database != "" {
		db, err := store.Open(conf.Database)
		if err != nil {
			appLog.Error("failed to open database", err, "database", conf.Database)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		st = db
	}

	var api *news.APIClient
	if conf.News.APIKey != "" {
		api = news.NewAPIClient("", conf.News.APIKey)
	} else {
		appLog.Warn("no news API key configured, using RSS sources only")
	}
	feed := news.NewFeed(api, conf.RSSSources(), conf.News.CovidTerms)

	// Scheduled update times are interpreted in the configured zone, not
	// the host zone.
	dash := dashboard.New(conf, covid.NewClient(""), feed, st,
		dashboard.WithSchedulerOptions(sched.WithClock(func() time.Time {
			return time.Now().In(loc)
		})))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.csvPath != "" {
		if err := dash.InitFromCSV(ctx, flags.csvPath); err != nil {
			appLog.Error("failed to seed from CSV", err, "path", flags.csvPath)
			os.Exit(1)
		}
	} else {
		dash.Init(ctx)
	}

	if flags.once {
		appLog.Info("single cycle complete, exiting")
		return
	}

	// One cron drives both the minute tick for scheduled updates and
	// the periodic background refresh.
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc("* * * * *", func() {
		dash.Tick(time.Now().In(loc))
	}); err != nil {
		appLog.Error("failed to register tick job", err)
		os.Exit(1)
	}
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		refreshCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		if err := dash.RefreshCovid(refreshCtx); err != nil {
			appLog.Error("periodic covid refresh failed", err)
		}
		if err := dash.RefreshNews(refreshCtx); err != nil {
			appLog.Error("periodic news refresh failed", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh cron expression", err, "cron", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	if err := web.StartServer(ctx, conf, dash); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("covidboard exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.csvPath, "csv", "", "Seed statistics from a downloaded CSV instead of the live API")
	flag.BoolVar(&cfg.once, "once", false, "Fetch data once, print nothing, and exit")

	flag.Parse()

	return cfg
}
