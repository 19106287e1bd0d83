package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibeckermayer/listen4me/internal/app"
	"github.com/ibeckermayer/listen4me/internal/config"
	"github.com/ibeckermayer/listen4me/internal/logging"
	"github.com/ibeckermayer/listen4me/internal/scheduler"
	"github.com/ibeckermayer/listen4me/internal/store"
)

func main() {
	boot := logging.NewJSON("info")

	// Load or create configuration
	path, err := config.ConfigPath()
	if err != nil {
		boot.WithError(err).Fatal("Failed to resolve config path")
	}
	cfg, existed, err := config.LoadOrDefault(path)
	if err != nil {
		boot.WithError(err).Fatal("Failed to load config")
	}
	if !existed {
		// First run - persist defaults so the categories can be edited
		if err := cfg.SaveTo(path); err != nil {
			boot.WithError(err).Warn("Could not save default config")
		} else {
			boot.WithField("path", path).Info("Created default config")
		}
	}

	logger := logging.NewJSON(cfg.LogLevel)

	dbPath, err := cfg.DBPath()
	if err != nil {
		logger.WithError(err).Fatal("Failed to resolve database path")
	}
	st, err := store.New(dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer st.Close()

	a, err := app.New(cfg, st, logger)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	sched, err := scheduler.New(cfg.Report.Timezone, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scheduler")
	}
	if err := sched.AddReportJob(cfg.Report.Schedule, a.ScheduledReport); err != nil {
		logger.WithError(err).Fatal("Failed to schedule report")
	}
	if err := sched.AddJob("reload-config", "@every 5m", func(context.Context) error {
		schedule := a.Config().Report.Schedule
		if err := a.ReloadConfig(); err != nil {
			return err
		}
		if next := a.Config().Report.Schedule; next != schedule {
			logger.WithField("schedule", next).Info("Report schedule changed")
			return sched.Reschedule("report", next, a.ScheduledReport)
		}
		return nil
	}); err != nil {
		logger.WithError(err).Fatal("Failed to schedule config reload")
	}

	if cfg.Report.RunOnStart {
		go sched.RunNow("report", a.ScheduledReport)
	}

	sched.Start()
	for _, j := range sched.ListJobs() {
		logger.WithField("job", j.Name).WithField("next_run", j.NextRun).Info("Scheduled")
	}
	logger.Info("listen4me starting...")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	<-sched.Stop().Done()
}
