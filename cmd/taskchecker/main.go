// Package main is the entry point of taskchecker.
//
// taskchecker grades a course of Java/Gradle assignments: it clones every
// student's repository, builds and tests the configured tasks, checks
// deadlines against the commit history, counts weekly commit activity and
// optionally runs a plagiarism check. The result is one JSON report per run.
//
// By default a single run is performed. With -watch the course is graded
// again every RUN_WATCH_INTERVAL until the process is stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alem-hub/taskchecker/config"
	"github.com/alem-hub/taskchecker/internal/application/checker"
	"github.com/alem-hub/taskchecker/internal/domain/grading"
	"github.com/alem-hub/taskchecker/internal/infrastructure/external/github"
	"github.com/alem-hub/taskchecker/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/taskchecker/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/taskchecker/internal/infrastructure/plagiarism"
	"github.com/alem-hub/taskchecker/internal/infrastructure/report"
	"github.com/alem-hub/taskchecker/internal/infrastructure/scheduler"
	"github.com/alem-hub/taskchecker/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/taskchecker/internal/infrastructure/toolchain"
	"github.com/alem-hub/taskchecker/internal/infrastructure/vcs"
	statushttp "github.com/alem-hub/taskchecker/internal/interface/http"
	"github.com/alem-hub/taskchecker/internal/interface/http/handlers"
	"github.com/alem-hub/taskchecker/pkg/logger"
	"github.com/alem-hub/taskchecker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

type flags struct {
	course string
	watch  bool
}

func main() {
	var f flags
	flag.StringVar(&f.course, "course", "", "course file (overrides COURSE_FILE)")
	flag.BoolVar(&f.watch, "watch", false, "grade again every RUN_WATCH_INTERVAL until stopped")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f flags) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f.course != "" {
		cfg.Run.CourseFile = f.course
	}

	log := setupLogger(cfg)
	ctx = logger.WithContext(ctx, log)

	course, err := config.LoadCourse(cfg.Run.CourseFile)
	if err != nil {
		return err
	}
	token := course.Token(cfg.GitHub)
	log.Info("starting taskchecker",
		"env", cfg.App.Environment,
		"course", cfg.Run.CourseFile,
		"summary", course.String(),
		"toolchain", cfg.Toolchain.Driver,
		"watch", f.watch,
	)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TOOLCHAIN AND REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	hostRunner := toolchain.NewLocalRunner(cfg.Toolchain.CommandTimeout)

	var buildRunner toolchain.Runner = hostRunner
	if cfg.Toolchain.Driver == config.DriverDocker {
		client, err := toolchain.NewDockerClient()
		if err != nil {
			return fmt.Errorf("failed to connect to docker: %w", err)
		}
		defer client.Close()
		health.AddCheck("docker", func(ctx context.Context) error {
			_, err := client.Ping(ctx)
			return err
		})
		buildRunner = toolchain.NewDockerRunner(client, toolchain.DockerConfig{
			Image:    cfg.Toolchain.DockerImage,
			MemoryMB: cfg.Toolchain.DockerMemoryMB,
			CPUs:     cfg.Toolchain.DockerCPUs,
			Timeout:  cfg.Toolchain.CommandTimeout,
			Network:  cfg.Toolchain.DockerNetwork,
		})
	}
	if cfg.Toolchain.MaxConcurrent > 0 {
		buildRunner = toolchain.NewConcurrencyLimit(buildRunner, cfg.Toolchain.MaxConcurrent)
	}

	gradleCfg := toolchain.DefaultGradleConfig()
	gradleCfg.Executable = cfg.Toolchain.GradleExecutable
	gradleCfg.UseWrapper = cfg.Toolchain.UseWrapper
	gradle := toolchain.NewGradle(buildRunner, gradleCfg)

	git, err := vcs.New(vcs.Config{
		Root:     course.Settings.RepositoriesPath,
		Token:    token,
		Location: cfg.App.Location,
	})
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. COMMIT ACTIVITY (GitHub, optionally cached in Redis)
	// ─────────────────────────────────────────────────────────────────────────
	ghCfg := github.DefaultClientConfig(token)
	ghCfg.BaseURL = cfg.GitHub.BaseURL
	ghCfg.DefaultRepository = cfg.GitHub.DefaultRepository
	ghCfg.Timeout = cfg.GitHub.RequestTimeout
	ghCfg.RateLimiterConfig.RequestsPerSecond = cfg.GitHub.RequestsPerSecond
	ghCfg.RateLimiterConfig.BurstSize = cfg.GitHub.Burst
	ghCfg.Logger = log
	var activity checker.ActivityQuery = github.NewClient(ghCfg)

	var progress checker.ProgressPublisher
	if !cfg.Redis.Disabled {
		cache, err := redis.Connect(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		} else {
			defer cache.Close()
			health.AddCheck("redis", cache.Ping)
			activity = redis.NewActivityCache(cache, activity, cfg.Redis.ActivityTTL)
			progress = redis.NewProgressPublisher(cache, cfg.Redis.ProgressChannel, timeutil.SystemClock)
			log.Info("Redis connection established", "channel", cfg.Redis.ProgressChannel)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REPORT SINKS
	// ─────────────────────────────────────────────────────────────────────────
	sinks := []report.Named{{Name: "file", Sink: report.NewFileSink(cfg.Run.ReportDir)}}

	if cfg.Storage.Endpoint != "" {
		objCfg := report.ObjectConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Region:    cfg.Storage.Region,
			Bucket:    cfg.Storage.Bucket,
			Prefix:    cfg.Storage.Prefix,
		}
		client, err := report.NewMinioClient(objCfg)
		if err != nil {
			return err
		}
		objects := report.NewObjectSink(client, objCfg)
		if err := objects.EnsureBucket(ctx); err != nil {
			return err
		}
		sinks = append(sinks, report.Named{Name: "object", Sink: objects})
	}

	if cfg.Database.URL != "" {
		conn, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		health.AddCheck("postgres", conn.Ping)
		store := postgres.NewReportStore(conn, report.EncodeWithDigest)
		sinks = append(sinks, report.Named{Name: "postgres", Sink: store})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. CHECK RUNNER
	// ─────────────────────────────────────────────────────────────────────────
	deps := checker.RunnerDeps{
		Stages: checker.Stages{
			Sync:      git,
			Build:     gradle,
			Test:      gradle,
			Docs:      gradle,
			Deadlines: git,
			Cleaner:   git,
		},
		Activity: activity,
		Sink:     report.NewMultiSink(sinks...),
		Progress: progress,
		Logger:   log,
	}
	if len(course.PlagiarismCandidates) > 0 {
		// JPlag reads the working copies from the host file system.
		deps.Plagiarism = plagiarism.New(hostRunner, plagiarism.Config{
			Java:         cfg.Plagiarism.Java,
			Jar:          cfg.Plagiarism.Jar,
			Language:     cfg.Plagiarism.Language,
			ReportFolder: course.Settings.PlagiarismReportFolder,
		}, timeutil.SystemClock)
	}

	runner, err := checker.NewRunner(checker.RunnerConfig{
		Roster:               course.Roster,
		Assignments:          course.Assignments,
		Settings:             course.Settings,
		PlagiarismCandidates: course.PlagiarismCandidates,
		Workers:              cfg.Run.Workers,
		DeliveryTimeout:      cfg.Run.DeliveryTimeout,
	}, deps)
	if err != nil {
		return err
	}
	log.Info("check runner ready",
		"students", len(runner.Items()),
		"workers", runner.Workers(),
		"sinks", len(sinks),
	)

	job := jobs.NewGradeCourseJob(runner, log, jobs.GradeCourseConfig{
		Timeout:          cfg.Run.Timeout,
		MaxDegradedRatio: cfg.Run.MaxDegradedRatio,
	})

	if !f.watch {
		return runOnce(ctx, job, runner, log)
	}
	return watch(ctx, job, runner, health, cfg, log)
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN MODES
// ══════════════════════════════════════════════════════════════════════════════

func runOnce(ctx context.Context, job *jobs.GradeCourseJob, runner *checker.Runner, log *slog.Logger) error {
	err := job.Run(ctx)
	if stats := runner.LastRun(); stats != nil {
		logMarks(log, stats.Report)
	}
	return err
}

func watch(ctx context.Context, job *jobs.GradeCourseJob, runner *checker.Runner,
	health *handlers.CompositeHealthChecker, cfg *config.Config, log *slog.Logger,
) error {
	schedule, err := scheduler.NewIntervalSchedule(cfg.Run.WatchInterval)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		Logger:       log,
		TickInterval: scheduler.DefaultConfig().TickInterval,
		RunOnStart:   true,
	})
	if err := sched.Register(job, schedule); err != nil {
		return err
	}
	sched.OnJobComplete(func(res scheduler.JobResult) {
		if stats := job.LastStats(); stats != nil && res.Success {
			log.Info("next run scheduled", "run_id", stats.RunID, "interval", schedule.String())
		}
	})

	var server *statushttp.Server
	if !cfg.HTTP.Disabled {
		httpCfg := statushttp.DefaultConfig()
		httpCfg.Addr = cfg.HTTP.Addr
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
		server = statushttp.NewServer(httpCfg, statushttp.Dependencies{
			Jobs:   sched,
			Runs:   runner,
			Health: health,
			Logger: log,
		})
		if err := server.Start(ctx); err != nil {
			return err
		}
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	log.Info("watching course", "interval", schedule.String())

	<-ctx.Done()
	log.Info("received shutdown signal, waiting for the current run", "timeout", cfg.App.ShutdownTimeout)

	shutdown, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdown); err != nil {
			log.Warn("HTTP server shutdown", logger.Err(err))
		}
	}

	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()

	select {
	case err := <-stopped:
		if err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			return err
		}
	case <-shutdown.Done():
		return fmt.Errorf("shutdown timed out after %s", cfg.App.ShutdownTimeout)
	}
	log.Info("shutdown completed successfully")
	return nil
}

// logMarks logs one line per graded student.
func logMarks(log *slog.Logger, r *grading.Report) {
	if r == nil {
		return
	}
	for _, res := range r.Results {
		s, ok := r.Summary(res.Student.Nickname)
		if !ok {
			continue
		}
		log.Info("graded",
			logger.StudentID(res.Student.Nickname),
			"tasks", s.TaskPoints,
			"activity", s.ActivityPoints,
			"total", s.Total,
			"mark", s.Mark,
			"degraded", res.Degraded,
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func openDatabase(ctx context.Context, dbCfg config.DatabaseConfig, log *slog.Logger) (*postgres.Connection, error) {
	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = dbCfg.URL
	pgCfg.MaxConns = int32(dbCfg.MaxConns)
	pgCfg.MaxConnLifetime = dbCfg.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = dbCfg.ConnMaxIdleTime

	log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrator := postgres.NewMigrator(conn)
	if err := migrator.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if status, err := migrator.Status(ctx); err == nil {
		for _, m := range status {
			log.Debug("migration", "version", m.Version, "name", m.Name, "applied_at", m.AppliedAt)
		}
	}
	log.Info("database schema is up to date")

	return conn, nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}
	opts.JSON = cfg.Observability.LogFormat == "json" && !cfg.IsDevelopment()
	opts.Output = os.Stderr

	log := logger.New(opts)
	slog.SetDefault(log)
	return log
}
