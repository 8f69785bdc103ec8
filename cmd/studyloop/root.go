package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kwlin/studyloop/internal/config"
	"github.com/kwlin/studyloop/internal/db"
	"github.com/kwlin/studyloop/internal/logging"
	"github.com/kwlin/studyloop/internal/notify"
	"github.com/kwlin/studyloop/internal/scheduler"
	syncpkg "github.com/kwlin/studyloop/internal/sync"
	"github.com/kwlin/studyloop/internal/sync/s3"
)

// app holds the wired core shared by all commands. Everything is constructed
// once in setup and torn down after the command runs.
type app struct {
	dataDir string
	verbose bool

	log      *logrus.Logger
	cfg      *config.Store
	database *db.DB
	repo     *db.Repository
	sched    *scheduler.Scheduler
	orch     *syncpkg.Orchestrator
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".studyloop"
	}
	return filepath.Join(home, ".studyloop")
}

func (a *app) setup() error {
	level := "info"
	if a.verbose {
		level = "debug"
	}
	a.log = logging.New(logging.Options{
		Level:      level,
		File:       filepath.Join(a.dataDir, "studyloop.log"),
		MaxSizeMB:  10,
		MaxBackups: 3,
	})

	cfg, err := config.Load(a.dataDir)
	if err != nil {
		return err
	}
	a.cfg = cfg

	database, err := db.Open(a.dataDir)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return err
	}
	a.database = database
	a.repo = db.NewRepository(database)

	a.sched = scheduler.New(a.repo, a.repo, notify.NewLogNotifier(a.log), a.log)

	backend, err := buildBackend(cfg.Remote())
	if err != nil {
		database.Close()
		return err
	}
	a.orch = syncpkg.NewOrchestrator(a.repo, backend, cfg, nil, a.log)

	// A burst of reviews pushes changed topics out ahead of the next full
	// pass.
	a.sched.SetReviewMilestone(cfg.IncrementalEveryReviews(), func() {
		go func() {
			if _, err := a.orch.PerformIncrementalSync(context.Background()); err != nil {
				a.log.WithError(err).Warn("review-milestone incremental sync failed")
			}
		}()
	})
	return nil
}

func (a *app) close() {
	if a.database != nil {
		a.database.Close()
	}
}

// buildBackend selects the remote client from settings. An empty provider
// yields an unconfigured client that never authenticates, so every sync pass
// skips cleanly until the user fills in remote credentials.
func buildBackend(remote config.Remote) (syncpkg.RemoteBackend, error) {
	switch remote.Provider {
	case "":
		return s3.New(s3.Config{}), nil
	case "aws":
		return s3.NewAWS(remote.Bucket, remote.AccessKey, remote.SecretKey, remote.Region), nil
	case "r2":
		return s3.NewR2(remote.AccountID, remote.Bucket, remote.AccessKey, remote.SecretKey)
	case "minio":
		return s3.NewMinIO(remote.Endpoint, remote.Bucket, remote.AccessKey, remote.SecretKey, remote.UseSSL), nil
	default:
		return nil, fmt.Errorf("unknown remote provider %q (want aws, r2 or minio)", remote.Provider)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "studyloop",
		Short:         "Spaced-repetition study tracker with offline-first sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", defaultDataDir(), "directory for database, settings and logs")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newAddCommand(a),
		newListCommand(a),
		newDueCommand(a),
		newReviewCommand(a),
		newResetCommand(a),
		newScheduleCommand(a),
		newRemoveCommand(a),
		newSyncCommand(a),
		newStatusCommand(a),
		newWatchCommand(a),
	)
	return root
}
