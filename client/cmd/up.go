package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/driftdeskio/driftdesk/client/internal/updater"
	"github.com/driftdeskio/driftdesk/client/internal/updater/feedengine"
	"github.com/driftdeskio/driftdesk/util"
	"github.com/driftdeskio/driftdesk/version"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "run the update coordinator until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		util.SetFlagsFromEnvVars(rootCmd)
		if err := setupLog(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coordinator, engine, err := startCoordinator(ctx)
		if err != nil {
			return err
		}

		var mu sync.Mutex
		if devMode {
			// policy is immutable per coordinator, a changed override file
			// means tearing the coordinator down and building a new one
			restart := func() {
				mu.Lock()
				defer mu.Unlock()
				coordinator.Stop()
				next, nextEngine, err := startCoordinator(ctx)
				if err != nil {
					log.Errorf("failed to restart coordinator after config change: %v", err)
					return
				}
				coordinator, engine = next, nextEngine
			}
			go watchDevConfig(ctx, configPath, restart)
		}

		<-ctx.Done()
		mu.Lock()
		coordinator.Stop()
		engine.Wait()
		engine.InstallOnQuit()
		mu.Unlock()
		return nil
	},
}

func startCoordinator(ctx context.Context) (*updater.Coordinator, *feedengine.Engine, error) {
	cfg, err := buildUpdaterConfig()
	if err != nil {
		return nil, nil, err
	}

	engine, err := feedengine.New(version.DriftdeskVersion())
	if err != nil {
		return nil, nil, err
	}
	engine.SetQuitHandler(func() {
		log.Infof("installer launched, exiting for update")
		os.Exit(0)
	})

	coordinator, err := updater.NewCoordinator(cfg, version.DriftdeskVersion(), engine, nil)
	if err != nil {
		return nil, nil, err
	}

	coordinator.Start(ctx)
	log.Infof("update coordinator running, poll interval %s", cfg.PollInterval)
	return coordinator, engine, nil
}

// watchDevConfig restarts the coordinator whenever the development feed
// override file is rewritten.
func watchDevConfig(ctx context.Context, path string, restart func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("failed to create dev config watcher: %v", err)
		return
	}
	defer func() {
		_ = watcher.Close()
	}()

	// watch the directory, editors replace the file on save
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Errorf("failed to watch %s: %v", filepath.Dir(path), err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Infof("dev feed config changed, restarting coordinator")
			restart()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("dev config watcher error: %v", err)
		}
	}
}
