package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisper-darkly/dvr-engine/config"
	"github.com/whisper-darkly/dvr-engine/engine"
	"github.com/whisper-darkly/dvr-engine/notify"
	"github.com/whisper-darkly/dvr-engine/persist/sqlite"
	"github.com/whisper-darkly/dvr-engine/schema"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var confDir, notifyAddr string

	root := &cobra.Command{
		Use:     "dvrengine",
		Short:   "Recording-entry engine demo composition root",
		Version: version,
	}
	root.PersistentFlags().StringVar(&confDir, "conf-dir", env("CONF_DIR", "/data/conf"), "configuration directory (dvr.yaml, dvr.db)")
	root.PersistentFlags().StringVar(&notifyAddr, "notify-addr", env("NOTIFY_ADDR", ":8089"), "address the websocket notification hub listens on")

	root.AddCommand(serveCmd(&confDir, &notifyAddr))
	return root
}

// serveCmd wires config, sqlite persistence, the websocket notification
// hub, and a standalone demo channel/EPG/recorder/rule-engine set into a
// running Engine, then blocks until interrupted — mirroring the teacher's
// signal-handling and graceful-shutdown structure with the engine in place
// of the subscription-worker manager.
func serveCmd(confDir, notifyAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("dvrengine %s\n", version)

			if err := os.MkdirAll(*confDir, 0o755); err != nil {
				return fmt.Errorf("conf dir: %w", err)
			}

			cfg, err := config.Load(*confDir)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			store, err := sqlite.Open(filepath.Join(*confDir, "dvr.db"))
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer store.Close()

			hub := notify.NewHub(cfg.Get().NextStartCoalesce)

			outputRoot := filepath.Join(*confDir, "recordings")
			if err := os.MkdirAll(outputRoot, 0o755); err != nil {
				return fmt.Errorf("output root: %w", err)
			}

			eng, err := engine.New(engine.Options{
				Config: cfg,
				Channels: newDemoInventory(
					demoChannel{id: "ch1", name: "Demo One"},
					demoChannel{id: "ch2", name: "Demo Two"},
				),
				EPG:        demoSchedule{},
				Autorecs:   demoAutorecs{},
				Timerecs:   demoTimerecs{},
				Recorder:   newDemoRecorder(cfg),
				Store:      store,
				Bus:        hub,
				OutputRoot: outputRoot,
			})
			if err != nil {
				return fmt.Errorf("engine: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			engErrCh := make(chan error, 1)
			go func() { engErrCh <- eng.Run(ctx) }()

			mux := http.NewServeMux()
			mux.Handle("/ws", hub)
			srv := &http.Server{Addr: *notifyAddr, Handler: mux}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				log.Printf("dvrengine: notify hub listening on %s", *notifyAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("dvrengine: http: %v", err)
				}
			}()

			// Seed one manually created entry so the demo has something
			// to schedule immediately.
			seedDemoEntry(eng)

			select {
			case <-sigCh:
				log.Println("dvrengine: shutting down…")
			case err := <-engErrCh:
				if err != nil {
					log.Printf("dvrengine: engine: %v", err)
				}
			}
			cancel()

			shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutCancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				log.Printf("dvrengine: http shutdown: %v", err)
			}
			if err := hub.Shutdown(shutCtx); err != nil {
				log.Printf("dvrengine: notify hub shutdown: %v", err)
			}
			return <-engErrCh
		},
	}
}

func seedDemoEntry(eng *engine.Engine) {
	now := time.Now()
	_, err := eng.Create(schema.Props{
		"start":   now.Add(time.Minute),
		"stop":    now.Add(31 * time.Minute),
		"title":   map[string]string{"": "Demo Recording"},
		"channel": "ch1",
		"owner":   "demo",
		"creator": "dvrengine serve",
	})
	if err != nil {
		log.Printf("dvrengine: seed entry: %v", err)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
