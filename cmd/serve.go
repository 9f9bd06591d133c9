package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-recognizer/internal/config"
	"github.com/kozaktomas/face-recognizer/internal/engine"
	"github.com/kozaktomas/face-recognizer/internal/logging"
	"github.com/kozaktomas/face-recognizer/internal/recognition"
	"github.com/kozaktomas/face-recognizer/internal/video"
	"github.com/kozaktomas/face-recognizer/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Recognizer web server.
The server exposes the gallery, the capture flow and the recognition session
over HTTP. Per-frame results are streamed as server-sent events.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("autostart", false, "Start the recognition session as soon as the camera is open")
}

// applyServeFlags overrides the web settings with explicitly set flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	log := logging.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A gallery that fails to load must not be replaced by an empty one on the next write.
	g, _, kv, err := openGallery(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading gallery: %w", err)
	}
	defer kv.Close()
	log.Info().Str("backend", cfg.Store.Backend).Int("labels", g.Len()).Msg("gallery loaded")

	client := engine.NewClient(engine.Options{
		URL:             cfg.Engine.URL,
		Timeout:         cfg.Engine.Timeout,
		BreakerFailures: cfg.Engine.BreakerFailures,
		BreakerCooldown: cfg.Engine.BreakerCooldown,
		Logger:          logging.Component("engine"),
	})

	camera := video.NewSnapshotSource(video.SnapshotOptions{
		URL:          cfg.Camera.SnapshotURL,
		PollInterval: cfg.Camera.PollInterval,
		StaleAfter:   cfg.Camera.StaleAfter,
		Logger:       logging.Component("camera"),
	})
	if cfg.Camera.SnapshotURL != "" {
		if err := camera.Open(ctx); err != nil {
			return fmt.Errorf("opening camera: %w", err)
		}
	} else {
		log.Warn().Msg("CAMERA_SNAPSHOT_URL is not set, session and capture are unavailable")
	}
	defer camera.Close()

	fast, accurate := profiles(cfg)
	session := recognition.NewSession(camera, client, g, nil, recognition.SessionOptions{
		TickPeriod: cfg.Recognition.TickPeriod,
		Profile:    fast,
		Logger:     logging.Component("session"),
	})
	defer session.Stop()
	capture := recognition.NewCaptureFlow(camera, client, g, session, recognition.CaptureOptions{
		Profile: accurate,
		Logger:  logging.Component("capture"),
	})

	if mustGetBool(cmd, "autostart") && camera.Active() {
		if err := session.Start(ctx); err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
	}

	server := web.NewServer(&cfg.Web, web.Deps{
		Gallery: g,
		Capture: capture,
		Session: session,
		Engine:  client,
		Logger:  logging.Component("web"),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		session.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	fmt.Printf("Starting Face Recognizer on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
