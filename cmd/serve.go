package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/capture/webcam"
	"github.com/kozaktomas/attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the attendance web server.
The web server provides a dashboard with the live camera stream, still image
recognition, the attendance table with CSV export and a JSON API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("device", "", "Default camera device (overrides CAMERA_DEVICE)")
	addRecognitionFlags(serveCmd)
}

// resolveServeHostPort prefers flags the user set over the environment.
func resolveServeHostPort(cmd *cobra.Command, a *app) (int, string) {
	port, host := a.cfg.Web.Port, a.cfg.Web.Host
	if cmd.Flags().Changed("port") {
		port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		host = mustGetString(cmd, "host")
	}
	return port, host
}

// newCaptureManager builds a session manager reading from webcams.
func newCaptureManager(a *app) *capture.Manager {
	cfg := capture.ManagerConfig{
		Processor: a.service,
		Opener:    webcam.Open,
		Logger:    a.logger,
	}
	if a.metrics != nil {
		cfg.Observer = a.metrics
	}
	return capture.NewManager(cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, appOptions{recognition: true, metrics: true})
	if err != nil {
		return err
	}
	defer a.Close()
	a.applyRecognitionFlags(cmd)

	index, err := a.loadIndex(ctx)
	if err != nil {
		a.logger.Warn("gallery search disabled", "error", err)
		index = nil
	}

	device := a.cfg.Camera.Device
	if d := mustGetString(cmd, "device"); d != "" {
		device = d
	}
	port, host := resolveServeHostPort(cmd, a)

	deps := web.Deps{
		Ledger:         a.ledger,
		Service:        a.service,
		Sessions:       newCaptureManager(a),
		Gallery:        a.gallery,
		Embedder:       a.embedder,
		Registry:       a.registry,
		CameraDevice:   device,
		AllowedOrigins: a.cfg.Web.AllowedOrigins,
		Logger:         a.logger,
	}
	if index != nil {
		deps.Index = index
	}

	server, err := web.NewServer(deps, host, port)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		if index != nil {
			a.saveIndex(index)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting attendance web UI on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
