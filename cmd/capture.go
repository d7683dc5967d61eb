package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/spf13/cobra"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run the webcam recognition loop without the web UI",
	Long: `Read frames from a camera, recognize every face and mark identified
students present. Each recognized face is printed as it is seen.

With --snapshot-dir the annotated frames are written there as JPEG files.
Stop with Ctrl+C or --duration.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().String("device", "", "Camera device index or stream URL (overrides CAMERA_DEVICE)")
	captureCmd.Flags().String("snapshot-dir", "", "Directory to write annotated frames to")
	captureCmd.Flags().Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	addRecognitionFlags(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if duration := mustGetDuration(cmd, "duration"); duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	snapshotDir := mustGetString(cmd, "snapshot-dir")
	if snapshotDir != "" {
		if err := os.MkdirAll(snapshotDir, 0o750); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	a, err := openApp(ctx, appOptions{recognition: true})
	if err != nil {
		return err
	}
	defer a.Close()
	a.applyRecognitionFlags(cmd)

	device := a.cfg.Camera.Device
	if d := mustGetString(cmd, "device"); d != "" {
		device = d
	}

	manager := newCaptureManager(a)
	session, err := manager.Start(device)
	if err != nil {
		return fmt.Errorf("failed to start capture on %s: %w", device, err)
	}
	events := session.AddListener()
	fmt.Printf("Capturing from %s (session %s), press Ctrl+C to stop\n", device, session.ID)

	var wg sync.WaitGroup
	if snapshotDir != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writeSnapshots(ctx, a, session, snapshotDir)
		}()
	}

	printCaptureEvents(ctx, events)

	if err := manager.Stop(session.ID); err != nil && !errors.Is(err, capture.ErrSessionNotFound) {
		a.logger.Warn("failed to stop session", "error", err)
	}
	wg.Wait()

	info := session.Info()
	fmt.Printf("\nProcessed %d frames, marked %d students present\n", info.Frames, info.Marked)
	return nil
}

// printCaptureEvents prints session events until ctx ends or the session stops.
func printCaptureEvents(ctx context.Context, events <-chan capture.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case capture.EventFaces:
				parts := make([]string, 0, len(ev.Faces))
				for _, f := range ev.Faces {
					parts = append(parts, fmt.Sprintf("%s (%s)", f.Label, f.Status))
				}
				fmt.Printf("%s  %s\n", ev.Time.Format(time.TimeOnly), strings.Join(parts, ", "))
			case capture.EventError:
				fmt.Printf("%s  error: %s\n", ev.Time.Format(time.TimeOnly), ev.Message)
			case capture.EventStopped:
				fmt.Println("Capture stopped")
				return
			}
		}
	}
}

// writeSnapshots stores every new annotated frame as snapshot_<seq>.jpg.
func writeSnapshots(ctx context.Context, a *app, session *capture.Session, dir string) {
	var seq uint64
	for {
		frame, next, err := session.NextFrame(ctx, seq)
		if err != nil {
			return
		}
		seq = next
		path := filepath.Join(dir, fmt.Sprintf("snapshot_%06d.jpg", seq))
		if err := os.WriteFile(path, frame, 0o600); err != nil {
			a.logger.Warn("failed to write snapshot", "path", path, "error", err)
		}
	}
}
