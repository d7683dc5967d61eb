package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/disintegration/imaging"
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/recognition"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Recognize students in still images and mark them present",
	Long: `Recognize every face in each image and mark identified students present.
For each face a (label, status) pair is printed:

  <matric>  Present         newly recorded today
  <matric>  AlreadyMarked   already recorded today
  Unknown   Unknown         face not verified against any gallery

An unreadable file prints "Error  Cannot read image", an image without faces
prints "NoFace  None".

With --single each image is treated as one face crop and run through the
classifier and gallery verification directly. Attendance is only written
when --log is also given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("single", false, "Treat each image as a single face crop")
	recognizeCmd.Flags().Bool("log", false, "With --single, mark accepted faces present")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	addRecognitionFlags(recognizeCmd)
}

type recognizeOutput struct {
	File     string                `json:"file"`
	Results  []attendance.Pair     `json:"results"`
	Decision *recognition.Decision `json:"decision,omitempty"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	single := mustGetBool(cmd, "single")
	logAttendance := mustGetBool(cmd, "log")
	jsonOutput := mustGetBool(cmd, "json")

	if logAttendance && !single {
		return errors.New("--log only applies to --single; the multi-face pipeline always records attendance")
	}

	a, err := openApp(ctx, appOptions{recognition: true})
	if err != nil {
		return err
	}
	defer a.Close()
	a.applyRecognitionFlags(cmd)

	if single {
		opts := a.recognizer.Options()
		opts.LogAttendance = logAttendance
		a.recognizer.SetOptions(opts)
	}

	var (
		outputs []recognizeOutput
		errs    []error
	)
	for _, path := range args {
		var out recognizeOutput
		if single {
			out = recognizeSingle(ctx, a, path)
		} else {
			res, err := a.service.ProcessImageFile(ctx, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
			}
			out = recognizeOutput{File: path, Results: res.Pairs()}
		}
		outputs = append(outputs, out)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outputs); err != nil {
			return err
		}
	} else {
		printRecognizeOutputs(outputs)
	}
	return errors.Join(errs...)
}

func recognizeSingle(ctx context.Context, a *app, path string) recognizeOutput {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		a.logger.Warn("cannot read image", "path", path, "error", err)
		res := attendance.Result{Outcome: attendance.OutcomeUnreadable, Err: err}
		return recognizeOutput{File: path, Results: res.Pairs()}
	}

	d := a.recognizer.RecognizeFace(ctx, img)
	var status string
	switch d.Kind {
	case recognition.KindIdentified:
		status = "Verified"
	case recognition.KindNoFace:
		status = "None"
	case recognition.KindError:
		status = "Recognition failed"
		if d.Err != nil {
			status = d.Err.Error()
		}
	default:
		status = string(attendance.StatusUnknown)
	}
	return recognizeOutput{
		File:     path,
		Results:  []attendance.Pair{{Label: d.Label(), Status: status}},
		Decision: &d,
	}
}

func printRecognizeOutputs(outputs []recognizeOutput) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	multi := len(outputs) > 1
	if multi {
		fmt.Fprintln(w, "FILE\tLABEL\tSTATUS\tRATIO")
	} else {
		fmt.Fprintln(w, "LABEL\tSTATUS\tRATIO")
	}
	for _, out := range outputs {
		ratio := "-"
		if out.Decision != nil && out.Decision.Ratio >= 0 {
			ratio = fmt.Sprintf("%.2f", out.Decision.Ratio)
		}
		for _, p := range out.Results {
			if multi {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", out.File, p.Label, p.Status, ratio)
			} else {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Label, p.Status, ratio)
			}
		}
	}
	w.Flush()
}
