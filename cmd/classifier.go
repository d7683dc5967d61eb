package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/attendance/internal/classifier"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/spf13/cobra"
)

var classifierCmd = &cobra.Command{
	Use:   "classifier",
	Short: "Inspect the identity classifier",
}

var classifierInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the classifier classes and check them against the label file",
	Long: `Load the configured classifier (CLASSIFIER_BACKEND, CLASSIFIER_MODEL_PATH)
and label file (CLASSIFIER_LABELS_PATH), check that both describe the same
number of classes and print them.

With --check-gallery every class is also looked up in the gallery; classes
without reference vectors can never be accepted.`,
	Args: cobra.NoArgs,
	RunE: runClassifierInspect,
}

func init() {
	rootCmd.AddCommand(classifierCmd)
	classifierCmd.AddCommand(classifierInspectCmd)

	classifierInspectCmd.Flags().Bool("check-gallery", false, "Report classes without gallery vectors")
}

func runClassifierInspect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	model, labels, err := classifier.Load(cfg.Classifier)
	if err != nil {
		return err
	}
	if c, ok := model.(interface{ Close() }); ok {
		defer c.Close()
	}

	fmt.Printf("Backend:   %s\n", cfg.Classifier.Backend)
	fmt.Printf("Model:     %s\n", cfg.Classifier.ModelPath)
	fmt.Printf("Classes:   %d\n", model.NumClasses())
	fmt.Printf("Embedding: %d dimensions\n\n", model.Dim())

	var counts map[string]int
	if mustGetBool(cmd, "check-gallery") {
		a, err := openApp(ctx, appOptions{gallery: true})
		if err != nil {
			return err
		}
		defer a.Close()
		if counts, err = a.gallery.CountByStudent(ctx); err != nil {
			return fmt.Errorf("failed to read gallery: %w", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if counts != nil {
		fmt.Fprintln(w, "INDEX\tSTUDENT\tGALLERY")
	} else {
		fmt.Fprintln(w, "INDEX\tSTUDENT")
	}
	var missing []string
	for i, id := range labels {
		if counts == nil {
			fmt.Fprintf(w, "%d\t%s\n", i, id)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%d\n", i, id, counts[id])
		if counts[id] == 0 {
			missing = append(missing, id)
		}
	}
	w.Flush()

	if len(missing) > 0 {
		fmt.Printf("\nClasses without gallery vectors: %s\n", strings.Join(missing, ", "))
	}
	return nil
}
