package classifier

import (
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance/internal/config"
)

// Model is a loaded identity classifier.
type Model interface {
	Predict(embedding []float32) ([]float64, error)
	NumClasses() int
	Dim() int
}

// Load opens the configured classifier backend and its label file, and
// checks that both describe the same number of classes.
func Load(cfg config.ClassifierConfig) (Model, Labels, error) {
	var (
		model  Model
		labels Labels
	)

	switch strings.ToLower(cfg.Backend) {
	case "", "linear":
		lin, err := LoadLinear(cfg.ModelPath)
		if err != nil {
			return nil, nil, err
		}
		model, labels = lin, lin.Classes()
	case "tflite":
		tf, err := LoadTFLite(cfg.ModelPath, cfg.Threads)
		if err != nil {
			return nil, nil, err
		}
		model = tf
	default:
		return nil, nil, fmt.Errorf("unknown classifier backend %q", cfg.Backend)
	}

	if cfg.LabelsPath != "" {
		fromFile, err := LoadLabels(cfg.LabelsPath)
		if err != nil && len(labels) == 0 {
			return nil, nil, err
		}
		if err == nil {
			labels = fromFile
		}
	}
	if len(labels) == 0 {
		return nil, nil, fmt.Errorf("classifier %s has no labels", cfg.ModelPath)
	}
	if len(labels) != model.NumClasses() {
		return nil, nil, fmt.Errorf("label count %d does not match classifier output %d", len(labels), model.NumClasses())
	}
	return model, labels, nil
}
