package classifier

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// LinearModel is the on-disk form of a multinomial logistic regression
// classifier: one weight row and one bias per class.
type LinearModel struct {
	Classes []string    `yaml:"classes,omitempty"`
	Weights [][]float64 `yaml:"weights"`
	Bias    []float64   `yaml:"bias"`
}

// Linear is a softmax classifier over embeddings.
type Linear struct {
	weights *mat.Dense
	bias    *mat.VecDense
	classes []string
}

// LoadLinear reads a YAML linear model.
func LoadLinear(path string) (*Linear, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var m LinearModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model file: %w", err)
	}
	return NewLinear(m)
}

// NewLinear validates a model and prepares it for prediction.
func NewLinear(m LinearModel) (*Linear, error) {
	n := len(m.Weights)
	if n == 0 {
		return nil, errors.New("linear model has no classes")
	}
	dim := len(m.Weights[0])
	if dim == 0 {
		return nil, errors.New("linear model has empty weights")
	}
	if len(m.Bias) != n {
		return nil, fmt.Errorf("linear model has %d classes but %d biases", n, len(m.Bias))
	}
	if len(m.Classes) > 0 && len(m.Classes) != n {
		return nil, fmt.Errorf("linear model has %d classes but %d class names", n, len(m.Classes))
	}

	flat := make([]float64, 0, n*dim)
	for i, row := range m.Weights {
		if len(row) != dim {
			return nil, fmt.Errorf("weight row %d has %d values, expected %d", i, len(row), dim)
		}
		flat = append(flat, row...)
	}

	return &Linear{
		weights: mat.NewDense(n, dim, flat),
		bias:    mat.NewVecDense(n, append([]float64(nil), m.Bias...)),
		classes: m.Classes,
	}, nil
}

// NumClasses returns the number of output classes.
func (l *Linear) NumClasses() int {
	r, _ := l.weights.Dims()
	return r
}

// Dim returns the expected embedding dimension.
func (l *Linear) Dim() int {
	_, c := l.weights.Dims()
	return c
}

// Classes returns the class names embedded in the model, if any.
func (l *Linear) Classes() Labels {
	return Labels(l.classes)
}

// Predict returns softmax probabilities for embedding.
func (l *Linear) Predict(embedding []float32) ([]float64, error) {
	if len(embedding) != l.Dim() {
		return nil, fmt.Errorf("embedding has %d values, model expects %d", len(embedding), l.Dim())
	}

	x := make([]float64, len(embedding))
	for i, v := range embedding {
		x[i] = float64(v)
	}

	var logits mat.VecDense
	logits.MulVec(l.weights, mat.NewVecDense(len(x), x))
	logits.AddVec(&logits, l.bias)

	return Softmax(logits.RawVector().Data), nil
}

// Softmax converts logits to probabilities.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := logits[0]
	for _, v := range logits[1:] {
		peak = max(peak, v)
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
