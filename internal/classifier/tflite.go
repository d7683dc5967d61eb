package classifier

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tphakala/go-tflite"
)

// TFLite runs a TensorFlow Lite classifier whose input is a single embedding
// and whose output is one probability per class.
type TFLite struct {
	interpreter *tflite.Interpreter
	model       *tflite.Model
	inputDim    int
	numClasses  int
	mu          sync.Mutex // the interpreter is not safe for concurrent use
}

// LoadTFLite loads a model file and allocates its tensors.
func LoadTFLite(path string, threads int) (*TFLite, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.New("cannot load TensorFlow Lite model")
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(max(1, threads))

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.New("cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	input := interpreter.GetInputTensor(0)
	output := interpreter.GetOutputTensor(0)
	if input == nil || output == nil {
		interpreter.Delete()
		return nil, errors.New("model has no input or output tensor")
	}

	return &TFLite{
		interpreter: interpreter,
		model:       model,
		inputDim:    input.Dim(input.NumDims() - 1),
		numClasses:  output.Dim(output.NumDims() - 1),
	}, nil
}

// NumClasses returns the width of the output tensor.
func (t *TFLite) NumClasses() int {
	return t.numClasses
}

// Dim returns the expected embedding dimension.
func (t *TFLite) Dim() int {
	return t.inputDim
}

// Predict runs inference on a single embedding.
func (t *TFLite) Predict(embedding []float32) ([]float64, error) {
	if len(embedding) != t.inputDim {
		return nil, fmt.Errorf("embedding has %d values, model expects %d", len(embedding), t.inputDim)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	input := t.interpreter.GetInputTensor(0)
	copy(input.Float32s(), embedding)

	if status := t.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := t.interpreter.GetOutputTensor(0).Float32s()
	probs := make([]float64, t.numClasses)
	for i := range probs {
		probs[i] = float64(output[i])
	}
	return probs, nil
}

// Close releases the interpreter.
func (t *TFLite) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interpreter.Delete()
}
