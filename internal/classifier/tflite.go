package classifier

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/errors"
)

// Model wraps a TensorFlow Lite interpreter for one cascade stage.
// Predict calls are serialized with a mutex; the interpreter itself
// is not reentrant.
type Model struct {
	interpreter *tflite.Interpreter
	mu          sync.Mutex
}

// LoadModel reads a .tflite file and builds an allocated interpreter for it.
func LoadModel(path string, settings *conf.ScannerSettings) (*Model, error) {
	start := time.Now()

	modelData, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("classifier").
			Category(errors.CategoryModelLoad).
			ModelContext(path).
			Timing("model-load", time.Since(start)).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return nil, errors.New(fmt.Errorf("cannot load TensorFlow Lite model")).
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Context("model_size_kb", len(modelData)/1024).
			Build()
	}

	threads := determineThreadCount(settings.Threads)

	options := tflite.NewInterpreterOptions()
	if settings.UseXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // G115: thread count bounded by CPU count, safe conversion
		if delegate == nil {
			options.SetNumThread(threads)
		} else {
			options.AddDelegate(delegate)
			options.SetNumThread(1)
		}
	} else {
		options.SetNumThread(threads)
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		return nil, errors.Newf("cannot create interpreter").
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		return nil, errors.Newf("tensor allocation failed").
			Component("classifier").
			Category(errors.CategoryModelInit).
			ModelContext(path).
			Build()
	}

	// The model bytes are no longer needed, TFLite keeps its own copy.
	runtime.GC()

	return &Model{interpreter: interpreter}, nil
}

// invoke copies the tensor into the input, runs inference and returns
// a copy of the output vector.
func (m *Model) invoke(tensor []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	input := m.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, errors.Newf("cannot get input tensor").
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}
	dst := input.Float32s()
	if len(dst) != len(tensor) {
		return nil, errors.Newf("input tensor size mismatch: model wants %d, got %d", len(dst), len(tensor)).
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}
	copy(dst, tensor)

	if status := m.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed").
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}

	output := m.interpreter.GetOutputTensor(0)
	if output == nil {
		return nil, errors.Newf("cannot get output tensor").
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}
	scores := make([]float32, len(output.Float32s()))
	copy(scores, output.Float32s())
	return scores, nil
}

// Close releases the interpreter. The model must not be used afterwards.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interpreter != nil {
		m.interpreter.Delete()
		m.interpreter = nil
	}
}

// LeafModel adapts a Model to the leaf-presence stage contract.
type LeafModel struct {
	*Model
}

// Predict runs stage-1 inference and arg-maxes the 3-way output.
func (m *LeafModel) Predict(tensor []float32) (LeafPrediction, error) {
	scores, err := m.invoke(tensor)
	if err != nil {
		return LeafPrediction{}, err
	}
	if len(scores) < 3 {
		return LeafPrediction{}, errors.Newf("leaf model output has %d classes, want 3", len(scores)).
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}
	return Argmax(scores[:3]), nil
}

// PestModel adapts a Model to the pest-presence stage contract.
type PestModel struct {
	*Model
}

// Predict runs stage-2 inference and returns the single pest probability.
func (m *PestModel) Predict(tensor []float32) (float32, error) {
	scores, err := m.invoke(tensor)
	if err != nil {
		return 0, err
	}
	if len(scores) == 0 {
		return 0, errors.Newf("pest model produced empty output").
			Component("classifier").
			Category(errors.CategoryModelInference).
			Build()
	}
	return scores[0], nil
}

// determineThreadCount resolves the configured thread count, using all
// available CPUs when set to zero.
func determineThreadCount(configured int) int {
	if configured > 0 {
		return configured
	}
	return runtime.NumCPU()
}
