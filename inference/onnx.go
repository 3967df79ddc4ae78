package inference

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/densitylab/crowdcount/images"
)

// ONNXConfig holds the artifact locations for the model-backed engine.
type ONNXConfig struct {
	// ModelPath is the serialized ONNX graph, which carries both the
	// architecture and the trained weights.
	ModelPath string
	// LibraryPath is the ONNX Runtime shared library.
	LibraryPath string
	// InputName and OutputName are the graph's tensor bindings.
	InputName  string
	OutputName string
}

// The native environment is process-wide and initialized at most once.
var (
	ortInit    sync.Once
	ortInitErr error
)

// onnxEngine wraps a dynamic onnxruntime session. Counting models are fully
// convolutional and accept any spatial resolution, so input tensors are
// created per call rather than preallocated at a fixed shape.
type onnxEngine struct {
	session *ort.DynamicAdvancedSession
	cfg     ONNXConfig
	mu      sync.Mutex
}

// NewONNXEngine loads the model graph at cfg.ModelPath. A missing graph or
// runtime library is an error the caller treats as permanent degradation for
// the process, not a crash.
func NewONNXEngine(cfg ONNXConfig) (Engine, error) {
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrap(err, "model graph not found")
	}
	if _, err := os.Stat(cfg.LibraryPath); err != nil {
		return nil, errors.Wrap(err, "onnxruntime library not found")
	}

	ortInit.Do(func() {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, errors.Wrap(ortInitErr, "initializing onnxruntime environment")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		opts,
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating onnxruntime session")
	}

	return &onnxEngine{session: session, cfg: cfg}, nil
}

func (e *onnxEngine) Type() EngineType { return EngineONNX }

// Infer runs the forward pass and returns the density map together with its
// exact sum as the count.
func (e *onnxEngine) Infer(ctx context.Context, img *images.Tensor) (*tensor.Dense, float32, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	default:
	}

	input, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(img.Height), int64(img.Width)),
		packCHW(img),
	)
	if err != nil {
		return nil, 0, errors.Wrap(err, "creating input tensor")
	}
	defer input.Destroy()

	// A nil output slot lets the runtime allocate the result at whatever
	// resolution the graph emits.
	outputs := []ort.Value{nil}
	e.mu.Lock()
	err = e.session.Run([]ort.Value{input}, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, 0, errors.Wrap(err, "model forward pass")
	}

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, 0, errors.Errorf("model emitted %T, expected a float32 tensor", outputs[0])
	}
	defer out.Destroy()

	dm, err := densityFromOutput(out)
	if err != nil {
		return nil, 0, err
	}

	total, err := dm.Sum()
	if err != nil {
		return nil, 0, errors.Wrap(err, "reducing density map")
	}
	return dm, total.ScalarValue().(float32), nil
}

// densityFromOutput copies the runtime-owned buffer into a (1, H', W') dense
// tensor. Output ranks of (1, H', W') and (1, 1, H', W') are both accepted;
// exporters differ on whether the channel axis survives.
func densityFromOutput(out *ort.Tensor[float32]) (*tensor.Dense, error) {
	shape := out.GetShape()
	if len(shape) < 2 {
		return nil, errors.Errorf("model emitted rank-%d output, expected a spatial map", len(shape))
	}
	h := int(shape[len(shape)-2])
	w := int(shape[len(shape)-1])
	src := out.GetData()
	if h*w != len(src) {
		return nil, errors.Errorf("model output length %d does not match %dx%d map", len(src), h, w)
	}

	data := make([]float32, len(src))
	copy(data, src)
	return tensor.New(
		tensor.WithShape(1, h, w),
		tensor.Of(tensor.Float32),
		tensor.WithBacking(data),
	), nil
}

// packCHW flattens the (1, H, W, 3) image tensor into the three contiguous
// channel planes ONNX models expect.
func packCHW(img *images.Tensor) []float32 {
	hwc := img.Data.Data().([]float32)
	plane := img.Height * img.Width

	chw := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		chw[i] = hwc[i*3]
		chw[plane+i] = hwc[i*3+1]
		chw[2*plane+i] = hwc[i*3+2]
	}
	return chw
}
