package inference

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorgonia.org/tensor"

	"github.com/densitylab/crowdcount/images"
)

// Config tunes the predictor.
type Config struct {
	// ONNX locates the model artifacts.
	ONNX ONNXConfig
	// MaxImageDim caps the longest side of a decoded upload; see images.Load.
	MaxImageDim int
	// Timeout bounds a single inference call. Zero disables the bound.
	Timeout time.Duration
}

// Predictor owns the process-wide model handle. The first Predict call
// attempts to construct the real engine exactly once; a failed load is
// permanent for the process lifetime and every later call uses the synthetic
// engine without reopening the missing artifacts.
type Predictor struct {
	cfg Config
	log *logrus.Logger

	loadOnce sync.Once
	engine   Engine
	fallback *SyntheticEngine

	// newEngine is the real-engine constructor; tests substitute it.
	newEngine func(ONNXConfig) (Engine, error)
}

// NewPredictor builds a predictor around the given configuration. A nil
// logger falls back to the logrus standard logger.
func NewPredictor(cfg Config, log *logrus.Logger) *Predictor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Predictor{
		cfg:       cfg,
		log:       log,
		fallback:  NewSyntheticEngine(nil),
		newEngine: NewONNXEngine,
	}
}

// Engine reports which engine the predictor is currently serving from,
// forcing the one-shot load if it has not happened yet.
func (p *Predictor) Engine() EngineType {
	return p.ensureEngine().Type()
}

// ensureEngine performs the UNLOADED -> {LOADED | UNAVAILABLE} transition at
// most once per process.
func (p *Predictor) ensureEngine() Engine {
	p.loadOnce.Do(func() {
		eng, err := p.newEngine(p.cfg.ONNX)
		if err != nil {
			p.log.WithError(err).Warn("model unavailable, serving synthetic estimates")
			return
		}
		p.log.WithField("model", p.cfg.ONNX.ModelPath).Info("counting model loaded")
		p.engine = eng
	})
	if p.engine != nil {
		return p.engine
	}
	return p.fallback
}

// Predict loads the image at path and produces a density estimate. Decode
// failures surface as *images.DecodeError before any engine is touched;
// inference failures from a loaded model abort the call with the cause
// attached. No partial results are returned.
func (p *Predictor) Predict(ctx context.Context, path string) (*Estimate, error) {
	img, err := images.Load(path, p.cfg.MaxImageDim)
	if err != nil {
		return nil, err
	}

	eng := p.ensureEngine()

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	density, count, err := run(ctx, eng, img)
	if err != nil {
		return nil, err
	}

	return &Estimate{
		Count:     count,
		Density:   density,
		Input:     img,
		Synthetic: eng.Type() == EngineSynthetic,
	}, nil
}

// run executes the engine on its own goroutine so a hung forward pass cannot
// hold the request past the deadline. The goroutine is left to finish in the
// background when the deadline wins; the native session survives it.
func run(ctx context.Context, eng Engine, img *images.Tensor) (*tensor.Dense, float32, error) {
	type outcome struct {
		density *tensor.Dense
		count   float32
		err     error
	}

	ch := make(chan outcome, 1)
	go func() {
		dm, c, err := eng.Infer(ctx, img)
		ch <- outcome{density: dm, count: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, 0, errors.Wrap(ctx.Err(), "inference aborted")
	case o := <-ch:
		if o.err != nil {
			return nil, 0, errors.Wrapf(o.err, "%s inference failed", eng.Type())
		}
		return o.density, o.count, nil
	}
}
