// Package config - environment-driven configuration for the counting service.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures every tunable of the service. Values are read from the
// environment with the CROWDCOUNT_ prefix; every field has a usable default
// so the demo runs with no configuration at all.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":5000"`
	// UploadDir is the scratch directory uploaded files pass through.
	UploadDir string `envconfig:"UPLOAD_DIR" default:"uploads"`
	// ModelPath is the serialized ONNX graph of the pretrained counting model.
	ModelPath string `envconfig:"MODEL_PATH" default:"models/csrnet.onnx"`
	// OnnxLibPath is the ONNX Runtime shared library. Like the model graph,
	// its absence switches the service to synthetic estimates.
	OnnxLibPath string `envconfig:"ONNX_LIB_PATH" default:"lib/libonnxruntime.so"`
	// ModelInputName and ModelOutputName are the graph's tensor bindings.
	ModelInputName  string `envconfig:"MODEL_INPUT_NAME" default:"input"`
	ModelOutputName string `envconfig:"MODEL_OUTPUT_NAME" default:"output"`
	// MaxUploadBytes caps the request body size.
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"16777216"`
	// MaxImageDim caps the longest side of a decoded image; larger uploads
	// are downscaled before inference.
	MaxImageDim int `envconfig:"MAX_IMAGE_DIM" default:"2048"`
	// InferTimeout bounds a single forward pass.
	InferTimeout time.Duration `envconfig:"INFER_TIMEOUT" default:"30s"`
	// SessionSecret signs the flash-message cookie.
	SessionSecret string `envconfig:"SESSION_SECRET" default:"dev-secret-key-change-in-production"`
	// LogLevel is a logrus level name.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Debug enables verbose request logging.
	Debug bool `envconfig:"DEBUG" default:"false"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("crowdcount", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
