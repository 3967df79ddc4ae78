package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/densitylab/crowdcount/config"
	"github.com/densitylab/crowdcount/inference"
	"github.com/densitylab/crowdcount/server"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, keeping info")
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.WithError(err).Fatal("creating upload directory")
	}

	pred := inference.NewPredictor(inference.Config{
		ONNX: inference.ONNXConfig{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.OnnxLibPath,
			InputName:   cfg.ModelInputName,
			OutputName:  cfg.ModelOutputName,
		},
		MaxImageDim: cfg.MaxImageDim,
		Timeout:     cfg.InferTimeout,
	}, log)

	srv := server.New(cfg, pred, log)
	log.WithFields(logrus.Fields{
		"addr":   cfg.ListenAddr,
		"engine": string(pred.Engine()),
	}).Info("crowd counting service listening")

	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
