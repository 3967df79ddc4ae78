// Command predict runs the counting pipeline over images on disk without the
// web frontend: one path or a whole directory, counts on stdout, heat maps
// optionally written alongside as PNGs.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/densitylab/crowdcount/config"
	"github.com/densitylab/crowdcount/inference"
	"github.com/densitylab/crowdcount/render"
	"github.com/densitylab/crowdcount/util"
)

func main() {
	var (
		input  = flag.String("in", "test_images", "image file or directory to process")
		outDir = flag.String("out", "", "directory to write heat map PNGs to (disabled when empty)")
	)
	flag.Parse()

	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
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

	paths, err := collectPaths(*input)
	if err != nil {
		log.WithError(err).Fatal("collecting input images")
	}
	if len(paths) == 0 {
		log.WithField("in", *input).Fatal("no decodable images found")
	}

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.WithError(err).Fatal("creating output directory")
		}
	}

	failed := 0
	for _, path := range paths {
		est, err := pred.Predict(context.Background(), path)
		if err != nil {
			log.WithError(err).WithField("image", path).Error("prediction failed")
			failed++
			continue
		}

		label := ""
		if est.Synthetic {
			label = " (synthetic)"
		}
		fmt.Printf("%s: %d%s\n", path, int(math.Round(float64(est.Count))), label)

		if *outDir != "" {
			if err := writeHeatmap(*outDir, path, est); err != nil {
				log.WithError(err).WithField("image", path).Error("writing heat map")
			}
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func collectPaths(input string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return util.ListImageFiles(input)
	}
	return []string{input}, nil
}

func writeHeatmap(dir, src string, est *inference.Estimate) error {
	img, err := render.HeatmapImage(est.Density)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	f, err := os.Create(filepath.Join(dir, base+"_heatmap.png"))
	if err != nil {
		return err
	}
	defer f.Close()

	return png.Encode(f, img)
}
