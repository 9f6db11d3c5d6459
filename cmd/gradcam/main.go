// Command gradcam renders Grad-CAM and guided Grad-CAM images for one input
// image and writes them, with a JSON report, to an output directory.
package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/born-ml/saliency/internal/config"
	"github.com/born-ml/saliency/internal/pipeline"
)

const version = "v0.1.0"

func main() {
	logger, err := logs.NewLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	parser := argparse.NewParser("gradcam", "Grad-CAM and guided backpropagation saliency for an image classifier")
	configFile := parser.String("c", "config", &argparse.Options{Help: "YAML configuration file"})
	imagePath := parser.String("i", "image", &argparse.Options{Help: "Input image (png, jpeg, gif, bmp, tiff, webp)"})
	outDir := parser.String("o", "out", &argparse.Options{Help: "Output directory"})
	layer := parser.String("l", "layer", &argparse.Options{Help: "Convolutional layer for Grad-CAM (default block14_sepconv2_act)"})
	weights := parser.String("w", "weights", &argparse.Options{Help: "SafeTensors weights file"})
	arch := parser.String("a", "architecture", &argparse.Options{Help: "YAML architecture file (default: built-in Xception)"})
	classes := parser.String("", "classes", &argparse.Options{Help: "Keras class_indices JSON file"})
	colorMode := parser.String("", "color-mode", &argparse.Options{Help: "grayscale, rgb or bgr"})
	format := parser.String("f", "format", &argparse.Options{Help: "Output format: png or jpeg"})
	lossMode := parser.String("", "loss", &argparse.Options{Help: "features (sum of layer -7) or class (one-hot prediction)"})
	class := parser.Int("", "class", &argparse.Options{Help: "Class for --loss class (default: predicted)", Default: -2})
	workers := parser.Int("j", "workers", &argparse.Options{Help: "CPU workers (0 = all cores)", Default: -1})
	noFlip := parser.Flag("", "no-flip", &argparse.Options{Help: "Do not flip the image vertically after loading"})
	panel := parser.Flag("p", "panel", &argparse.Options{Help: "Also write a side-by-side panel"})
	annotate := parser.Flag("", "annotate", &argparse.Options{Help: "Draw the predicted label on the Grad-CAM image"})
	dumpConfig := parser.Flag("", "dump-config", &argparse.Options{Help: "Print the effective configuration and exit"})
	exportArch := parser.String("", "export-architecture", &argparse.Options{Help: "Write the built-in Xception architecture to this file and exit"})
	showVersion := parser.Flag("v", "version", &argparse.Options{Help: "Show version"})
	if err := parser.Parse(os.Args); err != nil {
		logger.Errorf(parser.Usage(err))
		os.Exit(1)
	}
	if *showVersion {
		fmt.Printf("gradcam %s\n", version)
		return
	}

	cfg := config.Default()
	if *configFile != "" {
		if cfg, err = config.Load(*configFile); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
	}
	setString(&cfg.Image.Path, *imagePath)
	setString(&cfg.Output.Dir, *outDir)
	setString(&cfg.GradCAM.Layer, *layer)
	setString(&cfg.Model.Weights, *weights)
	setString(&cfg.Model.Architecture, *arch)
	setString(&cfg.Model.Classes, *classes)
	setString(&cfg.Image.ColorMode, *colorMode)
	setString(&cfg.Output.Format, *format)
	setString(&cfg.GradCAM.LossMode, *lossMode)
	if *class != -2 {
		cfg.GradCAM.Class = *class
	}
	if *workers >= 0 {
		cfg.Model.Workers = *workers
	}
	if *noFlip {
		cfg.Image.FlipVertical = false
	}
	cfg.Output.Panel = cfg.Output.Panel || *panel
	cfg.Output.Annotate = cfg.Output.Annotate || *annotate

	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	if *dumpConfig {
		data, err := cfg.Marshal()
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
		return
	}

	if *exportArch != "" {
		if err := writeArchitecture(cfg, *exportArch); err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		logger.Infof("Wrote architecture to %v", *exportArch)
		return
	}

	if cfg.Image.Path == "" {
		logger.Errorf(parser.Usage("an input image is required (-i)"))
		os.Exit(1)
	}

	report, err := pipeline.Run(cfg, logger)
	if err != nil {
		logger.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("Run %v finished", report.RunID)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func writeArchitecture(cfg *config.Config, path string) error {
	opts, err := cfg.ImageOptions()
	if err != nil {
		return err
	}
	model := cfg.Model
	model.Architecture = ""
	arch, err := pipeline.Architecture(model, opts.ColorMode.Channels())
	if err != nil {
		return err
	}
	data, err := arch.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
