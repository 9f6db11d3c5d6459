// Package pipeline runs one saliency analysis end to end: load the image,
// classify it, compute the Grad-CAM heatmap and the guided backpropagation
// saliency, and write the composited images and a JSON report.
package pipeline

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/google/uuid"

	"github.com/born-ml/saliency/internal/autodiff"
	"github.com/born-ml/saliency/internal/backend/cpu"
	"github.com/born-ml/saliency/internal/compositor"
	"github.com/born-ml/saliency/internal/config"
	"github.com/born-ml/saliency/internal/gradcam"
	"github.com/born-ml/saliency/internal/guided"
	"github.com/born-ml/saliency/internal/imageio"
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/predict"
	"github.com/born-ml/saliency/internal/tensor"
)

// Output file names, before the format extension.
const (
	GradCAMName       = "gradcam"
	GuidedGradCAMName = "guided_gradcam"
	PanelName         = "panel"
	ReportName        = "report.json"
)

// Report describes a finished run. It is written next to the images.
type Report struct {
	RunID       uuid.UUID            `json:"run_id"`
	Started     time.Time            `json:"started"`
	Image       string               `json:"image"`
	Model       string               `json:"model"`
	Weights     *WeightsInfo         `json:"weights"`
	Layer       string               `json:"layer"`
	GuidedLayer string               `json:"guided_layer"`
	LossMode    string               `json:"loss_mode"`
	LossClass   *int                 `json:"loss_class,omitempty"` // set in class loss mode only
	Predictions []predict.Prediction `json:"predictions"`
	CAMShape    []int                `json:"cam_shape"`
	Outputs     map[string]string    `json:"outputs"`
	Timings     map[string]string    `json:"timings"`
}

// Run executes the analysis described by cfg. cfg.Image.Path must be set.
func Run(cfg *config.Config, log logs.Log) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Image.Path == "" {
		return nil, fmt.Errorf("no input image")
	}

	report := &Report{
		RunID:       uuid.New(),
		Started:     time.Now().UTC(),
		Image:       cfg.Image.Path,
		Layer:       cfg.GradCAM.Layer,
		GuidedLayer: cfg.GuidedLayer(),
		LossMode:    cfg.GradCAM.LossMode,
		Outputs:     make(map[string]string),
		Timings:     make(map[string]string),
	}
	lap := stopwatch(report)

	opts, err := cfg.ImageOptions()
	if err != nil {
		return nil, err
	}
	model, weights, err := BuildModel(cfg.Model, opts.ColorMode.Channels(), log)
	if err != nil {
		return nil, err
	}
	report.Model = model.Name()
	report.Weights = weights
	log.Infof("Model %v: %v layers, %v parameters", model.Name(), model.NumLayers(), model.NumParams())
	log.Debugf("%v", model.Summary())
	lap("model")

	if in := model.InputShape(); len(in) == 3 {
		opts.Height, opts.Width = in[0], in[1]
	}
	input, err := imageio.Load(cfg.Image.Path, opts)
	if err != nil {
		return nil, err
	}
	lap("load")

	backend := cpu.NewWithConfig(ParallelConfig(cfg.Model.Workers))

	preds, err := classify(cfg, model, backend, input)
	if err != nil {
		return nil, err
	}
	report.Predictions = preds
	for _, p := range preds {
		log.Infof("Prediction: %v (class %v) %.4f", p.Label, p.Class, p.Confidence)
	}
	lap("predict")

	gcfg, err := cfg.GradCAMEngineConfig()
	if err != nil {
		return nil, err
	}
	gcfg = alignLossClass(gcfg, preds)
	cam, err := gradcam.New(backend, gcfg)
	if err != nil {
		return nil, err
	}
	heat, err := cam.ComputeHeatmap(model, input, cfg.GradCAM.Layer)
	if err != nil {
		return nil, fmt.Errorf("grad-cam: %w", err)
	}
	report.CAMShape = heat.RawCAM.Shape().Clone()
	if gcfg.LossMode == gradcam.LossClass {
		class := heat.Class
		report.LossClass = &class
	}
	lap("gradcam")

	gb, err := guided.New(backend, autodiff.NewRegistry())
	if err != nil {
		return nil, err
	}
	saliency, err := gb.ComputeSaliency(model, input, cfg.GuidedLayer())
	if err != nil {
		return nil, fmt.Errorf("guided backprop: %w", err)
	}
	lap("guided")

	if err := writeImages(cfg, report, opts.ColorMode, input, heat.Heatmap, saliency); err != nil {
		return nil, err
	}
	lap("compose")

	if err := writeReport(cfg.Output.Dir, report); err != nil {
		return nil, err
	}
	for kind, path := range report.Outputs {
		log.Infof("Wrote %v to %v", kind, path)
	}
	return report, nil
}

// alignLossClass makes an unset class loss target the reported top-1
// prediction, which comes from the ONNX predictor when one is configured.
func alignLossClass(gcfg gradcam.Config, preds []predict.Prediction) gradcam.Config {
	if gcfg.LossMode == gradcam.LossClass && gcfg.Class < 0 && len(preds) > 0 {
		gcfg.Class = preds[0].Class
	}
	return gcfg
}

func classify(cfg *config.Config, model *nn.Model, backend tensor.Backend, input *tensor.RawTensor) ([]predict.Prediction, error) {
	var labels *predict.Labels
	if cfg.Model.Classes != "" {
		var err error
		if labels, err = predict.LoadLabels(cfg.Model.Classes); err != nil {
			return nil, err
		}
	}

	var p predict.Predictor = predict.NewModelPredictor(model, backend)
	if o := cfg.Model.ONNX; o != nil {
		shape := input.Shape()
		onnx, err := predict.NewONNXPredictor(predict.ONNXConfig{
			ModelPath:   o.Model,
			LibraryPath: o.Library,
			InputName:   o.Input,
			OutputName:  o.Output,
			InputShape:  []int64{int64(shape[0]), int64(shape[1]), int64(shape[2]), int64(shape[3])},
			NumClasses:  int64(cfg.Model.NumClasses),
		})
		if err != nil {
			return nil, err
		}
		p = onnx
	}
	defer func() {
		_ = p.Close()
	}()
	return predict.Predict(p, input, labels, cfg.Output.TopK)
}

func writeImages(cfg *config.Config, report *Report, mode imageio.ColorMode, input, heatmap, saliency *tensor.RawTensor) error {
	format, err := imageio.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	display := imageio.ToRGB(input, mode)
	camImg, err := compositor.Colorize(heatmap, display)
	if err != nil {
		return err
	}
	guidedImg, err := compositor.Overlay(heatmap, imageio.ToRGB(saliency, mode))
	if err != nil {
		return err
	}

	var out image.Image = camImg
	if cfg.Output.Annotate && len(report.Predictions) > 0 {
		top := report.Predictions[0]
		out = compositor.Annotate(camImg, fmt.Sprintf("%s %.2f", top.Label, top.Confidence))
	}

	save := func(kind, name string, img image.Image) error {
		path := filepath.Join(cfg.Output.Dir, name+format.Ext())
		if err := imageio.Save(path, img, format); err != nil {
			return err
		}
		report.Outputs[kind] = path
		return nil
	}
	if err := save("gradcam", GradCAMName, out); err != nil {
		return err
	}
	if err := save("guided_gradcam", GuidedGradCAMName, guidedImg); err != nil {
		return err
	}
	if cfg.Output.Panel {
		source, err := compositor.Image(display)
		if err != nil {
			return err
		}
		if err := save("panel", PanelName, compositor.Panel(source, camImg, guidedImg)); err != nil {
			return err
		}
	}
	return nil
}

func writeReport(dir string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	path := filepath.Join(dir, ReportName)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	report.Outputs["report"] = path
	return nil
}

func stopwatch(report *Report) func(stage string) {
	last := time.Now()
	return func(stage string) {
		now := time.Now()
		report.Timings[stage] = now.Sub(last).Round(time.Millisecond).String()
		last = now
	}
}
