package pipeline_test

import (
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/saliency/internal/config"
	"github.com/born-ml/saliency/internal/gradcam"
	"github.com/born-ml/saliency/internal/imageio"
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/pipeline"
	"github.com/born-ml/saliency/internal/serialization"
)

func writeImage(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 6), B: uint8((x + y) * 3), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, imageio.Save(path, img, imageio.PNG))
	return path
}

func tinyConfig(t *testing.T, imagePath string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Model.InputSize = 32
	cfg.Model.NumClasses = 5
	cfg.Model.MiddleBlocks = 1
	cfg.Model.WidthDivisor = 32
	cfg.Model.Seed = 42
	cfg.Image.Path = imagePath
	cfg.Output.Dir = t.TempDir()
	cfg.Output.TopK = 3
	return cfg
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestRun_WritesOutputs(t *testing.T) {
	cfg := tinyConfig(t, writeImage(t))
	cfg.Output.Panel = true
	cfg.Output.Annotate = true

	report, err := pipeline.Run(cfg, logs.NewTestingLog(t))
	require.NoError(t, err)

	assert.Len(t, report.Predictions, 3)
	assert.Equal(t, []int{1, 1}, report.CAMShape)
	assert.Equal(t, uint64(42), report.Weights.Seed)
	assert.NotEqual(t, [16]byte{}, [16]byte(report.RunID))

	for _, kind := range []string{"gradcam", "guided_gradcam", "panel", "report"} {
		path, ok := report.Outputs[kind]
		require.True(t, ok, kind)
		assert.FileExists(t, path)
	}

	f, err := os.Open(report.Outputs["gradcam"])
	require.NoError(t, err)
	defer f.Close()
	img, _, err := imageio.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32+20), img.Bounds(), "annotated with a banner")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(readFile(t, report.Outputs["report"]), &decoded))
	assert.Equal(t, report.RunID.String(), decoded["run_id"])
	assert.Equal(t, "block14_sepconv2_act", decoded["layer"])
}

func TestRun_Reproducible(t *testing.T) {
	input := writeImage(t)
	a := tinyConfig(t, input)
	b := tinyConfig(t, input)
	b.Model.Workers = 1

	ra, err := pipeline.Run(a, logs.NewTestingLog(t))
	require.NoError(t, err)
	rb, err := pipeline.Run(b, logs.NewTestingLog(t))
	require.NoError(t, err)

	assert.NotEqual(t, ra.RunID, rb.RunID)
	assert.Equal(t, ra.Predictions, rb.Predictions)
	for _, kind := range []string{"gradcam", "guided_gradcam"} {
		assert.Equal(t, readFile(t, ra.Outputs[kind]), readFile(t, rb.Outputs[kind]), kind)
	}
}

func TestRun_LoadsWeights(t *testing.T) {
	input := writeImage(t)
	cfg := tinyConfig(t, input)

	model, _, err := pipeline.BuildModel(cfg.Model, 3, logs.NewTestingLog(t))
	require.NoError(t, err)
	weights := filepath.Join(t.TempDir(), "tiny.safetensors")
	require.NoError(t, serialization.WriteSafeTensors(weights, model.StateDict(), map[string]string{"seed": "42"}))

	random, err := pipeline.Run(cfg, logs.NewTestingLog(t))
	require.NoError(t, err)

	loaded := tinyConfig(t, input)
	loaded.Model.Weights = weights
	loaded.Model.Seed = 7 // ignored when weights are given
	report, err := pipeline.Run(loaded, logs.NewTestingLog(t))
	require.NoError(t, err)

	sum, err := serialization.FileChecksum(weights)
	require.NoError(t, err)
	assert.Equal(t, sum, report.Weights.SHA256)
	assert.Equal(t, weights, report.Weights.Path)
	assert.Equal(t, random.Predictions, report.Predictions)
	assert.Equal(t, readFile(t, random.Outputs["gradcam"]), readFile(t, report.Outputs["gradcam"]))
}

func TestRun_ExternalArchitecture(t *testing.T) {
	arch, err := nn.XceptionArchitecture(nn.XceptionConfig{
		InputSize: 32, Channels: 1, NumClasses: 4, WidthDivisor: 32,
		MiddleBlocks: 1, HeadUnits: [2]int{16, 8}, DropoutRate: 0.5,
	})
	require.NoError(t, err)
	data, err := arch.Marshal()
	require.NoError(t, err)
	archPath := filepath.Join(t.TempDir(), "arch.yaml")
	require.NoError(t, os.WriteFile(archPath, data, 0o600))

	cfg := tinyConfig(t, writeImage(t))
	cfg.Model.Architecture = archPath
	cfg.Model.NumClasses = 4
	cfg.Image.ColorMode = string(imageio.Grayscale)
	cfg.Output.Format = string(imageio.JPEG)

	report, err := pipeline.Run(cfg, logs.NewTestingLog(t))
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(report.Outputs["gradcam"]))
	assert.Len(t, report.Predictions, 3)
}

func TestRun_Errors(t *testing.T) {
	cfg := tinyConfig(t, "")
	_, err := pipeline.Run(cfg, logs.NewTestingLog(t))
	require.Error(t, err)

	cfg = tinyConfig(t, writeImage(t))
	cfg.GradCAM.Layer = "no_such_layer"
	_, err = pipeline.Run(cfg, logs.NewTestingLog(t))
	var notFound *gradcam.LayerNotFoundError
	require.ErrorAs(t, err, &notFound)

	cfg = tinyConfig(t, writeImage(t))
	cfg.Model.Classes = filepath.Join(t.TempDir(), "missing.json")
	_, err = pipeline.Run(cfg, logs.NewTestingLog(t))
	require.Error(t, err)
}

func TestParallelConfig(t *testing.T) {
	assert.False(t, pipeline.ParallelConfig(1).Enabled)
	cfg := pipeline.ParallelConfig(3)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.NumWorkers)
}
