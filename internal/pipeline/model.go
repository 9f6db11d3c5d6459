package pipeline

import (
	"fmt"

	"github.com/cyclopcam/logs"

	"github.com/born-ml/saliency/internal/config"
	"github.com/born-ml/saliency/internal/nn"
	"github.com/born-ml/saliency/internal/parallel"
	"github.com/born-ml/saliency/internal/serialization"
)

// WeightsInfo identifies the weights a run used.
type WeightsInfo struct {
	Path   string `json:"path,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
	Seed   uint64 `json:"seed,omitempty"` // set when initialized randomly
	Params int    `json:"params"`
}

// BuildModel constructs the classifier described by cfg.Model and loads or
// initializes its weights. channels is the input channel count of the
// built-in Xception.
func BuildModel(cfg config.ModelConfig, channels int, log logs.Log) (*nn.Model, *WeightsInfo, error) {
	arch, err := Architecture(cfg, channels)
	if err != nil {
		return nil, nil, fmt.Errorf("architecture: %w", err)
	}
	model, err := nn.Build(arch)
	if err != nil {
		return nil, nil, fmt.Errorf("build model: %w", err)
	}

	info := &WeightsInfo{Params: model.NumParams()}
	if cfg.Weights == "" {
		log.Warnf("No weights file given; initializing %v parameters from seed %v", info.Params, cfg.Seed)
		model.InitWeights(cfg.Seed)
		info.Seed = cfg.Seed
		return model, info, nil
	}

	state, meta, err := serialization.ReadSafeTensors(cfg.Weights)
	if err != nil {
		return nil, nil, fmt.Errorf("read weights: %w", err)
	}
	if err := model.LoadStateDict(state); err != nil {
		return nil, nil, err
	}
	sum, err := serialization.FileChecksum(cfg.Weights)
	if err != nil {
		return nil, nil, err
	}
	info.Path = cfg.Weights
	info.SHA256 = sum
	log.Infof("Loaded %v tensors from %v (%v metadata keys)", len(state), cfg.Weights, len(meta))
	return model, info, nil
}

// Architecture loads cfg.Architecture, or describes the built-in Xception
// when it is empty.
func Architecture(cfg config.ModelConfig, channels int) (*nn.Architecture, error) {
	if cfg.Architecture != "" {
		return nn.LoadArchitecture(cfg.Architecture)
	}
	return nn.XceptionArchitecture(xceptionConfig(cfg, channels))
}

func xceptionConfig(cfg config.ModelConfig, channels int) nn.XceptionConfig {
	x := nn.DefaultXceptionConfig()
	x.InputSize = cfg.InputSize
	x.Channels = channels
	x.NumClasses = cfg.NumClasses
	x.MiddleBlocks = cfg.MiddleBlocks
	x.WidthDivisor = cfg.WidthDivisor
	x.HeadUnits = [2]int{max(x.HeadUnits[0]/cfg.WidthDivisor, 1), max(x.HeadUnits[1]/cfg.WidthDivisor, 1)}
	return x
}

// ParallelConfig maps the workers setting to kernel parallelism.
func ParallelConfig(workers int) parallel.Config {
	switch workers {
	case 0:
		return parallel.DefaultConfig()
	case 1:
		return parallel.Sequential()
	default:
		cfg := parallel.DefaultConfig()
		cfg.Enabled = true
		cfg.NumWorkers = workers
		return cfg
	}
}
