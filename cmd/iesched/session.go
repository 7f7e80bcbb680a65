package main

import (
	"errors"
	"fmt"
	"log/slog"

	iesched "github.com/example/go-iesched"
	"github.com/example/go-iesched/internal/config"
	"github.com/example/go-iesched/internal/model"
)

// modelPaths returns the topology/weights pair named by cfg. Explicit paths
// win over the ones derived from the model base path.
func modelPaths(cfg config.PathsConfig) (string, string, error) {
	topology, weights := cfg.TopologyPath, cfg.WeightsPath
	if topology != "" && weights != "" {
		return topology, weights, nil
	}

	derivedTopo, derivedWeights, err := model.ResolvePair(cfg.ModelPath)
	if err != nil {
		return "", "", err
	}
	if topology == "" {
		topology = derivedTopo
	}
	if weights == "" {
		weights = derivedWeights
	}

	return topology, weights, nil
}

// sessionOptions translates the loaded configuration into session options.
func sessionOptions(cfg config.Config) []iesched.Option {
	return []iesched.Option{
		iesched.WithDevice(cfg.Engine.Device),
		iesched.WithNumRequests(cfg.Engine.NumRequests),
		iesched.WithPreprocess(cfg.Input.ChannelOrder, cfg.Input.Resize),
		iesched.WithLogger(slog.Default()),
	}
}

// openSession loads the configured model on the ONNX Runtime engine.
func openSession(cfg config.Config) (*iesched.Session, error) {
	topology, weights, err := modelPaths(cfg.Paths)
	if err != nil {
		return nil, err
	}

	eng, err := iesched.NewORTEngine(cfg.Engine, iesched.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}

	return iesched.Load(eng, topology, weights, sessionOptions(cfg)...)
}

// withSession runs fn and closes s afterwards. A close failure is joined into
// the returned error.
func withSession(s *iesched.Session, fn func(*iesched.Session) error) (err error) {
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close session: %w", closeErr))
		}
	}()

	return fn(s)
}
