package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"rootstrap/internal/core"
)

// Bootstrap runs the full pipeline against the requested rootfs.
func (s Service) Bootstrap(ctx context.Context, req BootstrapRequest) (BootstrapResult, error) {
	cfg, err := s.resolveConfig(req)
	if err != nil {
		return BootstrapResult{}, err
	}
	backend, err := s.NewBackend(cfg)
	if err != nil {
		return BootstrapResult{}, err
	}
	log.Info().
		Str("rootfs", cfg.Rootfs).
		Str("architecture", cfg.Architecture).
		Str("suite", cfg.Suite).
		Str("backend", string(backend.Kind())).
		Msg("starting bootstrap")

	pipeline := core.Pipeline{
		Backend:     backend,
		Apt:         s.Apt,
		Rootfs:      s.Rootfs,
		Extractor:   s.Extractor,
		Index:       s.Index,
		SizeReports: s.SizeReports,
		Hook:        s.Hook,
	}
	run, err := pipeline.Run(ctx, cfg)
	result := BootstrapResult{
		Rootfs:       cfg.Rootfs,
		PackageCount: len(run.Records),
		Phases:       run.Phases,
	}
	if err != nil {
		return result, err
	}
	return result, nil
}
