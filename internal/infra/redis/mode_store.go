package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.ModeStore = (*ModeStore)(nil)

const (
	modeKey        = "pipeline:mode"
	modeVersionKey = "pipeline:mode:version"
)

// ModeStore keeps the process-wide automation mode in Redis so every
// replica observes the same setting. Set bumps a monotonic version; Get
// always reads through, never from a local cache.
type ModeStore struct {
	cli *redis.Client
	def model.SubmissionMode
}

func NewModeStore(c *Client, def model.SubmissionMode) *ModeStore {
	if !def.Valid() {
		def = model.ModeManual
	}
	return &ModeStore{cli: c.cli, def: def}
}

func (s *ModeStore) Get(ctx context.Context) (model.ModeConfig, error) {
	raw, err := s.cli.Get(ctx, modeKey).Result()
	if errors.Is(err, redis.Nil) {
		return model.ModeConfig{Mode: s.def, Version: 0}, nil
	}
	if err != nil {
		return model.ModeConfig{}, err
	}
	var cfg model.ModeConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return model.ModeConfig{}, err
	}
	return cfg, nil
}

func (s *ModeStore) Set(ctx context.Context, mode model.SubmissionMode) (model.ModeConfig, error) {
	if !mode.Valid() {
		return model.ModeConfig{}, domain.ErrUnknownMode
	}
	version, err := s.cli.Incr(ctx, modeVersionKey).Result()
	if err != nil {
		return model.ModeConfig{}, err
	}
	cfg := model.ModeConfig{Mode: mode, Version: version, UpdatedAt: time.Now()}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return model.ModeConfig{}, err
	}
	if err := s.cli.Set(ctx, modeKey, raw, 0).Err(); err != nil {
		return model.ModeConfig{}, err
	}
	return cfg, nil
}
