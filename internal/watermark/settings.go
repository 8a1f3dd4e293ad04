package watermark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"productimages/internal/models"
	"productimages/internal/storage"
)

// SettingsKey is the KV key the active settings are persisted under.
const SettingsKey = "watermark_settings"

// SettingsStore persists the deployment's single WatermarkSettings value.
type SettingsStore struct {
	mu sync.Mutex
	kv storage.KV
}

func NewSettingsStore(kv storage.KV) *SettingsStore {
	return &SettingsStore{kv: kv}
}

// Get returns the stored settings, or the defaults when none were saved.
func (s *SettingsStore) Get(ctx context.Context) (models.WatermarkSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx)
}

// Update applies patch to the stored settings and saves the result.
func (s *SettingsStore) Update(ctx context.Context, patch models.SettingsPatch) (models.WatermarkSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(ctx)
	if err != nil {
		return models.WatermarkSettings{}, err
	}
	return s.put(ctx, patch.Apply(current))
}

func (s *SettingsStore) get(ctx context.Context) (models.WatermarkSettings, error) {
	const op = "watermark.SettingsStore.Get"

	raw, err := s.kv.Get(ctx, SettingsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return models.DefaultWatermarkSettings(), nil
	}
	if err != nil {
		return models.WatermarkSettings{}, fmt.Errorf("%s: %w", op, err)
	}
	settings := models.DefaultWatermarkSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return models.WatermarkSettings{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	return settings.Normalize(), nil
}

func (s *SettingsStore) put(ctx context.Context, settings models.WatermarkSettings) (models.WatermarkSettings, error) {
	const op = "watermark.SettingsStore.Put"

	settings = settings.Normalize()
	raw, err := json.Marshal(settings)
	if err != nil {
		return models.WatermarkSettings{}, fmt.Errorf("%s: encode: %w", op, err)
	}
	if err := s.kv.Put(ctx, SettingsKey, raw); err != nil {
		return models.WatermarkSettings{}, fmt.Errorf("%s: %w", op, err)
	}
	return settings, nil
}
