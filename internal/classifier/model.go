package classifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/metrics"
)

// Model is one trained classifier artifact. Blob is opaque to this service.
type Model struct {
	Version   int64     `json:"version"`
	Blob      []byte    `json:"blob"`
	TrainedAt time.Time `json:"trained_at"`
	Samples   int       `json:"samples"`
}

// Store persists the latest model. Load returns (nil, nil) when nothing was saved yet.
// Version reports the stored version without reading the blob, 0 when nothing was saved.
type Store interface {
	Load(ctx context.Context) (*Model, error)
	Save(ctx context.Context, blob []byte, samples int) (*Model, error)
	Version(ctx context.Context) (int64, error)
}

// Holder keeps the model in use. Every Current call compares the cached version
// with the store, so a retrain saved by another process is picked up on the next pass.
type Holder struct {
	store   Store
	mu      sync.Mutex
	current atomic.Pointer[Model]
}

// NewHolder creates a holder over store.
func NewHolder(store Store) *Holder {
	return &Holder{store: store}
}

// Current returns the model in use or apperr.ErrUntrained when none exists.
func (h *Holder) Current(ctx context.Context) (*Model, error) {
	cached := h.current.Load()
	if cached != nil {
		if h.store == nil {
			return cached, nil
		}
		v, err := h.store.Version(ctx)
		if err != nil {
			log.Warn().Err(err).Int64("version", cached.Version).Msg("model version check failed, keeping loaded model")
			return cached, nil
		}
		if v == 0 || v == cached.Version {
			return cached, nil
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.current.Load(); m != cached {
		return m, nil
	}
	if h.store == nil {
		return nil, apperr.ErrUntrained
	}
	m, err := h.store.Load(ctx)
	if err != nil {
		if cached != nil {
			log.Warn().Err(err).Int64("version", cached.Version).Msg("reload model failed, keeping loaded model")
			return cached, nil
		}
		return nil, fmt.Errorf("load model: %w", err)
	}
	if m == nil || len(m.Blob) == 0 {
		if cached != nil {
			return cached, nil
		}
		return nil, apperr.ErrUntrained
	}
	if cached != nil {
		log.Info().Int64("from", cached.Version).Int64("to", m.Version).Msg("classifier model reloaded")
	}
	h.current.Store(m)
	metrics.ModelVersion.Set(float64(m.Version))
	return m, nil
}

// Replace persists blob as the next version and swaps it in.
func (h *Holder) Replace(ctx context.Context, blob []byte, samples int) (*Model, error) {
	if len(blob) == 0 {
		return nil, apperr.Capability("train", fmt.Errorf("empty model"))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	m, err := h.store.Save(ctx, blob, samples)
	if err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	h.current.Store(m)
	metrics.ModelVersion.Set(float64(m.Version))
	return m, nil
}

// Set swaps in m without persisting it.
func (h *Holder) Set(m *Model) {
	h.current.Store(m)
}
