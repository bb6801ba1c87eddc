package calibration

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/novahale/vocalis/pkg/types"
)

// ErrWriteFailed indicates that persisting settings did not succeed after
// retries. Callers keep the in-memory calibration and continue the session;
// persistence failure must never block scoring.
var ErrWriteFailed = errors.New("calibration: settings write failed")

// Settings is the per-user persisted record: the voice baseline captured at
// calibration time and the learned score correction. Either part may be
// absent for a new user.
type Settings struct {
	Baseline    *types.VoiceBaseline
	Calibration *types.BiomarkerCalibration
}

// Patch is a partial settings write. Nil fields leave the stored value
// untouched; non-nil fields replace it wholesale (baselines are never
// merged).
type Patch struct {
	Baseline    *types.VoiceBaseline
	Calibration *types.BiomarkerCalibration
}

// Repository persists per-user settings. Save has update-or-insert
// semantics: saving to an unknown user creates the record. Implementations
// must be safe for concurrent use; per-user write serialization is the
// caller's responsibility.
type Repository interface {
	// Load returns the stored settings for userID. A user with no record
	// yields an empty Settings, not an error.
	Load(ctx context.Context, userID string) (*Settings, error)

	// Save applies patch to userID's record. Returns ErrWriteFailed (possibly
	// wrapped) when the write cannot be completed.
	Save(ctx context.Context, userID string, patch Patch) error
}

// MemoryRepository is an in-process Repository for tests and storage-less
// deployments.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]Settings
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Settings)}
}

// Load implements Repository.
func (r *MemoryRepository) Load(_ context.Context, userID string) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return &Settings{}, nil
	}
	out := Settings{}
	if rec.Baseline != nil {
		b := *rec.Baseline
		out.Baseline = &b
	}
	if rec.Calibration != nil {
		c := *rec.Calibration
		out.Calibration = &c
	}
	return &out, nil
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, userID string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.records[userID]
	if patch.Baseline != nil {
		b := *patch.Baseline
		rec.Baseline = &b
	}
	if patch.Calibration != nil {
		c := *patch.Calibration
		rec.Calibration = &c
	}
	r.records[userID] = rec
	return nil
}

// BaselineDistance returns the Euclidean distance between the stored baseline
// feature vector and features. The second return is false when userID has no
// baseline.
func (r *MemoryRepository) BaselineDistance(_ context.Context, userID string, features types.AudioFeatures) (float64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok || rec.Baseline == nil {
		return 0, false, nil
	}

	a := rec.Baseline.Features.Vector()
	b := features.Vector()
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), true, nil
}

var _ Repository = (*MemoryRepository)(nil)
