// Package postgres provides a PostgreSQL-backed calibration repository.
//
// Each user has one row in voice_settings: the baseline and calibration are
// stored as JSONB documents, plus a pgvector column holding the flattened
// baseline feature vector so drift between a check-in and the baseline can be
// measured with a distance query instead of application-side math.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/novahale/vocalis/internal/calibration"
	"github.com/novahale/vocalis/pkg/types"
)

// featureVectorDims is the length of types.AudioFeatures.Vector: 13 MFCC
// coefficients plus 12 scalar features. Baked into the column type at schema
// creation; changing it requires a manual schema update.
const featureVectorDims = types.MFCCCount + 12

// saveMaxElapsed caps the total time spent retrying one Save before it
// surfaces ErrWriteFailed.
const saveMaxElapsed = 10 * time.Second

const ddlVoiceSettings = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS voice_settings (
    user_id          TEXT         PRIMARY KEY,
    baseline         JSONB,
    baseline_vector  vector(%d),
    calibration      JSONB,
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Repository is a PostgreSQL-backed calibration.Repository. All operations
// are safe for concurrent use.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Repository, establishes a connection pool to the database at
// dsn, registers pgvector types on every connection, and runs Migrate.
func New(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("calibration postgres: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("calibration postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("calibration postgres: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("calibration postgres: migrate: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Migrate creates the voice_settings table and the vector extension. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlVoiceSettings, featureVectorDims)); err != nil {
		return fmt.Errorf("calibration postgres migrate: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping verifies database connectivity, for readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Load implements calibration.Repository.
func (r *Repository) Load(ctx context.Context, userID string) (*calibration.Settings, error) {
	var baselineJSON, calibrationJSON []byte

	err := r.pool.QueryRow(ctx,
		`SELECT baseline, calibration FROM voice_settings WHERE user_id = $1`,
		userID,
	).Scan(&baselineJSON, &calibrationJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return &calibration.Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calibration postgres: load %q: %w", userID, err)
	}

	out := &calibration.Settings{}
	if len(baselineJSON) > 0 {
		var b types.VoiceBaseline
		if err := json.Unmarshal(baselineJSON, &b); err != nil {
			return nil, fmt.Errorf("calibration postgres: decode baseline: %w", err)
		}
		out.Baseline = &b
	}
	if len(calibrationJSON) > 0 {
		var c types.BiomarkerCalibration
		if err := json.Unmarshal(calibrationJSON, &c); err != nil {
			return nil, fmt.Errorf("calibration postgres: decode calibration: %w", err)
		}
		out.Calibration = &c
	}
	return out, nil
}

// Save implements calibration.Repository. The upsert is retried with capped
// exponential backoff; persistent failure surfaces ErrWriteFailed so the
// caller keeps its in-memory calibration and the session continues.
func (r *Repository) Save(ctx context.Context, userID string, patch calibration.Patch) error {
	op := func() error {
		if err := r.save(ctx, userID, patch); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = saveMaxElapsed

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("calibration postgres: save %q: %v: %w", userID, err, calibration.ErrWriteFailed)
	}
	return nil
}

func (r *Repository) save(ctx context.Context, userID string, patch calibration.Patch) error {
	var (
		baselineJSON    []byte
		baselineVec     any
		calibrationJSON []byte
		err             error
	)

	if patch.Baseline != nil {
		baselineJSON, err = json.Marshal(patch.Baseline)
		if err != nil {
			return fmt.Errorf("encode baseline: %w", err)
		}
		baselineVec = pgvector.NewVector(toFloat32(patch.Baseline.Features.Vector()))
	}
	if patch.Calibration != nil {
		calibrationJSON, err = json.Marshal(patch.Calibration)
		if err != nil {
			return fmt.Errorf("encode calibration: %w", err)
		}
	}

	// COALESCE keeps the stored value for any part the patch leaves nil.
	_, err = r.pool.Exec(ctx, `
INSERT INTO voice_settings (user_id, baseline, baseline_vector, calibration, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id) DO UPDATE SET
    baseline        = COALESCE(EXCLUDED.baseline, voice_settings.baseline),
    baseline_vector = COALESCE(EXCLUDED.baseline_vector, voice_settings.baseline_vector),
    calibration     = COALESCE(EXCLUDED.calibration, voice_settings.calibration),
    updated_at      = now()`,
		userID, baselineJSON, baselineVec, calibrationJSON)
	return err
}

// BaselineDistance returns the Euclidean distance between the stored baseline
// feature vector and features, for drift reporting. Returns false when the
// user has no stored baseline.
func (r *Repository) BaselineDistance(ctx context.Context, userID string, features types.AudioFeatures) (float64, bool, error) {
	queryVec := pgvector.NewVector(toFloat32(features.Vector()))

	var distance float64
	err := r.pool.QueryRow(ctx, `
SELECT baseline_vector <-> $2
FROM voice_settings
WHERE user_id = $1 AND baseline_vector IS NOT NULL`,
		userID, queryVec,
	).Scan(&distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("calibration postgres: baseline distance %q: %w", userID, err)
	}
	return distance, true, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

var _ calibration.Repository = (*Repository)(nil)
