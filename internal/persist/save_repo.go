package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/blake2b"
)

// ErrDigestMismatch is returned when stored bytes no longer match the
// digest recorded with them.
var ErrDigestMismatch = errors.New("persist: digest mismatch")

// SaveRow is one named world save: the exported config blob of a
// simulation at Tick.
type SaveRow struct {
	Name    string
	Tick    uint64
	Config  []byte
	SavedAt time.Time
}

type SaveRepo struct {
	db *DB
}

func NewSaveRepo(db *DB) *SaveRepo {
	return &SaveRepo{db: db}
}

// Store writes or replaces the save called name.
func (r *SaveRepo) Store(ctx context.Context, name string, tick uint64, config []byte) error {
	digest := blake2b.Sum256(config)
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO world_saves (name, tick, config, digest, saved_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (name) DO UPDATE
		 SET tick = EXCLUDED.tick, config = EXCLUDED.config,
		     digest = EXCLUDED.digest, saved_at = EXCLUDED.saved_at`,
		name, int64(tick), config, digest[:],
	)
	if err != nil {
		return fmt.Errorf("store save %q: %w", name, err)
	}
	return nil
}

// Load returns the save called name, or nil if there is none.
func (r *SaveRepo) Load(ctx context.Context, name string) (*SaveRow, error) {
	row := &SaveRow{Name: name}
	var tick int64
	var digest []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT tick, config, digest, saved_at FROM world_saves WHERE name = $1`, name,
	).Scan(&tick, &row.Config, &digest, &row.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load save %q: %w", name, err)
	}
	if err := verifyDigest(row.Config, digest); err != nil {
		return nil, fmt.Errorf("load save %q: %w", name, err)
	}
	row.Tick = uint64(tick)
	return row, nil
}

// Delete removes the save called name. Deleting a missing save is not an
// error.
func (r *SaveRepo) Delete(ctx context.Context, name string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM world_saves WHERE name = $1`, name)
	return err
}

func verifyDigest(data, digest []byte) error {
	sum := blake2b.Sum256(data)
	if len(digest) != len(sum) || string(digest) != string(sum[:]) {
		return ErrDigestMismatch
	}
	return nil
}
