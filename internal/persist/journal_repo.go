package persist

import (
	"context"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// JournalEntry is one published delta block.
type JournalEntry struct {
	Tick  uint64
	Block []byte
}

// JournalRepo stores the delta blocks of a run so it can be replayed or
// audited later.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// Append atomically writes a batch of blocks for runID in a single
// transaction. A tick already journaled for the run fails the whole batch.
func (r *JournalRepo) Append(ctx context.Context, runID string, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		digest := blake2b.Sum256(e.Block)
		if _, err := tx.Exec(ctx,
			`INSERT INTO delta_journal (run_id, tick, block, digest)
			 VALUES ($1, $2, $3, $4)`,
			runID, int64(e.Tick), e.Block, digest[:],
		); err != nil {
			return fmt.Errorf("journal insert tick %d: %w", e.Tick, err)
		}
	}

	return tx.Commit(ctx)
}

// Range returns the blocks of runID with from <= tick <= to, in tick order.
// Every block is checked against its stored digest.
func (r *JournalRepo) Range(ctx context.Context, runID string, from, to uint64) ([]JournalEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT tick, block, digest FROM delta_journal
		 WHERE run_id = $1 AND tick BETWEEN $2 AND $3
		 ORDER BY tick`,
		runID, int64(from), int64(to),
	)
	if err != nil {
		return nil, fmt.Errorf("journal range: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var tick int64
		var block, digest []byte
		if err := rows.Scan(&tick, &block, &digest); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		if err := verifyDigest(block, digest); err != nil {
			return nil, fmt.Errorf("journal tick %d: %w", tick, err)
		}
		out = append(out, JournalEntry{Tick: uint64(tick), Block: block})
	}
	return out, rows.Err()
}

// JournalWriter buffers blocks of one run and appends them in batches.
type JournalWriter struct {
	repo    *JournalRepo
	runID   string
	batch   int
	pending []JournalEntry
}

// NewJournalWriter flushes every batch blocks; batch < 1 means 64.
func NewJournalWriter(repo *JournalRepo, runID string, batch int) *JournalWriter {
	if batch < 1 {
		batch = 64
	}
	return &JournalWriter{repo: repo, runID: runID, batch: batch}
}

func (w *JournalWriter) Write(ctx context.Context, tick uint64, block []byte) error {
	w.pending = append(w.pending, JournalEntry{Tick: tick, Block: block})
	if len(w.pending) >= w.batch {
		return w.Flush(ctx)
	}
	return nil
}

// Flush appends everything buffered. On error the buffer is kept so the
// caller can retry.
func (w *JournalWriter) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.repo.Append(ctx, w.runID, w.pending); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	return nil
}
