package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/beyawnko/Majestik-World/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

func TestVerifyDigest(t *testing.T) {
	data := []byte("seed: 1\n")
	sum := blake2b.Sum256(data)
	if err := verifyDigest(data, sum[:]); err != nil {
		t.Fatalf("valid digest rejected: %v", err)
	}
	if err := verifyDigest([]byte("seed: 2\n"), sum[:]); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("tampered data accepted: %v", err)
	}
	if err := verifyDigest(data, sum[:16]); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("short digest accepted: %v", err)
	}
}

// openTestDB connects to the database named by MAJESTIK_TEST_DSN and applies
// migrations, or skips the test.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("MAJESTIK_TEST_DSN")
	if dsn == "" {
		t.Skip("MAJESTIK_TEST_DSN is required for integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := Open(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2, ConnMaxLifetime: time.Minute}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)
	if _, err := Migrate(ctx, db.Pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSaveRepoIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSaveRepo(db)
	name := fmt.Sprintf("test-%d", time.Now().UnixNano())
	t.Cleanup(func() { repo.Delete(context.Background(), name) })

	if row, err := repo.Load(ctx, name); err != nil || row != nil {
		t.Fatalf("missing save: %+v %v", row, err)
	}
	if err := repo.Store(ctx, name, 7, []byte("seed: 1\n")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := repo.Store(ctx, name, 9, []byte("seed: 2\n")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	row, err := repo.Load(ctx, name)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.Tick != 9 || string(row.Config) != "seed: 2\n" {
		t.Fatalf("unexpected save %+v", row)
	}
}

func TestJournalRepoIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewJournalRepo(db)
	run := fmt.Sprintf("run-%d", time.Now().UnixNano())

	entries := []JournalEntry{{Tick: 1, Block: []byte("a")}, {Tick: 2, Block: []byte("bb")}, {Tick: 3, Block: []byte("ccc")}}
	if err := repo.Append(ctx, run, entries); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(ctx, run, []JournalEntry{{Tick: 4, Block: []byte("d")}, {Tick: 2, Block: []byte("dup")}}); err == nil {
		t.Fatal("duplicate tick accepted")
	}
	got, err := repo.Range(ctx, run, 2, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 || got[0].Tick != 2 || !bytes.Equal(got[1].Block, []byte("ccc")) {
		t.Fatalf("unexpected range %+v", got)
	}
	if _, err := db.Pool.Exec(ctx, `DELETE FROM delta_journal WHERE run_id = $1`, run); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestJournalWriterIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewJournalRepo(db)
	run := fmt.Sprintf("writer-%d", time.Now().UnixNano())
	w := NewJournalWriter(repo, run, 2)

	for tick := uint64(0); tick < 5; tick++ {
		if err := w.Write(ctx, tick, []byte{byte(tick)}); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	if got, _ := repo.Range(ctx, run, 0, 10); len(got) != 4 {
		t.Fatalf("expected 4 flushed blocks before Flush, got %d", len(got))
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got, _ := repo.Range(ctx, run, 0, 10); len(got) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(got))
	}
	if _, err := db.Pool.Exec(ctx, `DELETE FROM delta_journal WHERE run_id = $1`, run); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}
