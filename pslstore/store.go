// Package pslstore stores snapshots of built public suffix list indexes.
//
// After a restart, the newest snapshot is loaded so lookups can be answered
// without first downloading the list again. Older snapshots are kept for
// inspection and are pruned periodically.
package pslstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mjl-/bstore"

	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/publicsuffix"
	"github.com/mjl-/regdomain/regvar"
)

var timeNow = time.Now // Tests override this.

// ErrNoSnapshot is returned by Latest if the store has no snapshots.
var ErrNoSnapshot = errors.New("pslstore: no snapshot")

// Snapshot is an index built from a public suffix list.
type Snapshot struct {
	ID        int64
	Inserted  time.Time `bstore:"default now"`
	Fetched   time.Time `bstore:"nonzero,index"` // When the list was retrieved.
	Source    string    `bstore:"nonzero"`       // URL or file name.
	SHA256    string    `bstore:"index"`         // Hex SHA-256 of the raw list.
	// Only rules of the ICANN section of the list are in the index.
	ICANNOnly bool
	Rules     int
	Index     []byte // As returned by publicsuffix.Save.
}

// Load returns the index of the snapshot.
func (s Snapshot) Load() (*publicsuffix.Index, error) {
	x, err := publicsuffix.Load(s.Index)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", s.ID, err)
	}
	return x, nil
}

// DBTypes are the types stored in the database.
var DBTypes = []any{Snapshot{}}

// Store is a database with snapshots.
type Store struct {
	DB  *bstore.DB
	log mlog.Log
}

// Open opens the database at path, creating it and its directory if needed.
func Open(ctx context.Context, elog *slog.Logger, path string) (*Store, error) {
	log := mlog.New("pslstore", elog)
	os.MkdirAll(filepath.Dir(path), 0770)
	opts := bstore.Options{Timeout: 5 * time.Second, Perm: 0660, RegisterLogger: regvar.RegisterLogger(path, log.Logger)}
	db, err := bstore.Open(ctx, path, &opts, DBTypes...)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	return &Store{db, log}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Add inserts a snapshot, setting its ID.
func (s *Store) Add(ctx context.Context, sn *Snapshot) error {
	if len(sn.Index) == 0 {
		return fmt.Errorf("snapshot without index")
	}
	if sn.Fetched.IsZero() {
		sn.Fetched = timeNow()
	}
	if err := s.DB.Insert(ctx, sn); err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	s.log.Debug("added snapshot",
		slog.Int64("id", sn.ID),
		slog.String("source", sn.Source),
		slog.String("sha256", sn.SHA256),
		slog.Int("rules", sn.Rules))
	return nil
}

// Latest returns the most recently fetched snapshot built with the icannOnly
// setting, or ErrNoSnapshot.
func (s *Store) Latest(ctx context.Context, icannOnly bool) (Snapshot, error) {
	q := bstore.QueryDB[Snapshot](ctx, s.DB)
	q.FilterEqual("ICANNOnly", icannOnly)
	q.SortDesc("Fetched", "ID")
	q.Limit(1)
	sn, err := q.Get()
	if err == bstore.ErrAbsent {
		return Snapshot{}, ErrNoSnapshot
	} else if err != nil {
		return Snapshot{}, fmt.Errorf("looking up latest snapshot: %w", err)
	}
	return sn, nil
}

// List returns all snapshots, most recent first, without their index data.
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	l, err := bstore.QueryDB[Snapshot](ctx, s.DB).SortDesc("Fetched", "ID").List()
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	for i := range l {
		l[i].Index = nil
	}
	return l, nil
}

// Count returns the number of snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := bstore.QueryDB[Snapshot](ctx, s.DB).Count()
	if err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

// Prune removes all but the keep most recent snapshots and returns the number
// removed. At least one snapshot is always kept.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	keep = max(keep, 1)
	var n int
	err := s.DB.Write(ctx, func(tx *bstore.Tx) error {
		q := bstore.QueryTx[Snapshot](tx)
		q.SortDesc("Fetched", "ID")
		l, err := q.List()
		if err != nil {
			return err
		}
		if len(l) <= keep {
			return nil
		}
		for _, sn := range l[keep:] {
			if err := tx.Delete(&sn); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	if n > 0 {
		s.log.Info("pruned snapshots", slog.Int("removed", n), slog.Int("kept", keep))
	}
	return n, nil
}

// Touch sets the fetch time of snapshots with the SHA-256 and icannOnly setting,
// for a list that was fetched again without changes. It returns the number of
// snapshots updated.
func (s *Store) Touch(ctx context.Context, sha256 string, icannOnly bool, fetched time.Time) (int, error) {
	if sha256 == "" {
		return 0, nil
	}
	q := bstore.QueryDB[Snapshot](ctx, s.DB)
	q.FilterNonzero(Snapshot{SHA256: sha256})
	q.FilterEqual("ICANNOnly", icannOnly)
	n, err := q.UpdateNonzero(Snapshot{Fetched: fetched})
	if err != nil {
		return 0, fmt.Errorf("updating fetch time of snapshot: %w", err)
	}
	return n, nil
}
