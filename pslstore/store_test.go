package pslstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mjl-/regdomain/publicsuffix"
)

var ctxbg = context.Background()

func tcheckf(t *testing.T, err error, format string, args ...any) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", fmt.Sprintf(format, args...), err)
	}
}

func TestStore(t *testing.T) {
	dbpath := filepath.Join(t.TempDir(), "data", "psl.db")
	s, err := Open(ctxbg, nil, dbpath)
	tcheckf(t, err, "open")

	_, err = s.Latest(ctxbg, false)
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("latest on empty store: got %v, expected ErrNoSnapshot", err)
	}

	r, err := publicsuffix.ParseRule("co.uk")
	tcheckf(t, err, "parse rule")
	x := publicsuffix.Build([]publicsuffix.Rule{r})

	now := time.Now().Round(0)
	add := func(age time.Duration, sha string) Snapshot {
		t.Helper()
		sn := Snapshot{
			Fetched: now.Add(-age),
			Source:  "https://publicsuffix.example/list.dat",
			SHA256:  sha,
			Rules:   x.Len(),
			Index:   publicsuffix.Save(x),
		}
		err := s.Add(ctxbg, &sn)
		tcheckf(t, err, "add snapshot")
		if sn.ID == 0 {
			t.Fatalf("snapshot without id after add")
		}
		return sn
	}
	add(3*time.Hour, "a")
	add(time.Hour, "c")
	add(2*time.Hour, "b")

	sn, err := s.Latest(ctxbg, false)
	tcheckf(t, err, "latest")
	if sn.SHA256 != "c" {
		t.Fatalf("latest: got sha %q, expected c", sn.SHA256)
	}
	lx, err := sn.Load()
	tcheckf(t, err, "load index from snapshot")
	if got := lx.Lookup("www.example.co.uk"); got != "example.co.uk" {
		t.Fatalf("lookup with loaded index: got %q", got)
	}

	l, err := s.List(ctxbg)
	tcheckf(t, err, "list")
	var shas string
	for _, sn := range l {
		shas += sn.SHA256
		if sn.Index != nil {
			t.Fatalf("list returned index data")
		}
	}
	if shas != "cba" {
		t.Fatalf("list: got order %q, expected cba", shas)
	}

	if n, err := s.Count(ctxbg); err != nil || n != 3 {
		t.Fatalf("count: got %d, %v, expected 3", n, err)
	}

	n, err := s.Prune(ctxbg, 2)
	tcheckf(t, err, "prune")
	if n != 1 {
		t.Fatalf("prune: removed %d, expected 1", n)
	}

	// Fetching list "b" again makes it the latest.
	n, err = s.Touch(ctxbg, "b", false, now)
	tcheckf(t, err, "touch")
	if n != 1 {
		t.Fatalf("touch: updated %d, expected 1", n)
	}
	sn, err = s.Latest(ctxbg, false)
	tcheckf(t, err, "latest after touch")
	if sn.SHA256 != "b" || !sn.Fetched.Equal(now) {
		t.Fatalf("latest after touch: got sha %q, fetched %v", sn.SHA256, sn.Fetched)
	}
	n, err = s.Touch(ctxbg, "a", false, now)
	tcheckf(t, err, "touch pruned")
	if n != 0 {
		t.Fatalf("touch of pruned snapshot: updated %d, expected 0", n)
	}

	n, err = s.Prune(ctxbg, 0)
	tcheckf(t, err, "prune")
	if n != 1 {
		t.Fatalf("prune with keep 0: removed %d, expected 1", n)
	}
	sn, err = s.Latest(ctxbg, false)
	tcheckf(t, err, "latest after prune")
	if sn.SHA256 != "b" {
		t.Fatalf("latest after prune: got sha %q, expected b", sn.SHA256)
	}

	// Snapshots for the ICANN section only are separate.
	if _, err := s.Latest(ctxbg, true); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("latest icann only: got %v, expected ErrNoSnapshot", err)
	}
	icann := Snapshot{Fetched: now.Add(-4 * time.Hour), Source: "https://publicsuffix.example/list.dat", SHA256: "b", ICANNOnly: true, Rules: x.Len(), Index: publicsuffix.Save(x)}
	err = s.Add(ctxbg, &icann)
	tcheckf(t, err, "add icann only snapshot")
	sn, err = s.Latest(ctxbg, true)
	tcheckf(t, err, "latest icann only")
	if sn.ID != icann.ID {
		t.Fatalf("latest icann only: got snapshot %d, expected %d", sn.ID, icann.ID)
	}
	if sn, err := s.Latest(ctxbg, false); err != nil || sn.ICANNOnly {
		t.Fatalf("latest all sections: got %#v, %v", sn, err)
	}
	touched := now.Add(-time.Minute)
	n, err = s.Touch(ctxbg, "b", true, touched)
	tcheckf(t, err, "touch icann only")
	if n != 1 {
		t.Fatalf("touch icann only: updated %d, expected 1", n)
	}
	sn, err = s.Latest(ctxbg, true)
	tcheckf(t, err, "latest icann only after touch")
	if !sn.Fetched.Equal(touched) {
		t.Fatalf("latest icann only after touch: fetched %v, expected %v", sn.Fetched, touched)
	}
	sn, err = s.Latest(ctxbg, false)
	tcheckf(t, err, "latest all sections after touch")
	if !sn.Fetched.Equal(now) {
		t.Fatalf("touch of icann only snapshot changed all sections snapshot")
	}
	// Removes the older icann only snapshot.
	n, err = s.Prune(ctxbg, 1)
	tcheckf(t, err, "prune")
	if n != 1 {
		t.Fatalf("prune: removed %d, expected 1", n)
	}

	if err := s.Add(ctxbg, &Snapshot{Source: "x"}); err == nil {
		t.Fatalf("add without index succeeded")
	}

	// Data is persistent.
	err = s.Close()
	tcheckf(t, err, "close")
	s, err = Open(ctxbg, nil, dbpath)
	tcheckf(t, err, "reopen")
	defer s.Close()
	sn, err = s.Latest(ctxbg, false)
	tcheckf(t, err, "latest after reopen")
	if sn.SHA256 != "b" || sn.Rules != 1 {
		t.Fatalf("latest after reopen: got %#v", sn)
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	sn := Snapshot{ID: 1, Index: []byte("psl1\xff")}
	if _, err := sn.Load(); !errors.Is(err, publicsuffix.ErrDecode) {
		t.Fatalf("got err %v, expected ErrDecode", err)
	}
}
