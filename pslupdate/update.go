// Package pslupdate keeps the public suffix list index of a resolver up to
// date.
//
// At startup, the index from the most recent snapshot in the store is made
// effective, so lookups work without network access. The list is then fetched
// periodically, and a new index is built, stored and swapped in when the list
// changed. Failed refreshes are retried with exponential backoff.
package pslupdate

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	mathrand "math/rand"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/mjl-/regdomain/metrics"
	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/orgdomain"
	"github.com/mjl-/regdomain/pslfetch"
	"github.com/mjl-/regdomain/pslstore"
	"github.com/mjl-/regdomain/publicsuffix"
	"github.com/mjl-/regdomain/stub"
)

var (
	MetricRefresh stub.CounterVec = stub.CounterVecIgnore{}
	MetricRules   stub.Gauge      = stub.GaugeIgnore{}
	MetricFetched stub.Gauge      = stub.GaugeIgnore{}
)

var timeNow = time.Now // Tests override this.

// ErrShrunk is returned by Refresh for a list with less than half the rules of
// the current list. The current index is kept.
var ErrShrunk = errors.New("pslupdate: new list has less than half the rules of current list")

// FetchFunc retrieves the list at url.
type FetchFunc func(ctx context.Context, elog *slog.Logger, url string, maxSize int64) (*pslfetch.List, error)

// Config for an Updater. Zero durations are replaced with defaults.
type Config struct {
	URL            string
	ICANNOnly      bool
	Interval       time.Duration // Between successful refreshes, default 7 days.
	InitialBackoff time.Duration // After the first failure, default 1 minute.
	MaxBackoff     time.Duration // Default 6 hours.
	MaxSize        int64
	LocalFile      string // Loaded when the store has no snapshot.
	KeepSnapshots  int    // Default 4.
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = pslfetch.DefaultURL
	}
	if c.Interval <= 0 {
		c.Interval = 7 * 24 * time.Hour
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Minute
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 6 * time.Hour
	}
	if c.KeepSnapshots <= 0 {
		c.KeepSnapshots = 4
	}
	return c
}

// Updater loads and refreshes the index of Resolver.
type Updater struct {
	Config   Config
	Resolver *orgdomain.Resolver
	Store    *pslstore.Store // Optional, without store nothing is persisted.
	Fetch    FetchFunc       // If nil, pslfetch.Fetch with the default HTTP client.

	// For tests.
	sleep func(ctx context.Context, d time.Duration) error
	cid   atomic.Int64
}

// Warm makes the index of the most recent snapshot effective. If the store is
// empty or its latest snapshot cannot be loaded, the list from Config.LocalFile
// is used, if set. Warm returns whether an index was loaded.
func (u *Updater) Warm(ctx context.Context, elog *slog.Logger) (bool, error) {
	log := mlog.New("pslupdate", elog)
	cfg := u.Config.withDefaults()

	if u.Store != nil {
		sn, err := u.Store.Latest(ctx, cfg.ICANNOnly)
		if err == nil {
			x, err := sn.Load()
			if err == nil {
				u.swap(log, &orgdomain.Loaded{Index: x, Source: sn.Source, Time: sn.Fetched, SHA256: sn.SHA256, ICANNOnly: sn.ICANNOnly})
				return true, nil
			}
			log.Errorx("loading index from latest snapshot, ignoring", err, slog.Int64("snapshot", sn.ID))
		} else if !errors.Is(err, pslstore.ErrNoSnapshot) {
			return false, err
		}
	}

	if cfg.LocalFile == "" {
		log.Info("no snapshot of public suffix list available")
		return false, nil
	}
	buf, err := os.ReadFile(cfg.LocalFile)
	if err != nil {
		return false, fmt.Errorf("reading local public suffix list: %w", err)
	}
	x, err := publicsuffix.ParseList(log.Logger, bytes.NewReader(buf), cfg.ICANNOnly)
	if err != nil {
		return false, fmt.Errorf("parsing local public suffix list: %w", err)
	}
	var mtime time.Time
	if fi, err := os.Stat(cfg.LocalFile); err == nil {
		mtime = fi.ModTime()
	}
	sum := sha256.Sum256(buf)
	u.swap(log, &orgdomain.Loaded{Index: x, Source: cfg.LocalFile, Time: mtime, SHA256: hex.EncodeToString(sum[:]), ICANNOnly: cfg.ICANNOnly})
	return true, nil
}

func (u *Updater) swap(log mlog.Log, l *orgdomain.Loaded) {
	u.Resolver.Swap(l)
	MetricRules.Set(float64(l.Index.Len()))
	MetricFetched.Set(float64(l.Time.Unix()))
	log.Info("public suffix list index loaded",
		slog.String("source", l.Source),
		slog.Int("rules", l.Index.Len()),
		slog.Time("fetched", l.Time),
		slog.String("sha256", l.SHA256))
}

// Refresh fetches the list once. If it changed, a new index is built, stored
// and made effective.
func (u *Updater) Refresh(ctx context.Context, elog *slog.Logger) (rerr error) {
	log := mlog.New("pslupdate", elog)
	cfg := u.Config.withDefaults()
	var result string
	defer func() {
		if result == "" && rerr != nil {
			result = "error"
		}
		MetricRefresh.IncLabels(result)
	}()

	fetch := u.Fetch
	if fetch == nil {
		fetch = func(ctx context.Context, elog *slog.Logger, url string, maxSize int64) (*pslfetch.List, error) {
			return pslfetch.Fetch(ctx, elog, nil, url, maxSize)
		}
	}
	list, err := fetch(ctx, log.Logger, cfg.URL, cfg.MaxSize)
	if err != nil {
		return err
	}

	// An index built from the same list is only reused when it was built with the
	// same ICANN section setting.
	cur := u.Resolver.Current()
	if cur != nil && cur.SHA256 == list.SHA256 && cur.ICANNOnly == cfg.ICANNOnly {
		result = "unchanged"
		u.Resolver.Swap(&orgdomain.Loaded{Index: cur.Index, Source: list.URL, Time: list.Fetched, SHA256: list.SHA256, ICANNOnly: cur.ICANNOnly})
		MetricFetched.Set(float64(list.Fetched.Unix()))
		log.Debug("public suffix list unchanged", slog.String("sha256", list.SHA256))
		if u.Store == nil {
			return nil
		}
		n, err := u.Store.Touch(ctx, list.SHA256, cfg.ICANNOnly, list.Fetched)
		if err != nil {
			log.Errorx("updating fetch time of snapshot", err)
		} else if n == 0 {
			// Index was loaded from LocalFile, not yet stored.
			u.store(ctx, log, cfg, list, cur.Index)
		}
		return nil
	}

	x, err := publicsuffix.ParseList(log.Logger, bytes.NewReader(list.Data), cfg.ICANNOnly)
	if err != nil {
		return fmt.Errorf("parsing fetched list: %w", err)
	}
	if x.Len() == 0 {
		return fmt.Errorf("fetched list has no rules")
	}
	if cur != nil && x.Len() < cur.Index.Len()/2 {
		result = "shrunk"
		return fmt.Errorf("%w: %d rules, current list has %d", ErrShrunk, x.Len(), cur.Index.Len())
	}

	u.swap(log, &orgdomain.Loaded{Index: x, Source: list.URL, Time: list.Fetched, SHA256: list.SHA256, ICANNOnly: cfg.ICANNOnly})
	result = "ok"

	if u.Store != nil {
		u.store(ctx, log, cfg, list, x)
	}
	return nil
}

// store adds a snapshot for the index built from list and prunes old
// snapshots. Errors are logged, the index in use stays effective.
func (u *Updater) store(ctx context.Context, log mlog.Log, cfg Config, list *pslfetch.List, x *publicsuffix.Index) {
	sn := pslstore.Snapshot{
		Fetched:   list.Fetched,
		Source:    list.URL,
		SHA256:    list.SHA256,
		ICANNOnly: cfg.ICANNOnly,
		Rules:     x.Len(),
		Index:     publicsuffix.Save(x),
	}
	if err := u.Store.Add(ctx, &sn); err != nil {
		log.Errorx("storing snapshot, continuing with new index", err)
	} else if _, err := u.Store.Prune(ctx, cfg.KeepSnapshots); err != nil {
		log.Errorx("pruning snapshots", err)
	}
}

// Start warms the resolver and keeps refreshing the list until ctx is done,
// at which point ctx.Err() is returned. A refresh is done immediately if no
// index was loaded, or if the loaded index is older than the interval.
func (u *Updater) Start(ctx context.Context, elog *slog.Logger) error {
	log := mlog.New("pslupdate", elog)
	cfg := u.Config.withDefaults()

	if _, err := u.Warm(ctx, log.Logger); err != nil {
		log.Errorx("loading initial index, continuing", err)
	}

	var delay time.Duration
	if cur := u.Resolver.Current(); cur != nil {
		delay = max(0, cfg.Interval-timeNow().Sub(cur.Time))
	}
	log.Debug("first public suffix list refresh scheduled", slog.Duration("delay", delay))

	var failures int
	for {
		if err := u.wait(ctx, delay); err != nil {
			log.Debugx("updater stopped", err)
			return err
		}

		err := u.refreshSafe(ctx, log)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		} else if err != nil {
			failures++
			delay = calcBackoff(cfg.InitialBackoff, cfg.MaxBackoff, failures)
			log.Errorx("refreshing public suffix list, will retry", err,
				slog.Int("failures", failures),
				slog.Duration("backoff", delay))
			continue
		}
		if failures > 0 {
			log.Info("public suffix list refresh recovered", slog.Int("failures", failures))
		}
		failures = 0
		delay = cfg.Interval
	}
}

// refreshSafe refreshes with a new cid, turning a panic into an error.
func (u *Updater) refreshSafe(ctx context.Context, log mlog.Log) (rerr error) {
	ctx = context.WithValue(ctx, mlog.CidKey, u.cid.Add(1))
	log = log.WithContext(ctx)
	defer func() {
		x := recover()
		if x != nil {
			log.Error("refresh", slog.Any("panic", x))
			debug.PrintStack()
			metrics.PanicInc(metrics.Pslupdate)
			rerr = fmt.Errorf("panic during refresh: %v", x)
		}
	}()
	return u.Refresh(ctx, log.Logger)
}

func (u *Updater) wait(ctx context.Context, d time.Duration) error {
	if u.sleep != nil {
		return u.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calcBackoff returns the delay after a number of consecutive failures: initial
// doubled for each further failure, capped at max, with 20% jitter.
func calcBackoff(initial, max time.Duration, failures int) time.Duration {
	pow := math.Pow(2, float64(failures-1))
	backoff := time.Duration(float64(initial) * pow)
	if backoff > max || backoff <= 0 {
		backoff = max
	}

	jitterFrac := 0.2
	jitter := time.Duration(mathrand.Float64()*2*jitterFrac*float64(backoff)) - time.Duration(jitterFrac*float64(backoff))
	return backoff + jitter
}
