// Package orgdomain resolves URLs and hostnames to their registrable domain,
// also known as organizational domain, with the public suffix list index
// that is currently loaded.
//
// A Resolver holds a reference to an immutable publicsuffix.Index. A refreshed
// list is made effective by building a new index and calling Swap. Lookups
// that are in progress keep using the index they started with.
package orgdomain

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/publicsuffix"
	"github.com/mjl-/regdomain/stub"
)

var (
	MetricLookup stub.CounterVec = stub.CounterVecIgnore{}
)

// ErrNoIndex is returned for lookups before an index has been loaded.
var ErrNoIndex = errors.New("orgdomain: index not initialized")

// Loaded is an index with information about where it came from.
type Loaded struct {
	Index  *publicsuffix.Index
	Source string    // E.g. URL or file name of the list.
	Time   time.Time // When the list was fetched.
	SHA256 string    // Hex SHA-256 of the raw list, if known.

	// Only the ICANN section of the list was used for the index.
	ICANNOnly bool
}

// Resolver resolves names with the current index. The zero value is a resolver
// without index.
type Resolver struct {
	current atomic.Pointer[Loaded]
}

// Swap makes l the current index and returns the previous, possibly nil.
func (r *Resolver) Swap(l *Loaded) *Loaded {
	return r.current.Swap(l)
}

// Current returns the current index, or nil if none has been loaded.
func (r *Resolver) Current() *Loaded {
	return r.current.Load()
}

// Lookup returns the registrable domain for hostname, which must already be
// normalized, see Normalize. An empty hostname results in an empty string
// without error. If hostname is itself a public suffix, it is returned as is.
func (r *Resolver) Lookup(hostname string) (string, error) {
	l := r.current.Load()
	if l == nil {
		MetricLookup.IncLabels("noindex")
		return "", ErrNoIndex
	}
	if hostname == "" {
		MetricLookup.IncLabels("empty")
		return "", nil
	}
	d, ok := l.Index.RegistrableDomain(hostname)
	if !ok {
		MetricLookup.IncLabels("notregistrable")
		return l.Index.Lookup(hostname), nil
	}
	MetricLookup.IncLabels("ok")
	return d, nil
}

// PublicSuffix returns the public suffix of hostname, which must already be
// normalized.
func (r *Resolver) PublicSuffix(hostname string) (string, error) {
	l := r.current.Load()
	if l == nil {
		return "", ErrNoIndex
	}
	return l.Index.PublicSuffix(hostname), nil
}

// RegistrableDomain normalizes url, see Normalize, and returns its registrable
// domain.
func (r *Resolver) RegistrableDomain(elog *slog.Logger, url string) (string, error) {
	log := mlog.New("orgdomain", elog)
	host := Normalize(url)
	d, err := r.Lookup(host)
	log.Debugx("registrable domain lookup", err,
		slog.String("url", url),
		slog.String("host", host),
		slog.String("domain", d))
	return d, err
}
