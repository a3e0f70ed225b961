// Package webapi is the HTTP interface to the registrable domain resolver.
//
// Functions are exported with sherpa under /api/, e.g. a POST to
// /api/RegistrableDomain with JSON body {"params": ["https://www.example.co.uk/"]}.
// The handler also serves a page documenting the API, health and readiness
// checks, and optionally prometheus metrics.
package webapi

import (
	"context"
	"fmt"
	"time"

	"github.com/mjl-/sherpa"

	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/orgdomain"
	"github.com/mjl-/regdomain/pslstore"
)

//go:generate sherpadoc -adjust-function-names none API >api.json

// API exports functions for looking up registrable domains. All its methods
// are exported under /api/.
type API struct {
	resolver *orgdomain.Resolver
	store    *pslstore.Store
}

// Status describes the index used for lookups.
type Status struct {
	Loaded    bool      // Whether an index is loaded. Lookups fail until one is.
	Rules     int       // Number of rules in the index.
	Source    string    // URL or file the list was read from.
	Fetched   time.Time // When the list was last retrieved.
	SHA256    string    // Of the list the index was built from.
	ICANNOnly bool      // Whether only the ICANN section of the list is used.
	Snapshots int       // Number of snapshots in the database.
}

func xcheckf(ctx context.Context, err error, format string, args ...any) {
	if err == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	errmsg := fmt.Sprintf("%s: %s", msg, err)
	pkglog.WithContext(ctx).Errorx(msg, err)
	panic(&sherpa.Error{Code: "server:error", Message: errmsg})
}

var pkglog = mlog.New("webapi", nil)

// RegistrableDomain returns the registrable domain for a URL or hostname, e.g.
// "example.co.uk" for "https://www.example.co.uk/index.html". A scheme, path,
// port and leading "www." are removed first. An empty string is returned for
// an empty or invalid name. A name that is a public suffix itself, like
// "co.uk", is returned as is.
func (a API) RegistrableDomain(ctx context.Context, url string) string {
	d, err := a.resolver.RegistrableDomain(pkglog.WithContext(ctx).Logger, url)
	xcheckf(ctx, err, "looking up registrable domain")
	return d
}

// PublicSuffix returns the public suffix of a hostname, e.g. "co.uk" for
// "www.example.co.uk".
func (a API) PublicSuffix(ctx context.Context, hostname string) string {
	s, err := a.resolver.PublicSuffix(orgdomain.Normalize(hostname))
	xcheckf(ctx, err, "looking up public suffix")
	return s
}

// Status returns information about the index currently used for lookups.
func (a API) Status(ctx context.Context) (r Status) {
	if l := a.resolver.Current(); l != nil {
		r = Status{true, l.Index.Len(), l.Source, l.Time, l.SHA256, l.ICANNOnly, 0}
	}
	if a.store != nil {
		n, err := a.store.Count(ctx)
		xcheckf(ctx, err, "counting snapshots")
		r.Snapshots = n
	}
	return r
}
