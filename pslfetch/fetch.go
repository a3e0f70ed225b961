// Package pslfetch downloads a public suffix list.
//
// The list is published at https://publicsuffix.org/list/public_suffix_list.dat.
// Its maintainers ask for downloading at most once per day, and to cache it
// locally. Package pslupdate takes care of that.
package pslfetch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/regvar"
	"github.com/mjl-/regdomain/stub"
)

// DefaultURL is the location of the public suffix list.
const DefaultURL = "https://publicsuffix.org/list/public_suffix_list.dat"

// DefaultMaxSize is the maximum size of a fetched list, if none is specified.
// The list is around 250KB in 2024.
const DefaultMaxSize = 16 * 1024 * 1024

var (
	MetricFetch       stub.HistogramVec                                                                                           = stub.HistogramVecIgnore{}
	HTTPClientObserve func(ctx context.Context, log *slog.Logger, pkg, method string, statusCode int, err error, start time.Time) = stub.HTTPClientObserveIgnore
)

var (
	ErrFetch    = errors.New("pslfetch: fetching list")
	ErrTooLarge = errors.New("pslfetch: list exceeds maximum size")
)

// List is a fetched public suffix list.
type List struct {
	URL     string
	Data    []byte
	SHA256  string // Hex-encoded.
	Fetched time.Time
}

// Fetch downloads the list at url with an HTTP GET request. If maxSize is <= 0,
// DefaultMaxSize is used.
func Fetch(ctx context.Context, elog *slog.Logger, client *http.Client, url string, maxSize int64) (rlist *List, rerr error) {
	log := mlog.New("pslfetch", elog)
	start := time.Now()
	defer func() {
		var result = "ok"
		if errors.Is(rerr, ErrTooLarge) {
			result = "toolarge"
		} else if rerr != nil {
			result = "error"
		}
		MetricFetch.ObserveLabels(float64(time.Since(start))/float64(time.Second), result)
		var size int
		if rlist != nil {
			size = len(rlist.Data)
		}
		log.Debugx("fetch public suffix list result", rerr,
			slog.String("url", url),
			slog.Int("size", size),
			slog.Duration("duration", time.Since(start)))
	}()

	if client == nil {
		client = http.DefaultClient
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	nctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	req, err := http.NewRequestWithContext(nctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: making request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", regvar.UserAgent())
	req.Header.Set("Accept", "text/plain")
	resp, err := client.Do(req)
	if resp == nil {
		resp = &http.Response{StatusCode: 0}
	}
	HTTPClientObserve(ctx, log.Logger, "pslfetch", req.Method, resp.StatusCode, err, start)
	if err != nil {
		return nil, fmt.Errorf("%w: making http request: %s", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http status: %s", ErrFetch, resp.Status)
	}
	if resp.ContentLength > maxSize {
		return nil, fmt.Errorf("%w: content-length %d, max %d", ErrTooLarge, resp.ContentLength, maxSize)
	}

	var b bytes.Buffer
	if _, err := io.Copy(&b, &limitReader{resp.Body, maxSize}); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, fmt.Errorf("%w: max %d", err, maxSize)
		}
		return nil, fmt.Errorf("%w: reading response: %s", ErrFetch, err)
	}
	if b.Len() == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrFetch)
	}
	sum := sha256.Sum256(b.Bytes())
	return &List{url, b.Bytes(), hex.EncodeToString(sum[:]), time.Now()}, nil
}
