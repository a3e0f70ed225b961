package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mjl-/sherpa"

	"github.com/mjl-/regdomain/orgdomain"
	"github.com/mjl-/regdomain/pslstore"
	"github.com/mjl-/regdomain/publicsuffix"
)

var ctxbg = context.Background()

func tcheck(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", msg, err)
	}
}

func testIndex(t *testing.T) *publicsuffix.Index {
	t.Helper()
	x, err := publicsuffix.ParseList(nil, strings.NewReader("com\nuk\nco.uk\n*.ck\n!www.ck\n"), false)
	tcheck(t, err, "parse list")
	return x
}

// tneedErrorCode calls fn and checks it panics with a sherpa error with code.
func tneedErrorCode(t *testing.T, code string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		x := recover()
		if x == nil {
			t.Fatalf("expected sherpa error with code %q, got no panic", code)
		}
		var err *sherpa.Error
		if xerr, ok := x.(error); !ok || !errors.As(xerr, &err) || err.Code != code {
			t.Fatalf("got panic %#v, expected sherpa error with code %q", x, code)
		}
	}()
	fn()
}

func TestAPI(t *testing.T) {
	resolver := &orgdomain.Resolver{}
	api := API{resolver: resolver}

	tneedErrorCode(t, "server:error", func() { api.RegistrableDomain(ctxbg, "www.example.com") })
	tneedErrorCode(t, "server:error", func() { api.PublicSuffix(ctxbg, "www.example.com") })
	if st := api.Status(ctxbg); st.Loaded {
		t.Fatalf("status loaded without index")
	}

	now := time.Now()
	resolver.Swap(&orgdomain.Loaded{Index: testIndex(t), Source: "test", Time: now, SHA256: "abc", ICANNOnly: true})

	test := func(url, expect string) {
		t.Helper()
		if got := api.RegistrableDomain(ctxbg, url); got != expect {
			t.Fatalf("RegistrableDomain(%q): got %q, expected %q", url, got, expect)
		}
	}
	test("https://www.example.co.uk/path?q=1", "example.co.uk")
	test("WWW.Google.COM", "google.com")
	test("", "")
	test("co.uk", "co.uk")
	test("foo.bar.ck", "foo.bar.ck")
	test("foo.www.ck", "www.ck")

	if got := api.PublicSuffix(ctxbg, "https://a.b.test.ck/"); got != "test.ck" {
		t.Fatalf("PublicSuffix: got %q, expected test.ck", got)
	}

	st := api.Status(ctxbg)
	if !st.Loaded || st.Rules != 5 || st.Source != "test" || !st.Fetched.Equal(now) || st.SHA256 != "abc" || !st.ICANNOnly || st.Snapshots != 0 {
		t.Fatalf("bad status %#v", st)
	}

	store, err := pslstore.Open(ctxbg, nil, filepath.Join(t.TempDir(), "psl.db"))
	tcheck(t, err, "open store")
	defer store.Close()
	x := testIndex(t)
	err = store.Add(ctxbg, &pslstore.Snapshot{Source: "test", Rules: x.Len(), Index: publicsuffix.Save(x)})
	tcheck(t, err, "add snapshot")
	api.store = store
	if st := api.Status(ctxbg); st.Snapshots != 1 {
		t.Fatalf("got %d snapshots in status, expected 1", st.Snapshots)
	}
	err = store.Add(ctxbg, &pslstore.Snapshot{Source: "test", ICANNOnly: true, Rules: x.Len(), Index: publicsuffix.Save(x)})
	tcheck(t, err, "add snapshot")
	if st := api.Status(ctxbg); st.Snapshots != 2 {
		t.Fatalf("got %d snapshots in status, expected 2", st.Snapshots)
	}
}

func TestHandler(t *testing.T) {
	resolver := &orgdomain.Resolver{}
	h, err := Handler(nil, resolver, Options{Metrics: true})
	tcheck(t, err, "handler")
	srv := httptest.NewServer(h)
	defer srv.Close()

	get := func(path string, expectCode int) string {
		t.Helper()
		resp, err := srv.Client().Get(srv.URL + path)
		tcheck(t, err, "get "+path)
		defer resp.Body.Close()
		if resp.StatusCode != expectCode {
			t.Fatalf("get %s: got status %d, expected %d", path, resp.StatusCode, expectCode)
		}
		buf, err := io.ReadAll(resp.Body)
		tcheck(t, err, "read response")
		return string(buf)
	}
	call := func(fn string, params ...any) (result any, errCode string) {
		t.Helper()
		body, err := json.Marshal(map[string]any{"params": params})
		tcheck(t, err, "marshal request")
		resp, err := srv.Client().Post(srv.URL+"/api/"+fn, "application/json", strings.NewReader(string(body)))
		tcheck(t, err, "api call")
		defer resp.Body.Close()
		var r struct {
			Result any
			Error  *sherpa.Error
		}
		err = json.NewDecoder(resp.Body).Decode(&r)
		tcheck(t, err, "decode response")
		if r.Error != nil {
			return nil, r.Error.Code
		}
		return r.Result, ""
	}

	get("/healthz", http.StatusOK)
	get("/readyz", http.StatusServiceUnavailable)
	if _, code := call("RegistrableDomain", "www.example.com"); code != "server:error" {
		t.Fatalf("call without index: got error code %q, expected server:error", code)
	}

	resolver.Swap(&orgdomain.Loaded{Index: testIndex(t), Source: "test", Time: time.Now()})
	get("/readyz", http.StatusOK)

	if result, code := call("RegistrableDomain", "https://www.example.co.uk/"); code != "" || result != "example.co.uk" {
		t.Fatalf("call: got %v, error code %q", result, code)
	}
	if result, code := call("PublicSuffix", "www.example.co.uk"); code != "" || result != "co.uk" {
		t.Fatalf("call: got %v, error code %q", result, code)
	}

	if s := get("/", http.StatusOK); !strings.Contains(s, `id="hdr-api"`) {
		t.Fatalf("index page without rendered markdown:\n%s", s)
	}
	get("/other", http.StatusNotFound)
	if s := get("/metrics", http.StatusOK); !strings.Contains(s, "regdomain_panic_total") {
		t.Fatalf("metrics without panic counter")
	}
}
