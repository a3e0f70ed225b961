package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mjl-/sconf"

	"github.com/mjl-/regdomain/mlog"
	"github.com/mjl-/regdomain/pslfetch"
)

func TestParseFile(t *testing.T) {
	p := filepath.FromSlash("testdata/regdomain.conf")
	c, errs := ParseFile(p)
	if len(errs) > 0 {
		t.Fatalf("parsing config: %v", errs)
	}
	s := c.Static
	if s.Listen != DefaultListen || s.KeepSnapshots != DefaultKeepSnapshots {
		t.Fatalf("defaults not applied: listen %q, keep %d", s.Listen, s.KeepSnapshots)
	}
	if s.Log[""] != mlog.LevelInfo || s.Log["pslupdate"] != mlog.LevelDebug {
		t.Fatalf("bad log levels %v", s.Log)
	}
	u := c.Updater()
	if u.Interval != 24*time.Hour || u.URL != pslfetch.DefaultURL || u.MaxSize != pslfetch.DefaultMaxSize || u.InitialBackoff != DefaultInitialBackoff {
		t.Fatalf("bad updater config %#v", u)
	}
	if u.LocalFile != filepath.Join("testdata", "public_suffix_list.dat") {
		t.Fatalf("local file not relative to config dir: %q", u.LocalFile)
	}
	if got := c.DataDirPath("psl.db"); got != filepath.Join("testdata", "data", "psl.db") {
		t.Fatalf("data dir path: got %q", got)
	}
	if got := c.DataDirPath("/tmp/psl.db"); got != "/tmp/psl.db" {
		t.Fatalf("absolute data dir path: got %q", got)
	}
}

func TestParseFileErrors(t *testing.T) {
	_, errs := ParseFile(filepath.FromSlash("testdata/bad.conf"))
	if len(errs) != 3 {
		t.Fatalf("got errors %v, expected 3 (log level, listen, refresh interval)", errs)
	}

	_, errs = ParseFile(filepath.FromSlash("testdata/missing.conf"))
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "hint") {
		t.Fatalf("missing file: got errors %v", errs)
	}

	c := &Config{Path: "regdomain.conf", Static: Static{LogLevel: "info", ACME: &ACME{}}}
	if errs := c.prepare(); len(errs) != 2 {
		t.Fatalf("acme without hostnames and contact: got errors %v", errs)
	}
	c = &Config{Path: "regdomain.conf", Static: Static{LogLevel: "info", ACME: &ACME{Hostnames: []string{"psl.example"}, ContactEmail: "admin@psl.example"}}}
	if errs := c.prepare(); len(errs) != 0 {
		t.Fatalf("valid acme config: got errors %v", errs)
	}
	if c.Static.ACME.CacheDir != "acme" {
		t.Fatalf("acme cache dir default not applied")
	}
}

// Describe must handle all field types of the config.
func TestDescribe(t *testing.T) {
	var b bytes.Buffer
	var s Static
	err := sconf.Describe(&b, &s)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !strings.Contains(b.String(), "RefreshInterval") {
		t.Fatalf("describe output misses fields:\n%s", b.String())
	}
}
