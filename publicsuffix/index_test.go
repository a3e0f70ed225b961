package publicsuffix

import (
	"bytes"
	"math/rand"
	"os"
	"sync"
	"testing"
)

func mustRules(t testing.TB, lines ...string) []Rule {
	t.Helper()
	rules := make([]Rule, len(lines))
	for i, line := range lines {
		r, err := ParseRule(line)
		if err != nil {
			t.Fatalf("parsing rule %q: %v", line, err)
		}
		rules[i] = r
	}
	return rules
}

// Hostnames used to compare indexes.
var corpus = []string{
	"",
	"com",
	"example.com",
	"www.google.com",
	"a.b.c.example.com",
	"co.uk",
	"example.co.uk",
	"www.example.co.uk",
	"uk",
	"ck",
	"bar.ck",
	"foo.bar.ck",
	"www.ck",
	"foo.www.ck",
	"x.a.b",
	"a.b",
	"y.b",
	"x.y.b",
	"example",
	"a.example",
	"city.kawasaki.jp",
	"www.city.kawasaki.jp",
	"foo.bar.kawasaki.jp",
	".com",
	"a..com",
	"...",
	"   ",
}

var testRules = []string{
	"com",
	"uk",
	"co.uk",
	"*.ck",
	"!www.ck",
	"a.b",
	"*.b",
	"jp",
	"*.kawasaki.jp",
	"!city.kawasaki.jp",
}

func TestLookup(t *testing.T) {
	x := Build(mustRules(t, testRules...))

	test := func(host, expect string) {
		t.Helper()
		if got := x.Lookup(host); got != expect {
			t.Fatalf("Lookup(%q): got %q, expected %q", host, got, expect)
		}
	}

	test("", "")
	test("www.google.com", "google.com")
	test("google.com", "google.com")
	test("a.b.c.example.com", "example.com")
	test("www.example.co.uk", "example.co.uk")

	// Wildcard: "*.ck" makes bar.ck a public suffix.
	test("foo.bar.ck", "foo.bar.ck")
	test("baz.foo.bar.ck", "foo.bar.ck")
	// Exception: "!www.ck" makes www.ck registrable.
	test("foo.www.ck", "www.ck")
	test("www.ck", "www.ck")

	// Literal rule "a.b" and wildcard "*.b" both match, as suffix a.b.
	test("x.a.b", "x.a.b")
	test("w.x.a.b", "x.a.b")
	test("w.x.y.b", "x.y.b")

	test("foo.bar.kawasaki.jp", "foo.bar.kawasaki.jp")
	test("www.city.kawasaki.jp", "city.kawasaki.jp")

	// Not covered by any rule, default rule "*".
	test("a.example", "a.example")
	test("b.a.example", "a.example")

	// Public suffixes themselves are returned as is.
	test("com", "com")
	test("co.uk", "co.uk")
	test("bar.ck", "bar.ck")
	test("example", "example")

	// Invalid names.
	test(".com", "")
	test("a..com", "")
	test("example.com.", "")
	test("...", "")
	test("   ", "")
	test(" example.com ", "example.com")
}

func TestPublicSuffix(t *testing.T) {
	x := Build(mustRules(t, testRules...))

	test := func(host, expect string, isSuffix bool) {
		t.Helper()
		if got := x.PublicSuffix(host); got != expect {
			t.Fatalf("PublicSuffix(%q): got %q, expected %q", host, got, expect)
		}
		if got := x.IsPublicSuffix(host); got != isSuffix {
			t.Fatalf("IsPublicSuffix(%q): got %v, expected %v", host, got, isSuffix)
		}
	}

	test("www.example.co.uk", "co.uk", false)
	test("co.uk", "co.uk", true)
	test("b.test.ck", "test.ck", false)
	test("www.ck", "ck", false)
	test("foo.www.ck", "ck", false)
	test("ck", "ck", true)
	test("example", "example", true)
	test("a.example", "example", false)
	test("", "", false)
	test("a..b", "", false)
}

// Adding one label to a normal rule gives back the same name as registrable
// domain.
func TestOneLabelAdded(t *testing.T) {
	x := parseTestList(t, false)

	buf, err := os.ReadFile("testdata/public_suffix_list.dat")
	tcheckf(t, err, "read test list")
	lines, err := Clean(bytes.NewReader(buf), false)
	tcheckf(t, err, "clean")
	rules, skipped := ParseRules(nil, lines)
	if skipped != 0 {
		t.Fatalf("skipped %d rules", skipped)
	}
	var n int
	for _, r := range rules {
		if r.Kind != KindNormal {
			continue
		}
		name := r.String()
		// Skip rules that are themselves covered by a longer wildcard match, e.g.
		// label "anylabel" would be consumed by "*.<rule>".
		if x.IsPublicSuffix("anylabel." + name) {
			continue
		}
		n++
		if got := x.Lookup("anylabel." + name); got != "anylabel."+name {
			t.Fatalf("rule %q: got %q, expected %q", name, got, "anylabel."+name)
		}
		if got := x.Lookup("more.anylabel." + name); got != "anylabel."+name {
			t.Fatalf("rule %q with extra label: got %q, expected %q", name, got, "anylabel."+name)
		}
	}
	if n == 0 {
		t.Fatalf("no rules tested")
	}
}

func TestEmptyIndex(t *testing.T) {
	x := Build(nil)
	if x.Len() != 0 {
		t.Fatalf("got %d rules, expected 0", x.Len())
	}
	test := func(host, expect string) {
		t.Helper()
		if got := x.Lookup(host); got != expect {
			t.Fatalf("Lookup(%q): got %q, expected %q", host, got, expect)
		}
	}
	test("www.example.co.uk", "co.uk")
	test("example.com", "example.com")
	test("com", "com")
}

func TestDuplicateRules(t *testing.T) {
	x := Build(mustRules(t, "com", "com", "*.ck", "*.ck", "!www.ck", "!www.ck"))
	if x.Len() != 3 {
		t.Fatalf("got %d rules, expected 3", x.Len())
	}
}

// Indexes built from the same rules in any order have the same binary form and
// give the same answers.
func TestBuildOrderIndependent(t *testing.T) {
	rules := mustRules(t, testRules...)
	x0 := Build(rules)
	buf0 := Save(x0)

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		l := append([]Rule{}, rules...)
		rnd.Shuffle(len(l), func(i, j int) { l[i], l[j] = l[j], l[i] })
		x := Build(l)
		if buf := Save(x); !bytes.Equal(buf, buf0) {
			t.Fatalf("different binary form for permutation %d", i)
		}
		for _, h := range corpus {
			if a, b := x0.Lookup(h), x.Lookup(h); a != b {
				t.Fatalf("permutation %d, %q: got %q, expected %q", i, h, b, a)
			}
		}
	}
}

func TestConcurrentLookup(t *testing.T) {
	x := Build(mustRules(t, testRules...))
	expect := map[string]string{}
	for _, h := range corpus {
		expect[h] = x.Lookup(h)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, h := range corpus {
					if got := x.Lookup(h); got != expect[h] {
						t.Errorf("%q: got %q, expected %q", h, got, expect[h])
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}

func BenchmarkLookup(b *testing.B) {
	x := Build(mustRules(b, testRules...))
	for i := 0; i < b.N; i++ {
		if x.Lookup("www.example.co.uk") != "example.co.uk" {
			b.Fatalf("bad lookup")
		}
	}
}
