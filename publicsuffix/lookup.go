package publicsuffix

import (
	"strings"
)

// Lookup returns the registrable domain for hostname, its public suffix plus
// one label. E.g. "example.co.uk" for "www.example.co.uk".
//
// Hostname must be lower case, without scheme, port or path. An empty
// hostname, or a hostname with an empty label, results in an empty string. If
// hostname is itself a public suffix, e.g. "com" or "co.uk", there is no
// registrable domain and hostname is returned as is. Use RegistrableDomain to
// tell these cases apart.
func (x *Index) Lookup(hostname string) string {
	hostname = strings.TrimSpace(hostname)
	if d, ok := x.RegistrableDomain(hostname); ok {
		return d
	} else if validHost(hostname) {
		return hostname
	}
	return ""
}

// RegistrableDomain returns the registrable domain for hostname and whether
// it exists. It does not exist for an invalid hostname, in which case the
// returned string is empty, or if hostname is itself a public suffix, in which
// case the returned string is empty as well.
func (x *Index) RegistrableDomain(hostname string) (string, bool) {
	labels, ok := splitHost(hostname)
	if !ok {
		return "", false
	}
	n := x.suffixLabels(labels)
	if len(labels) < n+1 {
		return "", false
	}
	return lastLabels(hostname, n+1), true
}

// PublicSuffix returns the effective public suffix of hostname, e.g. "co.uk"
// for "www.example.co.uk", "test.ck" for "b.test.ck" (through wildcard rule
// "*.ck"), and "ck" for "www.ck" (through exception rule "!www.ck"). For names
// not covered by any rule, the top-level label is returned. For an invalid
// hostname, the empty string is returned.
func (x *Index) PublicSuffix(hostname string) string {
	labels, ok := splitHost(hostname)
	if !ok {
		return ""
	}
	n := x.suffixLabels(labels)
	if n > len(labels) {
		return hostname
	}
	return lastLabels(hostname, n)
}

// IsPublicSuffix returns whether hostname is a public suffix, i.e. does not
// have a registrable domain.
func (x *Index) IsPublicSuffix(hostname string) bool {
	labels, ok := splitHost(hostname)
	return ok && len(labels) <= x.suffixLabels(labels)
}

// suffixLabels returns the number of labels of the public suffix of the name
// with labels.
func (x *Index) suffixLabels(labels []string) int {
	ruleDepth, exceptionDepth := match(x.root, labels, 0)
	switch {
	case exceptionDepth > 0:
		// An exception rule makes its name registrable, the public suffix is one
		// label shorter.
		return max(exceptionDepth-1, 1)
	case ruleDepth > 0:
		return ruleDepth
	}
	// Default rule "*".
	return 1
}

// match walks from n, at depth, through the remaining labels, consuming the
// last label first. It returns the depth of the deepest normal or wildcard
// rule, and of the deepest exception rule, on any path matching the labels.
// Both the literal child and the wildcard child are followed, the wildcard
// path only counts when it leads to a strictly deeper match.
func match(n *node, labels []string, depth int) (ruleDepth, exceptionDepth int) {
	if len(labels) == 0 {
		return 0, 0
	}
	w := labels[len(labels)-1]
	rest := labels[:len(labels)-1]

	if c, ok := n.children[w]; ok {
		ruleDepth, exceptionDepth = visit(c, rest, depth+1)
	}
	if c, ok := n.children["*"]; ok && w != "*" {
		rd, ed := visit(c, rest, depth+1)
		ruleDepth = max(ruleDepth, rd)
		exceptionDepth = max(exceptionDepth, ed)
	}
	return ruleDepth, exceptionDepth
}

func visit(c *node, rest []string, depth int) (ruleDepth, exceptionDepth int) {
	ruleDepth, exceptionDepth = match(c, rest, depth)
	if c.rule {
		ruleDepth = max(ruleDepth, depth)
	}
	if c.exception {
		exceptionDepth = max(exceptionDepth, depth)
	}
	return ruleDepth, exceptionDepth
}

// splitHost returns the labels of hostname, or false if hostname is empty or
// has an empty label.
func splitHost(hostname string) ([]string, bool) {
	if !validHost(hostname) {
		return nil, false
	}
	return strings.Split(hostname, "."), true
}

func validHost(hostname string) bool {
	return hostname != "" && hostname[0] != '.' && hostname[len(hostname)-1] != '.' && !strings.Contains(hostname, "..") && strings.TrimSpace(hostname) == hostname
}

// lastLabels returns the last n labels of hostname, which must have at least n
// labels.
func lastLabels(hostname string, n int) string {
	i := len(hostname)
	for ; n > 0; n-- {
		i = strings.LastIndexByte(hostname[:i], '.')
		if i < 0 {
			return hostname
		}
	}
	return hostname[i+1:]
}
