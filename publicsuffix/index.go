package publicsuffix

// node is a label position in the trie, reached from the root by labels in
// reverse order: root, top-level domain, second-level label, etc.
type node struct {
	children  map[string]*node // Keyed by label, "*" for the wildcard child.
	rule      bool             // Normal or wildcard rule ends here.
	wildcard  bool             // Node is the "*" child of its parent.
	exception bool             // Exception rule ends here.
}

// Index is a public suffix list indexed for lookups. An Index is not modified
// after Build or Load returns, and can be used concurrently.
type Index struct {
	root   *node // Zero labels, implicitly the default rule "*".
	nrules int
}

// Build returns an index for the rules. The order of the rules does not
// matter, duplicates are ignored. An empty set of rules results in an index
// where only the default rule "*" applies: the public suffix of each name is
// its top-level label.
func Build(rules []Rule) *Index {
	x := &Index{root: &node{}}
	for _, r := range rules {
		x.add(r)
	}
	return x
}

func (x *Index) add(r Rule) {
	if len(r.Labels) == 0 {
		return
	}
	n := x.root
	for i := len(r.Labels) - 1; i >= 0; i-- {
		w := r.Labels[i]
		c, ok := n.children[w]
		if !ok {
			if n.children == nil {
				n.children = map[string]*node{}
			}
			c = &node{wildcard: w == "*"}
			n.children[w] = c
		}
		n = c
	}
	if r.Kind == KindException {
		if !n.exception {
			n.exception = true
			x.nrules++
		}
	} else if !n.rule {
		n.rule = true
		x.nrules++
	}
}

// Len returns the number of distinct rules in the index.
func (x *Index) Len() int {
	return x.nrules
}
