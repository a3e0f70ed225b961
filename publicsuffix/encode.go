package publicsuffix

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDecode is returned when loading an index from corrupt or truncated data.
var ErrDecode = errors.New("publicsuffix: decoding index")

// Magic and version at the start of a saved index.
const magic = "psl1"

const (
	flagRule      byte = 1 << 0
	flagWildcard  byte = 1 << 1
	flagException byte = 1 << 2
	flagMask           = flagRule | flagWildcard | flagException
)

// Labels are at most 63 bytes in DNS, rules have at most a handful of labels.
// These limits only protect against malicious input.
const (
	maxDepth    = 128
	maxLabelLen = 255
)

// Save returns the binary form of the index, for storing and loading it
// later with Load without parsing a public suffix list again. Children are
// written in sorted order, so indexes built from the same rules have the same
// binary form.
//
// The format is the magic "psl1" followed by the root node. Each node is a
// flags byte, a uvarint number of children, and for each child a uvarint
// length of the label, the label, and the child node.
func Save(x *Index) []byte {
	buf := make([]byte, 0, 64*1024)
	buf = append(buf, magic...)
	return appendNode(buf, x.root)
}

func appendNode(buf []byte, n *node) []byte {
	var flags byte
	if n.rule {
		flags |= flagRule
	}
	if n.wildcard {
		flags |= flagWildcard
	}
	if n.exception {
		flags |= flagException
	}
	buf = append(buf, flags)
	buf = binary.AppendUvarint(buf, uint64(len(n.children)))

	labels := make([]string, 0, len(n.children))
	for w := range n.children {
		labels = append(labels, w)
	}
	sort.Strings(labels)
	for _, w := range labels {
		buf = binary.AppendUvarint(buf, uint64(len(w)))
		buf = append(buf, w...)
		buf = appendNode(buf, n.children[w])
	}
	return buf
}

// Load returns an index from data written by Save. Errors wrap ErrDecode.
func Load(buf []byte) (*Index, error) {
	if !strings.HasPrefix(string(buf), magic) {
		return nil, fmt.Errorf("%w: missing magic", ErrDecode)
	}
	d := decoder{buf: buf, o: len(magic)}
	root, err := d.node(0, "")
	if err != nil {
		return nil, err
	}
	if d.o != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrDecode, len(d.buf)-d.o)
	}
	return &Index{root: root, nrules: d.nrules}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler, see Save.
func (x *Index) MarshalBinary() ([]byte, error) {
	return Save(x), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler, see Load.
func (x *Index) UnmarshalBinary(buf []byte) error {
	nx, err := Load(buf)
	if err != nil {
		return err
	}
	*x = *nx
	return nil
}

type decoder struct {
	buf    []byte
	o      int
	nrules int
}

func (d *decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrDecode, fmt.Sprintf(format, args...), d.o)
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.o:])
	if n <= 0 {
		return 0, d.errorf("bad uvarint")
	}
	d.o += n
	return v, nil
}

func (d *decoder) node(depth int, label string) (*node, error) {
	if depth > maxDepth {
		return nil, d.errorf("too deep")
	}
	if d.o >= len(d.buf) {
		return nil, d.errorf("truncated")
	}
	flags := d.buf[d.o]
	d.o++
	if flags&^flagMask != 0 {
		return nil, d.errorf("unknown flags %#x", flags)
	}
	n := &node{
		rule:      flags&flagRule != 0,
		wildcard:  flags&flagWildcard != 0,
		exception: flags&flagException != 0,
	}
	if n.wildcard != (label == "*") {
		return nil, d.errorf("wildcard flag mismatch for label %q", label)
	}
	if n.rule {
		d.nrules++
	}
	if n.exception {
		d.nrules++
	}

	count, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	// Each child takes at least 3 bytes: length, label and flags.
	if count > uint64(len(d.buf)-d.o)/3 {
		return nil, d.errorf("too many children")
	}
	if count > 0 {
		n.children = make(map[string]*node, count)
	}
	var prev string
	for i := uint64(0); i < count; i++ {
		size, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if size == 0 || size > maxLabelLen || size > uint64(len(d.buf)-d.o) {
			return nil, d.errorf("bad label length %d", size)
		}
		w := string(d.buf[d.o : d.o+int(size)])
		d.o += int(size)
		if i > 0 && w <= prev {
			return nil, d.errorf("labels not sorted")
		}
		prev = w
		c, err := d.node(depth+1, w)
		if err != nil {
			return nil, err
		}
		n.children[w] = c
	}
	return n, nil
}
