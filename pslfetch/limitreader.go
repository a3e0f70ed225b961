package pslfetch

import (
	"io"
)

// limitReader reads up to limit bytes, returning ErrTooLarge if more bytes are
// read.
type limitReader struct {
	r     io.Reader
	limit int64
}

func (r *limitReader) Read(buf []byte) (int, error) {
	n, err := r.r.Read(buf)
	if n > 0 {
		r.limit -= int64(n)
		if r.limit < 0 {
			return 0, ErrTooLarge
		}
	}
	return n, err
}
