// Package inflate pools raw DEFLATE decoders.
package inflate

import (
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Pool manages reusable raw (headerless) DEFLATE decoders to reduce
// allocation overhead. A Pool is safe for concurrent use.
type Pool struct {
	pool *sync.Pool
}

// NewPool creates an empty decoder pool.
func NewPool() *Pool {
	return &Pool{pool: &sync.Pool{}}
}

// Get returns a decoder reading compressed data from r.
// The caller must call the returned release function when done, on every
// exit path. If an error is returned, no release function needs to be called.
func (p *Pool) Get(r io.Reader) (io.Reader, func(), error) {
	if p == nil || p.pool == nil {
		dec := flate.NewReader(r)
		return dec, func() { _ = dec.Close() }, nil
	}

	value := p.pool.Get()
	if value == nil {
		return p.wrap(flate.NewReader(r))
	}

	dec, ok := value.(io.ReadCloser)
	if !ok {
		return p.wrap(flate.NewReader(r))
	}
	resetter, ok := dec.(flate.Resetter)
	if !ok {
		return p.wrap(flate.NewReader(r))
	}
	if err := resetter.Reset(r, nil); err != nil {
		_ = dec.Close()
		return nil, nil, err
	}
	return p.wrap(dec)
}

// wrap pairs dec with a release function that returns it to the pool.
func (p *Pool) wrap(dec io.ReadCloser) (io.Reader, func(), error) {
	return dec, func() {
		_ = dec.Close() //nolint:errcheck // decoder state is reset on next Get
		if resetter, ok := dec.(flate.Resetter); ok {
			// Drop the reference to the source before pooling.
			_ = resetter.Reset(emptyReader{}, nil) //nolint:errcheck // reset to an empty source cannot fail
		}
		p.pool.Put(dec)
	}, nil
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

func (emptyReader) ReadByte() (byte, error) { return 0, io.EOF }
