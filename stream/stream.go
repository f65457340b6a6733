// Package stream turns 32-bit word draws into byte streams and defines the
// "read n bytes" capability every consumer of the generator depends on.
package stream

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrInvalidLength is returned for a zero or negative length request.
var ErrInvalidLength = errors.New("invalid length")

// ErrStreamUnavailable is returned when the byte source cannot supply bytes,
// for example a closed handle or an unreachable server.
var ErrStreamUnavailable = errors.New("stream unavailable")

// WordSource produces tempered 32-bit words.
type WordSource interface {
	Next() uint32
}

// Source is the "read n bytes" contract.
type Source interface {
	Bytes(n int) ([]byte, error)
}

// Fill returns length bytes drawn from w. Full words are written
// little-endian in stream order. When length is not a multiple of four, one
// more word is drawn and only its low-order length%4 bytes are kept.
func Fill(w WordSource, length int) ([]byte, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	b := make([]byte, length)
	fill(w, b)
	return b, nil
}

func fill(w WordSource, p []byte) {
	for len(p) >= 4 {
		binary.LittleEndian.PutUint32(p, w.Next())
		p = p[4:]
	}
	if len(p) > 0 {
		var last [4]byte
		binary.LittleEndian.PutUint32(last[:], w.Next())
		copy(p, last[:len(p)])
	}
}

type engineSource struct {
	w WordSource
}

// NewEngineSource returns a Source that fills directly from w.
func NewEngineSource(w WordSource) Source {
	return &engineSource{w: w}
}

func (s *engineSource) Bytes(n int) ([]byte, error) {
	return Fill(s.w, n)
}

type reader struct {
	src Source
}

// Reader adapts src to an io.Reader. Each Read requests exactly len(p)
// bytes.
func Reader(src Source) io.Reader {
	return &reader{src: src}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, err := r.src.Bytes(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, b), nil
}
