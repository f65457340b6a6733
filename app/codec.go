package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DataDog/zstd"
	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses snapshot payloads.
type Codec byte

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecLZ4
	CodecZstd
)

var codecNames = [...]string{"none", "snappy", "lz4", "zstd"}

func (c Codec) String() string {
	if int(c) >= len(codecNames) {
		return fmt.Sprintf("codec(%d)", byte(c))
	}
	return codecNames[c]
}

// ParseCodec parses a codec name as used by the --snapshot-codec flag.
func ParseCodec(name string) (Codec, error) {
	name = strings.ToLower(name)
	for i, n := range codecNames {
		if n == name {
			return Codec(i), nil
		}
	}
	return 0, fmt.Errorf("invalid snapshot codec: %s", name)
}

const (
	lz4Raw        = 0
	lz4Compressed = 1
)

// Encode compresses src.
func (c Codec) Encode(src []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return append([]byte(nil), src...), nil
	case CodecSnappy:
		return snappy.Encode(nil, src), nil
	case CodecLZ4:
		dst := make([]byte, 1+lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, dst[1:], nil)
		if err != nil {
			return nil, err
		}
		if n == 0 || n >= len(src) {
			dst = append(dst[:1], src...)
			dst[0] = lz4Raw
			return dst, nil
		}
		dst[0] = lz4Compressed
		return dst[:1+n], nil
	case CodecZstd:
		return zstd.Compress(nil, src)
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalid, c)
}

// Decode decompresses src. size is the expected decoded length.
func (c Codec) Decode(src []byte, size int) ([]byte, error) {
	var dst []byte
	var err error
	switch c {
	case CodecNone:
		dst = src
	case CodecSnappy:
		dst, err = snappy.Decode(nil, src)
	case CodecLZ4:
		if len(src) == 0 {
			return nil, ErrCorrupt
		}
		switch src[0] {
		case lz4Raw:
			dst = src[1:]
		case lz4Compressed:
			dst = make([]byte, size)
			var n int
			if n, err = lz4.UncompressBlock(src[1:], dst); err == nil {
				dst = dst[:n]
			}
		default:
			return nil, ErrCorrupt
		}
	case CodecZstd:
		dst, err = zstd.Decompress(nil, src)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalid, c)
	}
	if err != nil {
		return nil, err
	}
	if len(dst) != size {
		return nil, errors.New("snapshot payload size mismatch")
	}
	return dst, nil
}
