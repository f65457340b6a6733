package app

import (
	"bytes"
	"testing"

	"github.com/moontrade/mersenne/twister"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededEngineState(t testing.TB, seed uint32, draws int) []byte {
	e := twister.New(seed)
	for i := 0; i < draws; i++ {
		e.Next()
	}
	state, err := e.MarshalBinary()
	require.NoError(t, err)
	return state
}

func TestCodecRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"engine":  seededEngineState(t, 0xDEADBEEF, 1000),
		"fresh":   seededEngineState(t, 1, 0),
		"zeros":   make([]byte, 4096),
		"single":  {0x7f},
		"pattern": bytes.Repeat([]byte("mersenne"), 300),
	}
	for _, c := range []Codec{CodecNone, CodecSnappy, CodecLZ4, CodecZstd} {
		for name, src := range inputs {
			enc, err := c.Encode(src)
			require.NoError(t, err, "%s/%s", c, name)
			dec, err := c.Decode(enc, len(src))
			require.NoError(t, err, "%s/%s", c, name)
			assert.Equal(t, src, dec, "%s/%s", c, name)
		}
	}
}

func TestCodecCompresses(t *testing.T) {
	src := make([]byte, 8192)
	for _, c := range []Codec{CodecSnappy, CodecLZ4, CodecZstd} {
		enc, err := c.Encode(src)
		require.NoError(t, err)
		assert.Less(t, len(enc), len(src)/4, c.String())
	}
}

func TestCodecSizeMismatch(t *testing.T) {
	src := seededEngineState(t, 7, 3)
	for _, c := range []Codec{CodecNone, CodecSnappy, CodecLZ4, CodecZstd} {
		enc, err := c.Encode(src)
		require.NoError(t, err)
		_, err = c.Decode(enc, len(src)+1)
		assert.Error(t, err, c.String())
	}
	_, err := CodecLZ4.Decode([]byte{9, 1, 2}, 3)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseCodec(t *testing.T) {
	for i, name := range codecNames {
		c, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, Codec(i), c)
		assert.Equal(t, name, c.String())
	}
	c, err := ParseCodec("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CodecZstd, c)
	_, err = ParseCodec("gzip")
	assert.Error(t, err)
	_, err = Codec(42).Encode([]byte{1})
	assert.ErrorIs(t, err, ErrInvalid)
}

func BenchmarkCodec(b *testing.B) {
	src := seededEngineState(b, 0xDEADBEEF, 5000)
	for _, c := range []Codec{CodecSnappy, CodecLZ4, CodecZstd} {
		c := c
		b.Run(c.String(), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(src)))
			for i := 0; i < b.N; i++ {
				enc, _ := c.Encode(src)
				c.Decode(enc, len(src))
			}
		})
	}
}
