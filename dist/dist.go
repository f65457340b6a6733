// Package dist derives distribution samples from a byte stream.
//
// Every operation is a pure function of the bytes it consumes; the Sampler
// keeps no state of its own.
package dist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/moontrade/mersenne/stream"
)

// ErrInvalidParameter is returned for a zero precision or zero degrees of
// freedom, and for a precision above MaxPrecision.
var ErrInvalidParameter = errors.New("invalid parameter")

// MaxPrecision is the largest precision that fits one read on every platform.
const MaxPrecision = math.MaxInt32

const (
	// CoinBit is the bit of a raw int inspected by CoinFlip.
	CoinBit = 17

	float32One = 0x3F800000         // 1.0f: sign 0, exponent 127
	float64One = 0x3FF0000000000000 // 1.0: sign 0, exponent 1023
)

// Sampler draws samples from a Source.
type Sampler struct {
	src stream.Source
}

// New returns a sampler reading from src.
func New(src stream.Source) *Sampler {
	return &Sampler{src: src}
}

func (s *Sampler) read(n int) ([]byte, error) {
	b, err := s.src.Bytes(n)
	if err != nil {
		if errors.Is(err, stream.ErrInvalidLength) ||
			errors.Is(err, stream.ErrStreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", stream.ErrStreamUnavailable, err)
	}
	if len(b) != n {
		return nil, fmt.Errorf("%w: short read %d of %d",
			stream.ErrStreamUnavailable, len(b), n)
	}
	return b, nil
}

// Bytes passes n bytes through unchanged.
func (s *Sampler) Bytes(n int) ([]byte, error) {
	return s.read(n)
}

// Int reinterprets four little-endian bytes as a signed integer.
func (s *Sampler) Int() (int32, error) {
	b, err := s.read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// CoinFlip draws one Int and reports whether bit 17 is set.
func (s *Sampler) CoinFlip() (bool, error) {
	v, err := s.Int()
	if err != nil {
		return false, err
	}
	return v&(1<<CoinBit) != 0, nil
}

// Float returns a single-precision value uniform over [0,1). The top 23 bits
// of a four byte draw become the mantissa of a value in [1,2), which is then
// shifted down by one.
func (s *Sampler) Float() (float32, error) {
	b, err := s.read(4)
	if err != nil {
		return 0, err
	}
	mantissa := binary.LittleEndian.Uint32(b) >> (32 - 23)
	return math.Float32frombits(float32One|mantissa) - 1, nil
}

// Double returns a double-precision value uniform over [0,1), built the same
// way as Float from the top 52 bits of an eight byte draw.
func (s *Sampler) Double() (float64, error) {
	b, err := s.read(8)
	if err != nil {
		return 0, err
	}
	mantissa := binary.LittleEndian.Uint64(b) >> (64 - 52)
	return math.Float64frombits(float64One|mantissa) - 1, nil
}

// Gaussian approximates a normal sample by counting set bits across
// precision bytes, each bit a fair Bernoulli trial, and centering the
// fraction: count/(precision*8) - 0.5. The result lies in [-0.5, 0.5] with
// variance 1/(4*precision*8).
func (s *Sampler) Gaussian(precision uint32) (float64, error) {
	if precision == 0 || precision > MaxPrecision {
		return 0, ErrInvalidParameter
	}
	b, err := s.read(int(precision))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, c := range b {
		count += bits.OnesCount8(c)
	}
	return float64(count)/float64(uint64(precision)*8) - 0.5, nil
}

// ChiSquare sums dof squared Gaussian draws.
func (s *Sampler) ChiSquare(dof, precision uint32) (float64, error) {
	if dof == 0 || precision == 0 || precision > MaxPrecision {
		return 0, ErrInvalidParameter
	}
	var total float64
	for i := uint32(0); i < dof; i++ {
		g, err := s.Gaussian(precision)
		if err != nil {
			return 0, err
		}
		total += g * g
	}
	return total, nil
}
