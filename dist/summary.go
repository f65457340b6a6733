package dist

import (
	"fmt"
	"math"
	"strings"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// Summary keeps running statistics over observed samples. Not threadsafe.
// Fields are expected to be read from but not written to.
type Summary struct {
	// Kind names what was sampled, if known.
	Kind string

	// Low and High are the lowest and highest observed values.
	Low, High float64

	// Recent is the last observed value.
	Recent float64

	// Count is the number of observed values.
	Count int64

	// Sum is the sum of all observed values.
	Sum float64

	mean, m2 float64
}

// Observe adds a value.
func (s *Summary) Observe(v float64) {
	if s.Count != 0 {
		if v < s.Low {
			s.Low = v
		}
		if v > s.High {
			s.High = v
		}
	} else {
		s.Low = v
		s.High = v
	}
	s.Recent = v
	s.Sum += v
	s.Count++
	delta := v - s.mean
	s.mean += delta / float64(s.Count)
	s.m2 += delta * (v - s.mean)
}

// Mean returns the sample mean, or zero with no observations.
func (s *Summary) Mean() float64 {
	return s.mean
}

// Variance returns the population variance of the observations.
func (s *Summary) Variance() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.m2 / float64(s.Count)
}

// StdDev is the square root of Variance.
func (s *Summary) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (s *Summary) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"kind":`)
	w.String(s.Kind)
	w.RawString(`,"count":`)
	w.Int64(s.Count)
	w.RawString(`,"sum":`)
	w.Float64(s.Sum)
	w.RawString(`,"low":`)
	w.Float64(s.Low)
	w.RawString(`,"high":`)
	w.Float64(s.High)
	w.RawString(`,"recent":`)
	w.Float64(s.Recent)
	w.RawString(`,"mean":`)
	w.Float64(s.mean)
	w.RawString(`,"variance":`)
	w.Float64(s.Variance())
	w.RawByte('}')
}

// MarshalJSON implements json.Marshaler.
func (s *Summary) MarshalJSON() ([]byte, error) {
	return easyjson.Marshal(s)
}

// UnmarshalEasyJSON implements easyjson.Unmarshaler. The variance is restored
// through the second moment so that Variance round trips.
func (s *Summary) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	var variance float64
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "kind":
			s.Kind = in.String()
		case "count":
			s.Count = in.Int64()
		case "sum":
			s.Sum = in.Float64()
		case "low":
			s.Low = in.Float64()
		case "high":
			s.High = in.Float64()
		case "recent":
			s.Recent = in.Float64()
		case "mean":
			s.mean = in.Float64()
		case "variance":
			variance = in.Float64()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
	s.m2 = variance * float64(s.Count)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Summary) UnmarshalJSON(data []byte) error {
	return easyjson.Unmarshal(data, s)
}

// Kind is a sample type that can be summarized.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindDouble
	KindCoinFlip
	KindGaussian
	KindChiSquare
)

var kindNames = [...]string{"int", "float", "double", "coinflip", "gaussian", "chisquare"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Params returns how many numeric parameters the kind takes.
func (k Kind) Params() int {
	switch k {
	case KindGaussian:
		return 1
	case KindChiSquare:
		return 2
	default:
		return 0
	}
}

// ParseKind parses a kind name, case insensitive.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(name)
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind '%s'", ErrInvalidParameter, name)
}

// Sample draws one value of the given kind. Gaussian takes precision,
// ChiSquare takes dof then precision.
func (s *Sampler) Sample(kind Kind, params ...uint32) (float64, error) {
	if len(params) != kind.Params() {
		return 0, ErrInvalidParameter
	}
	switch kind {
	case KindInt:
		v, err := s.Int()
		return float64(v), err
	case KindFloat:
		v, err := s.Float()
		return float64(v), err
	case KindDouble:
		return s.Double()
	case KindCoinFlip:
		v, err := s.CoinFlip()
		if v {
			return 1, err
		}
		return 0, err
	case KindGaussian:
		return s.Gaussian(params[0])
	case KindChiSquare:
		return s.ChiSquare(params[0], params[1])
	default:
		return 0, ErrInvalidParameter
	}
}

// Summarize draws n samples of kind and returns their statistics.
func (s *Sampler) Summarize(kind Kind, n int, params ...uint32) (*Summary, error) {
	if n <= 0 {
		return nil, ErrInvalidParameter
	}
	sum := &Summary{Kind: kind.String()}
	for i := 0; i < n; i++ {
		v, err := s.Sample(kind, params...)
		if err != nil {
			return nil, err
		}
		sum.Observe(v)
	}
	return sum, nil
}
