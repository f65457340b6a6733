package app

import (
	"strconv"

	"github.com/mailru/easyjson"
	"github.com/moontrade/mersenne/dist"
	"github.com/moontrade/mersenne/stream"
	"github.com/tidwall/redcon"
)

const (
	// maxReadLength bounds READ replies.
	maxReadLength = 64 << 20
	// maxPrecision bounds the bytes one GAUSSIAN or CHISQUARE term consumes.
	maxPrecision = 1 << 20
	// maxDrawBytes bounds the bytes one CHISQUARE or SUMMARY command consumes.
	maxDrawBytes = 256 << 20
)

func drawSampler(um Machine) (*dist.Sampler, error) {
	s := um.Sampler()
	if s == nil {
		return nil, ErrInvalid
	}
	return s, nil
}

func parseParam(arg string) (uint32, error) {
	v, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, ErrSyntax
	}
	return uint32(v), nil
}

func checkPrecision(precision uint32) error {
	if precision > maxPrecision {
		return dist.ErrInvalidParameter
	}
	return nil
}

func formatFloat(v float64, bitSize int) string {
	return strconv.FormatFloat(v, 'g', -1, bitSize)
}

// SEED value
// help: re-seeds the engine. Value is decimal or 0x prefixed hex.
func cmdSEED(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	seed, err := ParseSeed(args[1])
	if err != nil {
		return nil, err
	}
	e := um.Engine()
	if e == nil {
		return nil, ErrInvalid
	}
	e.Seed(seed)
	return redcon.SimpleString("OK"), nil
}

// READ length
// help: returns length bytes from the stream; []byte
func cmdREAD(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, ErrSyntax
	}
	if n > maxReadLength {
		return nil, stream.ErrInvalidLength
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	return s.Bytes(n)
}

// WORD
// help: returns one tempered word; int
func cmdWORD(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	e := um.Engine()
	if e == nil {
		return nil, ErrInvalid
	}
	return redcon.SimpleInt(e.Next()), nil
}

// INT
// help: returns a signed 32-bit integer; int
func cmdINT(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	v, err := s.Int()
	if err != nil {
		return nil, err
	}
	return redcon.SimpleInt(v), nil
}

// FLOAT
// help: returns a single-precision value in [0,1); string
func cmdFLOAT(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	v, err := s.Float()
	if err != nil {
		return nil, err
	}
	return formatFloat(float64(v), 32), nil
}

// DOUBLE
// help: returns a double-precision value in [0,1); string
func cmdDOUBLE(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	v, err := s.Double()
	if err != nil {
		return nil, err
	}
	return formatFloat(v, 64), nil
}

// COINFLIP
// help: returns 1 for heads, 0 for tails; int
func cmdCOINFLIP(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 1 {
		return nil, ErrWrongNumArgs
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	heads, err := s.CoinFlip()
	if err != nil {
		return nil, err
	}
	if heads {
		return redcon.SimpleInt(1), nil
	}
	return redcon.SimpleInt(0), nil
}

// GAUSSIAN precision
// help: returns an approximate normal sample in [-0.5,0.5]; string
func cmdGAUSSIAN(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 2 {
		return nil, ErrWrongNumArgs
	}
	precision, err := parseParam(args[1])
	if err != nil {
		return nil, err
	}
	if err := checkPrecision(precision); err != nil {
		return nil, err
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	v, err := s.Gaussian(precision)
	if err != nil {
		return nil, err
	}
	return formatFloat(v, 64), nil
}

// CHISQUARE dof precision
// help: returns an approximate chi-square sample; string
func cmdCHISQUARE(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) != 3 {
		return nil, ErrWrongNumArgs
	}
	dof, err := parseParam(args[1])
	if err != nil {
		return nil, err
	}
	precision, err := parseParam(args[2])
	if err != nil {
		return nil, err
	}
	if err := checkPrecision(precision); err != nil {
		return nil, err
	}
	if uint64(dof)*uint64(precision) > maxDrawBytes {
		return nil, dist.ErrInvalidParameter
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	v, err := s.ChiSquare(dof, precision)
	if err != nil {
		return nil, err
	}
	return formatFloat(v, 64), nil
}

// kindCost returns the bytes one sample of kind consumes.
func kindCost(kind dist.Kind, params []uint32) uint64 {
	switch kind {
	case dist.KindDouble:
		return 8
	case dist.KindGaussian:
		return uint64(params[0])
	case dist.KindChiSquare:
		return uint64(params[0]) * uint64(params[1])
	}
	return 4
}

// SUMMARY kind count [params...]
// help: draws count samples of kind (int, float, double, coinflip,
//       gaussian precision, chisquare dof precision) and returns their
//       statistics; json
func cmdSUMMARY(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) < 3 {
		return nil, ErrWrongNumArgs
	}
	kind, err := dist.ParseKind(args[1])
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, ErrSyntax
	}
	if len(args)-3 != kind.Params() {
		return nil, ErrWrongNumArgs
	}
	params := make([]uint32, 0, len(args)-3)
	for _, arg := range args[3:] {
		p, err := parseParam(arg)
		if err != nil {
			return nil, err
		}
		if err := checkPrecision(p); err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	if cost := kindCost(kind, params); count > 0 && cost > 0 &&
		uint64(count) > maxDrawBytes/cost {
		return nil, dist.ErrInvalidParameter
	}
	s, err := drawSampler(um)
	if err != nil {
		return nil, err
	}
	sum, err := s.Summarize(kind, count, params...)
	if err != nil {
		return nil, err
	}
	return easyjson.Marshal(sum)
}
