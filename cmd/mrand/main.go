// Command mrand opens a mersenned stream, draws one value and prints it.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/moontrade/mersenne/app"
	"github.com/moontrade/mersenne/client"
	"github.com/moontrade/mersenne/dist"
	"github.com/moontrade/mersenne/logger"
)

func main() {
	var (
		addr      = flag.String("a", "127.0.0.1:11001", "server address")
		auth      = flag.String("auth", "", "auth token")
		op        = flag.String("op", "int", "int, float, double, coinflip, gaussian or chisquare")
		precision = flag.Uint("precision", 64, "bytes per gaussian term")
		dof       = flag.Uint("dof", 4, "chi-square degrees of freedom")
		seed      = flag.String("seed", "", "start a private session with this seed")
		count     = flag.Int("n", 0, "summarize this many draws instead of printing one")
		timeout   = flag.Duration("timeout", 5*time.Second, "network timeout")
	)
	flag.Parse()

	kind, err := dist.ParseKind(*op)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -op: %s\n", *op)
		os.Exit(1)
	}
	params, err := kindParams(kind, *precision, *dof)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	conn, err := client.Dial(*addr, client.WithAuth(*auth), client.WithTimeout(*timeout))
	if err != nil {
		logger.Fatal(err, "dial", *addr)
	}
	defer conn.Close()
	if *seed != "" {
		v, err := app.ParseSeed(*seed)
		if err != nil {
			logger.Fatal(err, "seed", *seed)
		}
		if err := conn.Private(v); err != nil {
			logger.Fatal(err)
		}
	}

	if *count > 0 {
		sum, err := conn.Summary(kind, *count, params...)
		if err != nil {
			logger.Fatal(err)
		}
		data, err := sum.MarshalJSON()
		if err != nil {
			logger.Fatal(err, "summary")
		}
		fmt.Printf("success! summary=%s\n", data)
		return
	}

	var num interface{}
	switch kind {
	case dist.KindInt:
		num, err = conn.Int()
	case dist.KindFloat:
		num, err = conn.Float()
	case dist.KindDouble:
		num, err = conn.Double()
	case dist.KindCoinFlip:
		num, err = conn.CoinFlip()
	case dist.KindGaussian:
		num, err = conn.Gaussian(params[0])
	case dist.KindChiSquare:
		num, err = conn.ChiSquare(params[0], params[1])
	}
	if err != nil {
		logger.Fatal(err, "op", kind.String())
	}
	fmt.Printf("success! num=%v\n", num)
}

// kindParams returns the draw parameters of kind from the -precision and -dof
// flags.
func kindParams(kind dist.Kind, precision, dof uint) ([]uint32, error) {
	if precision > dist.MaxPrecision {
		return nil, fmt.Errorf("invalid -precision: %d", precision)
	}
	if dof > math.MaxUint32 {
		return nil, fmt.Errorf("invalid -dof: %d", dof)
	}
	switch kind {
	case dist.KindGaussian:
		return []uint32{uint32(precision)}, nil
	case dist.KindChiSquare:
		return []uint32{uint32(dof), uint32(precision)}, nil
	}
	return nil, nil
}
