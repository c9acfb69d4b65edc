package cluster

import (
	"errors"
	"math/bits"

	"github.com/bountymxe/mxe-go/internal/wire"
)

// ErrOverflow is returned by an evaluator whose result does not fit in 64 bits.
var ErrOverflow = errors.New("cluster: integer overflow")

// Evaluator computes a circuit's plaintext outputs.
type Evaluator func(inputs []uint64) ([]uint64, error)

// Circuit is an instruction the cluster can execute.
type Circuit struct {
	Name        string
	InputArity  int
	OutputArity int
	Eval        Evaluator
}

// Offset returns the computation-definition offset clients route with.
func (c Circuit) Offset() uint32 {
	return wire.CompDefOffset(c.Name)
}

// Bounty rates.
const (
	EffortRate  = 1_000_000
	QualityRate = 500_000
)

// Bounty returns the compute_bounty circuit:
// bounty = effort*EffortRate + quality*QualityRate.
func Bounty() Circuit {
	return Circuit{
		Name:        "compute_bounty",
		InputArity:  2,
		OutputArity: 1,
		Eval: func(in []uint64) ([]uint64, error) {
			hi1, a := bits.Mul64(in[0], EffortRate)
			hi2, b := bits.Mul64(in[1], QualityRate)
			sum, carry := bits.Add64(a, b, 0)
			if hi1 != 0 || hi2 != 0 || carry != 0 {
				return nil, ErrOverflow
			}
			return []uint64{sum}, nil
		},
	}
}

// Sum returns a circuit of the given input arity that adds its inputs.
func Sum(name string, arity int) Circuit {
	return Circuit{
		Name:        name,
		InputArity:  arity,
		OutputArity: 1,
		Eval: func(in []uint64) ([]uint64, error) {
			var total uint64
			for _, v := range in {
				var carry uint64
				total, carry = bits.Add64(total, v, 0)
				if carry != 0 {
					return nil, ErrOverflow
				}
			}
			return []uint64{total}, nil
		},
	}
}
