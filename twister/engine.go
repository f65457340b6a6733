// Package twister implements a seeded, tempered twisted generalized feedback
// shift register that produces 32-bit words.
//
// The regeneration step deliberately leaves the last slot of the state vector
// untouched, so the output sequence differs from textbook MT19937 once the
// first regeneration has cycled through index 622. Every 624th word is the
// tempered seeding value of that slot, for the lifetime of a seed.
//
// The generator is not suitable as a security primitive.
package twister

import (
	"encoding/binary"
	"errors"
)

const (
	// N is the number of words in the state vector.
	N = 624
	// M is the recurrence offset of the twist step.
	M = 397

	seedMultiplier = 0x6C078965
	matrixA        = 0x9908B0DF
	upperMask      = 0x80000000
	lowerMask      = 0x7FFFFFFF
	temperingB     = 0x9D2C5680
	temperingC     = 0xEFC60000

	// DefaultSeed is the seed a new device or server starts from.
	DefaultSeed uint32 = 0xDEADBEEF
)

// ErrInvalidState is returned when restoring from a malformed state.
var ErrInvalidState = errors.New("invalid engine state")

// Engine holds the state vector and read cursor. It is not safe for
// concurrent use; see Locked.
type Engine struct {
	words  [N]uint32
	cursor int
	seed   uint32
	draws  uint64
	regens uint64
}

// New returns an engine seeded with seed.
func New(seed uint32) *Engine {
	e := new(Engine)
	e.Seed(seed)
	return e
}

// Seed (re)initializes the state vector. The next call to Next regenerates.
func (e *Engine) Seed(seed uint32) {
	e.words[0] = seed
	for i := 1; i < N; i++ {
		prev := e.words[i-1]
		e.words[i] = seedMultiplier*(prev^(prev>>30)) + uint32(i)
	}
	e.cursor = 0
	e.seed = seed
	e.draws = 0
	e.regens = 0
}

// regenerate runs the twist over indexes 0 through N-2.
func (e *Engine) regenerate() {
	w := &e.words
	for i := 0; i < N-1; i++ {
		y := (w[i] & upperMask) + (w[(i+1)%N] & lowerMask)
		w[i] = w[(i+M)%N] ^ (y >> 1)
		if y&1 != 0 {
			w[i] ^= matrixA
		}
	}
	e.regens++
}

func temper(w uint32) uint32 {
	w ^= w >> 11
	w ^= (w << 7) & temperingB
	w ^= (w << 15) & temperingC
	w ^= w >> 18
	return w
}

// Next returns the next tempered word.
func (e *Engine) Next() uint32 {
	if e.cursor == 0 {
		e.regenerate()
	}
	w := temper(e.words[e.cursor])
	e.cursor = (e.cursor + 1) % N
	e.draws++
	return w
}

// Uint64 combines two consecutive words, the first in the high half.
func (e *Engine) Uint64() uint64 {
	return uint64(e.Next())<<32 | uint64(e.Next())
}

// SeedValue returns the seed the engine was last initialized with.
func (e *Engine) SeedValue() uint32 { return e.seed }

// Cursor returns the index of the next word to emit.
func (e *Engine) Cursor() int { return e.cursor }

// Draws returns the number of words emitted since the last seed.
func (e *Engine) Draws() uint64 { return e.draws }

// Regenerations returns the number of twists since the last seed.
func (e *Engine) Regenerations() uint64 { return e.regens }

// Fresh reports whether the next draw regenerates the state vector.
func (e *Engine) Fresh() bool { return e.cursor == 0 }

// State is a copy of everything needed to resume an engine.
type State struct {
	Seed          uint32
	Cursor        int
	Draws         uint64
	Regenerations uint64
	Words         [N]uint32
}

// State returns a copy of the engine state.
func (e *Engine) State() State {
	return State{
		Seed:          e.seed,
		Cursor:        e.cursor,
		Draws:         e.draws,
		Regenerations: e.regens,
		Words:         e.words,
	}
}

// Restore replaces the engine state. The engine is left untouched when the
// state is invalid.
func (e *Engine) Restore(s State) error {
	if s.Cursor < 0 || s.Cursor >= N {
		return ErrInvalidState
	}
	e.seed = s.Seed
	e.cursor = s.Cursor
	e.draws = s.Draws
	e.regens = s.Regenerations
	e.words = s.Words
	return nil
}

const (
	stateMagic = "MTSTATE1"
	stateSize  = 8 + 4 + 4 + 8 + 8 + N*4
)

// MarshalBinary encodes the engine state as little-endian:
// magic, seed, cursor, draws, regenerations, words.
func (e *Engine) MarshalBinary() ([]byte, error) {
	b := make([]byte, stateSize)
	copy(b, stateMagic)
	binary.LittleEndian.PutUint32(b[8:], e.seed)
	binary.LittleEndian.PutUint32(b[12:], uint32(e.cursor))
	binary.LittleEndian.PutUint64(b[16:], e.draws)
	binary.LittleEndian.PutUint64(b[24:], e.regens)
	p := b[32:]
	for i := 0; i < N; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], e.words[i])
	}
	return b, nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (e *Engine) UnmarshalBinary(data []byte) error {
	if len(data) != stateSize || string(data[:8]) != stateMagic {
		return ErrInvalidState
	}
	var s State
	s.Seed = binary.LittleEndian.Uint32(data[8:])
	s.Cursor = int(binary.LittleEndian.Uint32(data[12:]))
	s.Draws = binary.LittleEndian.Uint64(data[16:])
	s.Regenerations = binary.LittleEndian.Uint64(data[24:])
	p := data[32:]
	for i := 0; i < N; i++ {
		s.Words[i] = binary.LittleEndian.Uint32(p[i*4:])
	}
	return e.Restore(s)
}
