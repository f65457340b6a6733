package twister

import (
	"math/rand"
	"sync"
)

// Locked is an Engine shared between goroutines. Every draw and every seed
// runs inside one mutex scope.
type Locked struct {
	mu sync.Mutex
	e  *Engine
}

// NewLocked returns a shared engine seeded with seed.
func NewLocked(seed uint32) *Locked {
	return &Locked{e: New(seed)}
}

// Next returns the next tempered word.
func (l *Locked) Next() uint32 {
	l.mu.Lock()
	w := l.e.Next()
	l.mu.Unlock()
	return w
}

// Seed re-initializes the shared engine.
func (l *Locked) Seed(seed uint32) {
	l.mu.Lock()
	l.e.Seed(seed)
	l.mu.Unlock()
}

// Do runs fn with exclusive access to the engine, for operations that need
// several consecutive words.
func (l *Locked) Do(fn func(e *Engine)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.e)
}

// State returns a copy of the shared engine state.
func (l *Locked) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.e.State()
}

// mathSource adapts an Engine to math/rand.
type mathSource struct{ e *Engine }

// Make sure mathSource is a rand.Source64
var _ rand.Source64 = mathSource{}

// RandSource returns a math/rand source that draws from e. Seeding the
// source truncates the seed to 32 bits.
func (e *Engine) RandSource() rand.Source64 { return mathSource{e} }

func (s mathSource) Uint64() uint64  { return s.e.Uint64() }
func (s mathSource) Int63() int64    { return int64(s.e.Uint64() >> 1) }
func (s mathSource) Seed(seed int64) { s.e.Seed(uint32(seed)) }
