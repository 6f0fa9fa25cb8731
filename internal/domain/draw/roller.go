// Package draw produces bounded random draws for rolloff contests.
//
// # Determinism
//
// The local roller is deterministic with respect to its source: given the
// same seed it produces the same sequence of totals. Production callers use
// the default time-seeded source; tests inject a fixed seed or source.
package draw

import (
	"math/rand"
	"sync"
	"time"

	"github.com/okian/rolloff/internal/domain/model"
)

// MinFaces is the smallest legal die size; a one-sided die cannot
// discriminate between entrants.
const MinFaces = 2

// Roller produces one draw for a given die size.
type Roller interface {
	// Roll returns a draw with Total in [1, faces].
	// Returns ErrInvalidFaces when faces < MinFaces.
	Roll(faces int) (model.Draw, error)
}

// LocalRoller implements Roller with an in-process PRNG. Safe for
// concurrent use.
type LocalRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Option applies a configuration option to the LocalRoller.
type Option func(*LocalRoller)

// WithSeed makes the roller deterministic with the given seed.
func WithSeed(seed int64) Option {
	return func(r *LocalRoller) {
		r.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // draws are not security sensitive
	}
}

// WithSource replaces the roller's random source entirely.
func WithSource(src rand.Source) Option {
	return func(r *LocalRoller) {
		if src != nil {
			r.rng = rand.New(src) //nolint:gosec // draws are not security sensitive
		}
	}
}

// NewLocalRoller creates a roller seeded from the wall clock unless a seed
// or source option overrides it.
func NewLocalRoller(opts ...Option) *LocalRoller {
	r := &LocalRoller{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // draws are not security sensitive
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Roll returns one draw with Total uniformly distributed in [1, faces].
func (r *LocalRoller) Roll(faces int) (model.Draw, error) {
	if faces < MinFaces {
		return model.Draw{}, ErrInvalidFaces
	}
	r.mu.Lock()
	total := 1 + r.rng.Intn(faces)
	r.mu.Unlock()
	return model.Draw{Faces: faces, Total: total}, nil
}
