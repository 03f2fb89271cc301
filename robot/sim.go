package robot

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/armkit/armkit/kinematics"
)

// Sim is the simulated backend: it integrates commanded joint velocities
// over elapsed time and answers configuration reads from the result. Time
// comes from an injected clock so tests can drive it deterministically.
type Sim struct {
	mu         sync.Mutex
	chain      *kinematics.Chain
	clock      clock.Clock
	logger     golog.Logger
	q          []float64
	qdot       []float64
	lastUpdate time.Time
}

// NewSim creates a simulated robot at the given initial configuration.
func NewSim(chain *kinematics.Chain, initial []float64, clk clock.Clock, logger golog.Logger) (*Sim, error) {
	if err := validateVector(initial, chain.DoF()); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Sim{
		chain:      chain,
		clock:      clk,
		logger:     logger,
		q:          append([]float64{}, initial...),
		qdot:       make([]float64, chain.DoF()),
		lastUpdate: clk.Now(),
	}, nil
}

// advance integrates the current velocity command up to now. Callers must
// hold the mutex.
func (s *Sim) advance() {
	now := s.clock.Now()
	dt := now.Sub(s.lastUpdate).Seconds()
	s.lastUpdate = now
	if dt <= 0 {
		return
	}
	for i := range s.q {
		s.q[i] += s.qdot[i] * dt
	}
}

// Configuration returns the simulated joint configuration.
func (s *Sim) Configuration(ctx context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return append([]float64{}, s.q...), nil
}

// SetJointVelocities integrates the previous command up to now, then replaces
// it.
func (s *Sim) SetJointVelocities(ctx context.Context, qdot []float64) error {
	if err := validateVector(qdot, s.chain.DoF()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	copy(s.qdot, qdot)
	return nil
}

// ForwardKinematics delegates to the kinematic chain model.
func (s *Sim) ForwardKinematics(q []float64) (r3.Vector, error) {
	return s.chain.ForwardKinematics(q)
}

// Close zeroes the velocity command.
func (s *Sim) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	for i := range s.qdot {
		s.qdot[i] = 0
	}
	return nil
}
