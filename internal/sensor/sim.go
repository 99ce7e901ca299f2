package sensor

import (
	"math/rand"
	"sync"
)

// Sim is a bounded random walk standing in for hardware on hosts without
// sensors attached.
type Sim struct {
	mu    sync.Mutex
	rng   *rand.Rand
	value int
	min   int
	max   int
	step  int
}

// NewSim starts a walk at start within [min, max], moving at most step per read.
func NewSim(seed int64, start, min, max, step int) *Sim {
	if start < min {
		start = min
	}
	if start > max {
		start = max
	}
	return &Sim{
		rng:   rand.New(rand.NewSource(seed)),
		value: start,
		min:   min,
		max:   max,
		step:  step,
	}
}

func (s *Sim) Read() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.value
	if s.step > 0 {
		s.value += s.rng.Intn(2*s.step+1) - s.step
		if s.value < s.min {
			s.value = s.min
		}
		if s.value > s.max {
			s.value = s.max
		}
	}
	return uint16(v), nil
}
