package thermal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const DEFAULT_SAMPLE_INTERVAL = 2 * time.Second

// Sampler reads a temperature source on a fixed cadence and feeds the
// log buffer. It owns the most recent reading for display surfaces.
type Sampler struct {
	src      Source
	buffer   *LogBuffer
	interval time.Duration
	log      *logrus.Entry

	mu   sync.Mutex
	last *Reading

	samples uint64 // atomic lifetime counters
	skipped uint64
}

// NewSampler wires a sampler. A nil src means discovery failed at
// startup; the loop still runs so the vehicle keeps its cadence, every
// cycle simply short circuits.
func NewSampler(src Source, buffer *LogBuffer, interval time.Duration, log *logrus.Entry) *Sampler {
	if interval <= 0 {
		interval = DEFAULT_SAMPLE_INTERVAL
	}
	return &Sampler{src: src, buffer: buffer, interval: interval, log: log}
}

// Run samples until ctx is cancelled. A failed cycle is logged and
// skipped; nothing short of cancellation stops the loop.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("temperature sampling stopped")
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	if s.src == nil {
		atomic.AddUint64(&s.skipped, 1)
		return
	}

	c, f, err := ReadTemp(s.src)
	if err != nil {
		atomic.AddUint64(&s.skipped, 1)
		s.log.WithError(err).Warn("temperature cycle skipped")
		return
	}

	r := Reading{Timestamp: time.Now(), Celsius: c, Fahrenheit: f}

	s.mu.Lock()
	s.last = &r
	s.mu.Unlock()

	atomic.AddUint64(&s.samples, 1)

	if status, err := s.buffer.Append(r); err != nil {
		s.log.WithError(err).Error("temperature log flush failed")
	} else if status != "" {
		s.log.Info(status)
	}
}

// Last returns the most recent reading. ok is false until the first
// successful cycle.
func (s *Sampler) Last() (r Reading, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		return r, false
	}
	return *s.last, true
}

// HasSensor reports whether discovery found a device at startup.
func (s *Sampler) HasSensor() bool {
	return s.src != nil
}

// Counters reports lifetime sample and skip totals.
func (s *Sampler) Counters() (samples, skipped uint64) {
	return atomic.LoadUint64(&s.samples), atomic.LoadUint64(&s.skipped)
}
