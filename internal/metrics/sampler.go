package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one resource reading of the server process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// Collect reads CPU, memory and thread usage for pid.
func Collect(ctx context.Context, pid int) (Sample, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Sample{}, err
	}
	s := Sample{PID: int32(pid), Timestamp: time.Now()}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		s.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		s.MemoryRSS = mem.RSS
		s.MemoryVMS = mem.VMS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		s.NumThreads = n
	}
	return s, nil
}

// Sampler periodically collects resources for one PID and publishes them as gauges.
type Sampler struct {
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	latest Sample
}

func NewSampler(interval time.Duration, log *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sampler{interval: interval, log: log}
}

// Track starts sampling pid, replacing any previous target.
func (s *Sampler) Track(pid int) {
	s.Untrack()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel, s.done = cancel, done
	s.mu.Unlock()
	go s.loop(ctx, pid, done)
}

// Untrack stops sampling and zeroes the gauges.
func (s *Sampler) Untrack() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.latest = Sample{}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	resetResources()
}

// Latest returns the most recent sample, or the zero Sample when not tracking.
func (s *Sampler) Latest() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Sampler) loop(ctx context.Context, pid int, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		sample, err := Collect(ctx, pid)
		if err != nil {
			s.log.Debug("resource sample failed", "pid", pid, "error", err)
		} else {
			s.mu.Lock()
			if s.done == done {
				s.latest = sample
				setResources(sample)
			}
			s.mu.Unlock()
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
