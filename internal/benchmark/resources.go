package benchmark

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// Usage is the process resource consumption over one measured interval.
type Usage struct {
	CPUSeconds float64 `json:"cpu_seconds"`
	PeakRSS    uint64  `json:"peak_rss_bytes"`
}

// monitor samples this process's CPU time and resident set size.
type monitor struct {
	process  *process.Process
	interval time.Duration

	mu       sync.Mutex
	startCPU float64
	peakRSS  uint64
	stop     chan struct{}
	done     chan struct{}
}

func newMonitor(interval time.Duration) *monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("Resource sampling unavailable")
		return &monitor{interval: interval}
	}
	return &monitor{process: proc, interval: interval}
}

// Start begins a measurement.
func (m *monitor) Start() {
	if m.process == nil {
		return
	}
	m.mu.Lock()
	m.startCPU = m.cpuSeconds()
	m.peakRSS = 0
	m.mu.Unlock()
	m.sample()

	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop ends the measurement and returns the usage since Start.
func (m *monitor) Stop() Usage {
	if m.process == nil {
		return Usage{}
	}
	close(m.stop)
	<-m.done
	m.sample()

	m.mu.Lock()
	defer m.mu.Unlock()
	return Usage{
		CPUSeconds: m.cpuSeconds() - m.startCPU,
		PeakRSS:    m.peakRSS,
	}
}

func (m *monitor) cpuSeconds() float64 {
	times, err := m.process.Times()
	if err != nil {
		return 0
	}
	return times.User + times.System
}

func (m *monitor) sample() {
	info, err := m.process.MemoryInfo()
	if err != nil {
		return
	}
	m.mu.Lock()
	m.peakRSS = max(m.peakRSS, info.RSS)
	m.mu.Unlock()
}
