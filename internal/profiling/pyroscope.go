// Package profiling wires grafana/pyroscope-go continuous profiling,
// adapted from infrastructure/profiling/pyroscope.go to take its address
// from WorkerConfig rather than bare environment variables.
package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// Profiler wraps a started pyroscope.Profiler.
type Profiler struct {
	profiler *pyroscope.Profiler
}

// Start begins continuous profiling for serviceName against addr. Returns
// (nil, nil) when addr is empty, so profiling stays opt-in.
func Start(serviceName, addr string) (*Profiler, error) {
	if addr == "" {
		return nil, nil
	}

	cfg := pyroscope.Config{
		ApplicationName: fmt.Sprintf("ares.%s", serviceName),
		ServerAddress:   addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"hostname":   hostname(),
			"go_version": runtime.Version(),
		},
	}

	p, err := pyroscope.Start(cfg)
	if err != nil {
		return nil, fmt.Errorf("start pyroscope profiler: %w", err)
	}
	return &Profiler{profiler: p}, nil
}

// Stop gracefully stops profiling. Safe to call on a nil *Profiler.
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
