package profiling

import "testing"

func TestStartWithEmptyAddrIsANoOp(t *testing.T) {
	p, err := Start("worker", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p != nil {
		t.Fatalf("expected a nil profiler when addr is empty, got %+v", p)
	}
}

func TestStopOnNilProfilerIsSafe(t *testing.T) {
	var p *Profiler
	if err := p.Stop(); err != nil {
		t.Errorf("Stop on nil *Profiler: %v", err)
	}
}

func TestHostnameNeverEmpty(t *testing.T) {
	if hostname() == "" {
		t.Error("hostname() returned an empty string")
	}
}
