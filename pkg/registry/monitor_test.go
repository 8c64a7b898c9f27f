package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/prism/internal/routing"
)

func TestNewMonitor(t *testing.T) {
	r := New(Options{})

	if _, err := NewMonitor(r, MonitorConfig{Schedule: "not a schedule"}); err == nil {
		t.Error("NewMonitor() should reject an invalid schedule")
	}

	m, err := NewMonitor(r, MonitorConfig{})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	if m.config.Schedule != "@every 60s" || m.config.Timeout != 5*time.Second {
		t.Errorf("defaults = %+v", m.config)
	}
}

func TestMonitor_ProbeOnce(t *testing.T) {
	r := New(Options{})
	up := routing.NewFakeProvider("up")
	down := routing.NewFakeProvider("down")
	down.SetHealthError(errors.New("refused"))
	off := routing.NewFakeProvider("off")

	_ = r.Register(sdkDesc("up"), up)
	_ = r.Register(sdkDesc("down"), down)
	_ = r.Register(sdkDesc("off"), off)
	_ = r.Deregister("off")

	m, err := NewMonitor(r, MonitorConfig{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	for range 3 {
		m.ProbeOnce(context.Background())
	}

	if got := status(t, r, "up"); got != StatusHealthy {
		t.Errorf("up = %s, want healthy", got)
	}
	if got := status(t, r, "down"); got != StatusUnhealthy {
		t.Errorf("down = %s, want unhealthy", got)
	}
	if off.HealthChecks() != 0 {
		t.Error("disabled providers must not be probed")
	}

	down.SetHealthError(nil)
	m.ProbeOnce(context.Background())
	if got := status(t, r, "down"); got != StatusHealthy {
		t.Errorf("down after one success = %s, want healthy", got)
	}
}

type slowProbe struct {
	*routing.FakeProvider
}

func (s slowProbe) HealthCheck(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	r := New(Options{})
	_ = r.Register(sdkDesc("slow"), slowProbe{routing.NewFakeProvider("slow")})

	m, _ := NewMonitor(r, MonitorConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	m.ProbeOnce(context.Background())
	if time.Since(start) > time.Second {
		t.Error("probe was not bounded by the timeout")
	}

	s, _ := r.Snapshot("slow")
	if s.Status != StatusDegraded || s.ConsecutiveFailures != 1 {
		t.Errorf("after timeout = %s/%d", s.Status, s.ConsecutiveFailures)
	}
}

func TestMonitor_StartStop(t *testing.T) {
	r := New(Options{})
	fake := routing.NewFakeProvider("a")
	_ = r.Register(sdkDesc("a"), fake)

	m, err := NewMonitor(r, MonitorConfig{Schedule: "@every 1s"})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if m.NextRun() == nil {
		t.Error("NextRun() = nil while running")
	}

	deadline := time.Now().Add(3 * time.Second)
	for fake.HealthChecks() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if fake.HealthChecks() == 0 {
		t.Fatal("scheduled probe never ran")
	}

	m.Stop()
	m.Stop()
	if m.NextRun() != nil {
		t.Error("NextRun() should be nil after Stop")
	}
}
