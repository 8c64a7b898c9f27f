package strategies

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"mercator-hq/prism/internal/routing"
	"mercator-hq/prism/pkg/providers"
	"mercator-hq/prism/pkg/registry"
	pkgrouting "mercator-hq/prism/pkg/routing"
)

func snap(id string, mutate ...func(*registry.Snapshot)) registry.Snapshot {
	s := registry.Snapshot{
		Descriptor: registry.Descriptor{ID: id, Kind: providers.KindSDK, Client: "echo"},
		Enabled:    true,
		Status:     registry.StatusHealthy,
	}
	for _, m := range mutate {
		m(&s)
	}
	return s
}

func ids(snaps []registry.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID()
	}
	return out
}

func newRegistry(t *testing.T, names ...string) *registry.Registry {
	t.Helper()
	r := registry.New(registry.Options{})
	for _, id := range names {
		d := registry.Descriptor{ID: id, Kind: providers.KindSDK, Client: "echo"}
		if err := r.Register(d, routing.NewFakeProvider(id)); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}
	return r
}

func TestNew(t *testing.T) {
	r := newRegistry(t)
	for _, name := range Names() {
		s, err := New(name, r, "")
		if err != nil {
			t.Errorf("New(%q) error = %v", name, err)
			continue
		}
		if s.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, s.Name())
		}
	}

	if s, _ := New("", r, ""); s.Name() != NameRoundRobin {
		t.Errorf("default strategy = %q", s.Name())
	}

	tests := []struct {
		name, secondary string
	}{
		{"sticky", ""},
		{NameHealthPriority, "nope"},
		{NameHealthPriority, NameHealthPriority},
	}
	for _, tt := range tests {
		_, err := New(tt.name, r, tt.secondary)
		if !errors.Is(err, pkgrouting.ErrInvalidStrategy) {
			t.Errorf("New(%q, %q) error = %v, want ErrInvalidStrategy", tt.name, tt.secondary, err)
		}
	}
}

func TestRoundRobin_Rotation(t *testing.T) {
	r := newRegistry(t)
	s := NewRoundRobin(r)
	candidates := []registry.Snapshot{snap("a"), snap("b"), snap("c")}

	want := [][]string{
		{"a", "b", "c"},
		{"b", "c", "a"},
		{"c", "a", "b"},
		{"a", "b", "c"},
	}
	for i, w := range want {
		if got := ids(s.Order(candidates)); !slices.Equal(got, w) {
			t.Errorf("call %d = %v, want %v", i, got, w)
		}
	}
}

func TestRoundRobin_Fairness(t *testing.T) {
	tests := []struct {
		name       string
		n, m       int
		concurrent bool
	}{
		{"even split", 3, 300, false},
		{"uneven split", 3, 100, false},
		{"fewer selections than providers", 5, 3, false},
		{"concurrent", 4, 1001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			s := NewRoundRobin(r)

			candidates := make([]registry.Snapshot, tt.n)
			for i := range candidates {
				candidates[i] = snap(string(rune('a' + i)))
			}

			var mu sync.Mutex
			counts := make(map[string]int)
			pick := func() {
				first := s.Order(candidates)[0].ID()
				mu.Lock()
				counts[first]++
				mu.Unlock()
			}

			if tt.concurrent {
				var wg sync.WaitGroup
				for range tt.m {
					wg.Add(1)
					go func() {
						defer wg.Done()
						pick()
					}()
				}
				wg.Wait()
			} else {
				for range tt.m {
					pick()
				}
			}

			lo, hi := tt.m/tt.n, (tt.m+tt.n-1)/tt.n
			total := 0
			for _, c := range candidates {
				got := counts[c.ID()]
				total += got
				if got < lo || got > hi {
					t.Errorf("%s chosen %d times, want between %d and %d", c.ID(), got, lo, hi)
				}
			}
			if total != tt.m {
				t.Errorf("total = %d, want %d", total, tt.m)
			}
		})
	}
}

func TestRoundRobin_SetsRotateIndependently(t *testing.T) {
	r := newRegistry(t)
	s := NewRoundRobin(r)
	ab := []registry.Snapshot{snap("a"), snap("b")}
	xy := []registry.Snapshot{snap("x"), snap("y")}

	s.Order(ab)
	if got := s.Order(xy)[0].ID(); got != "x" {
		t.Errorf("first pick of a new set = %s, want x", got)
	}
	if got := s.Order(ab)[0].ID(); got != "b" {
		t.Errorf("second pick of a,b = %s, want b", got)
	}
}

func TestLeastInFlight(t *testing.T) {
	inFlight := func(n int64) func(*registry.Snapshot) {
		return func(s *registry.Snapshot) { s.InFlight = n }
	}
	candidates := []registry.Snapshot{
		snap("c", inFlight(2)),
		snap("b", inFlight(0)),
		snap("a", inFlight(2)),
		snap("d", inFlight(1)),
	}

	got := ids(NewLeastInFlight().Order(candidates))
	if want := []string{"b", "d", "a", "c"}; !slices.Equal(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
	if candidates[0].ID() != "c" {
		t.Error("Order() must not modify its input")
	}
}

func TestLowestLatency(t *testing.T) {
	latency := func(ms float64) func(*registry.Snapshot) {
		return func(s *registry.Snapshot) { s.LatencyMS, s.Measured = ms, true }
	}
	candidates := []registry.Snapshot{
		snap("slow", latency(900)),
		snap("fast", latency(40)),
		snap("new"),
		snap("also-fast", latency(40)),
	}

	got := ids(NewLowestLatency().Order(candidates))
	if want := []string{"new", "also-fast", "fast", "slow"}; !slices.Equal(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
}

func TestWeightedRandom(t *testing.T) {
	weight := func(w int) func(*registry.Snapshot) {
		return func(s *registry.Snapshot) { s.Descriptor.Weight = w }
	}

	t.Run("permutation", func(t *testing.T) {
		s := NewWeightedRandom(rand.New(rand.NewPCG(1, 2)))
		candidates := []registry.Snapshot{snap("a"), snap("b", weight(5)), snap("c", weight(-3))}
		for range 50 {
			got := ids(s.Order(candidates))
			slices.Sort(got)
			if !slices.Equal(got, []string{"a", "b", "c"}) {
				t.Fatalf("Order() = %v, not a permutation", got)
			}
		}
	})

	t.Run("proportional", func(t *testing.T) {
		s := NewWeightedRandom(rand.New(rand.NewPCG(7, 7)))
		candidates := []registry.Snapshot{snap("heavy", weight(9)), snap("light", weight(1))}

		const draws = 10000
		heavy := 0
		for range draws {
			if s.Order(candidates)[0].ID() == "heavy" {
				heavy++
			}
		}
		if ratio := float64(heavy) / draws; ratio < 0.85 || ratio > 0.95 {
			t.Errorf("heavy first in %.2f of draws, want about 0.9", ratio)
		}
	})

	t.Run("zero weight counts as one", func(t *testing.T) {
		s := NewWeightedRandom(rand.New(rand.NewPCG(3, 4)))
		candidates := []registry.Snapshot{snap("a", weight(0)), snap("b", weight(-1))}
		seen := map[string]bool{}
		for range 200 {
			seen[s.Order(candidates)[0].ID()] = true
		}
		if !seen["a"] || !seen["b"] {
			t.Errorf("seen = %v, want both providers chosen", seen)
		}
	})
}

func TestHealthPriority(t *testing.T) {
	status := func(st registry.Status) func(*registry.Snapshot) {
		return func(s *registry.Snapshot) { s.Status = st }
	}
	candidates := []registry.Snapshot{
		snap("u1", status(registry.StatusUnhealthy)),
		snap("d1", status(registry.StatusDegraded)),
		snap("h2", status(registry.StatusHealthy)),
		snap("n1", status(registry.StatusUnknown)),
		snap("h1", status(registry.StatusHealthy)),
	}

	t.Run("stable without secondary", func(t *testing.T) {
		got := ids(NewHealthPriority(nil).Order(candidates))
		if want := []string{"h2", "h1", "n1", "d1", "u1"}; !slices.Equal(got, want) {
			t.Errorf("Order() = %v, want %v", got, want)
		}
	})

	t.Run("keeps secondary order within a group", func(t *testing.T) {
		got := ids(NewHealthPriority(NewLeastInFlight()).Order(candidates))
		if want := []string{"h1", "h2", "n1", "d1", "u1"}; !slices.Equal(got, want) {
			t.Errorf("Order() = %v, want %v", got, want)
		}
	})
}

func TestBalancer_Plan(t *testing.T) {
	r := newRegistry(t, "a", "b", "c")
	b := pkgrouting.NewBalancer(r, NewRoundRobin(r), 2)

	req := routing.ChatRequest("gpt-4o")
	plan, err := b.Plan(req, "")
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got := plan.IDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("IDs() = %v, want [a b] (capped at 2)", got)
	}

	plan, _ = b.Plan(req, "")
	if plan.IDs()[0] != "b" {
		t.Errorf("second plan starts with %s, want b", plan.IDs()[0])
	}

	t.Run("explicit", func(t *testing.T) {
		r.RecordProbe("c", errors.New("x"))
		r.RecordProbe("c", errors.New("x"))
		r.RecordProbe("c", errors.New("x"))

		plan, err := b.Plan(req, "c")
		if err != nil {
			t.Fatalf("Plan(explicit) error = %v", err)
		}
		if !plan.Explicit || !slices.Equal(plan.IDs(), []string{"c"}) {
			t.Errorf("plan = %+v", plan)
		}
	})

	t.Run("explicit unknown", func(t *testing.T) {
		_, err := b.Plan(req, "zzz")
		if !errors.Is(err, pkgrouting.ErrProviderNotFound) {
			t.Errorf("Plan() error = %v, want ErrProviderNotFound", err)
		}
	})

	t.Run("no providers for model", func(t *testing.T) {
		empty := pkgrouting.NewBalancer(newRegistry(t), NewLeastInFlight(), 0)
		_, err := empty.Plan(req, "")
		var npe *pkgrouting.NoProvidersError
		if !errors.As(err, &npe) || npe.Model != "gpt-4o" {
			t.Errorf("Plan() error = %v", err)
		}
	})

	stats := b.Stats().Snapshot()
	if stats.ExplicitCount != 1 || stats.Errors != 1 || stats.StrategyUseCount[NameRoundRobin] != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
