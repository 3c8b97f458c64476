package cloak

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fixedClock is a manually advanced clock for deterministic pacing tests.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestPolicy(t *testing.T, delay DelayPolicy) (*Policy, *fixedClock, *[]time.Duration) {
	t.Helper()
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	p := NewPolicy(Config{
		Delay: delay,
		now:   clock.now,
		sleep: func(d time.Duration) { slept = append(slept, d) },
	})
	return p, clock, &slept
}

func TestShouldDelay_Lifecycle(t *testing.T) {
	p, clock, _ := newTestPolicy(t, DelayPolicy{Min: 2 * time.Second, Max: 2 * time.Second})

	if p.ShouldDelay() {
		t.Fatal("ShouldDelay true before any request was recorded")
	}

	p.Gate()

	clock.advance(500 * time.Millisecond)
	if !p.ShouldDelay() {
		t.Fatal("ShouldDelay false 0.5s after a recorded request")
	}

	clock.advance(1500 * time.Millisecond)
	if p.ShouldDelay() {
		t.Fatal("ShouldDelay true after the full minimum spacing elapsed")
	}
}

func TestShouldDelay_ConsultsMinOnly(t *testing.T) {
	p, clock, _ := newTestPolicy(t, DelayPolicy{Min: time.Second, Max: time.Hour})

	p.Gate()
	clock.advance(1500 * time.Millisecond)
	if p.ShouldDelay() {
		t.Fatal("ShouldDelay consulted Max; only Min bounds the spacing window")
	}
}

func TestGate_SleepsOnlyWhenDue(t *testing.T) {
	p, clock, slept := newTestPolicy(t, DelayPolicy{Min: 2 * time.Second, Max: 2 * time.Second})

	p.Gate()
	if len(*slept) != 0 {
		t.Fatalf("first gate slept %v; must pass immediately", (*slept)[0])
	}

	clock.advance(time.Second)
	p.Gate()
	if len(*slept) != 1 || (*slept)[0] != 2*time.Second {
		t.Fatalf("second gate slept %v, want exactly [2s]", *slept)
	}

	// The timestamp is re-recorded on every passage.
	clock.advance(5 * time.Second)
	p.Gate()
	if len(*slept) != 1 {
		t.Fatal("gate slept although the spacing window had elapsed")
	}
}

func TestComputeDelay(t *testing.T) {
	fixed := NewPolicy(Config{Delay: DelayPolicy{Min: 2 * time.Second, Max: 9 * time.Second}})
	if d := fixed.ComputeDelay(); d != 2*time.Second {
		t.Fatalf("non-randomized ComputeDelay = %v, want Min", d)
	}

	randomized := NewPolicy(Config{Delay: DelayPolicy{Min: time.Second, Max: 3 * time.Second, Randomize: true}})
	for i := 0; i < 100; i++ {
		d := randomized.ComputeDelay()
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("randomized ComputeDelay = %v, outside [1s, 3s]", d)
		}
	}
}

func TestRandomIdentity_Distribution(t *testing.T) {
	p := NewPolicy(Config{UserAgents: []string{"agent-a", "agent-b", "agent-c"}})

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := p.RandomIdentity()
		seen[id.UserAgent] = struct{}{}
		if id.Proxy != nil {
			t.Fatal("identity carries a proxy although the proxy pool is empty")
		}
	}
	if len(seen) < 2 {
		t.Fatalf("100 draws over 3 agents produced %d distinct values", len(seen))
	}
}

func TestRandomIdentity_ProxyDraw(t *testing.T) {
	p := NewPolicy(Config{
		UserAgents: []string{"agent-a"},
		Proxies:    []Proxy{{Server: "http://10.0.0.1:8080", Bypass: "localhost"}},
	})
	id := p.RandomIdentity()
	if id.Proxy == nil || id.Proxy.Server != "http://10.0.0.1:8080" {
		t.Fatalf("proxy draw = %+v, want the single pool entry", id.Proxy)
	}

	// Mutating the copy must not touch the pool.
	id.Proxy.Server = "mutated"
	if p.proxies[0].Server != "http://10.0.0.1:8080" {
		t.Fatal("identity proxy aliases pool state")
	}
}

func TestDefaultPool(t *testing.T) {
	p := NewPolicy(Config{})
	if len(p.agents) == 0 {
		t.Fatal("policy constructed with an empty user-agent pool")
	}
	if p.delay.Min != time.Second || p.delay.Max != 3*time.Second || !p.delay.Randomize {
		t.Fatalf("default delay policy = %+v", p.delay)
	}
}

// memStore records saves and can be told to fail.
type memStore struct {
	pool     Pool
	poolOK   bool
	delay    DelayPolicy
	delayOK  bool
	saveErr  error
	saves    int
}

func (s *memStore) LoadIdentityPool(ctx context.Context) (Pool, bool, error) {
	return s.pool, s.poolOK, nil
}

func (s *memStore) SaveIdentityPool(ctx context.Context, pool Pool) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pool, s.poolOK = pool, true
	return nil
}

func (s *memStore) LoadDelayPolicy(ctx context.Context) (DelayPolicy, bool, error) {
	return s.delay, s.delayOK, nil
}

func (s *memStore) SaveDelayPolicy(ctx context.Context, d DelayPolicy) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.delay, s.delayOK = d, true
	return nil
}

func TestAdmin_PersistsThroughStore(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	p := NewPolicy(Config{Store: st, UserAgents: []string{"agent-a"}})

	if err := p.AddUserAgent(ctx, "agent-b"); err != nil {
		t.Fatal(err)
	}
	if len(st.pool.UserAgents) != 2 {
		t.Fatalf("persisted pool has %d agents, want 2", len(st.pool.UserAgents))
	}

	if err := p.SetDelayPolicy(ctx, DelayPolicy{Min: 4 * time.Second, Max: 8 * time.Second, Randomize: true}); err != nil {
		t.Fatal(err)
	}
	if st.delay.Min != 4*time.Second {
		t.Fatalf("persisted delay min = %v", st.delay.Min)
	}
}

func TestAdmin_NoRollbackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	st := &memStore{saveErr: errors.New("disk full")}
	p := NewPolicy(Config{Store: st, UserAgents: []string{"agent-a"}})

	err := p.AddUserAgent(ctx, "agent-b")
	if err == nil {
		t.Fatal("persist failure was not reported")
	}
	// The in-memory change stays applied.
	if len(p.agents) != 2 {
		t.Fatalf("in-memory pool rolled back: %v", p.agents)
	}
}

func TestRemoveUserAgent_GuardsLastEntry(t *testing.T) {
	ctx := context.Background()
	p := NewPolicy(Config{UserAgents: []string{"agent-a"}})

	if err := p.RemoveUserAgent(ctx, "agent-a"); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("got %v, want ErrPoolExhausted", err)
	}
	if err := p.RemoveUserAgent(ctx, "not-in-pool"); err != nil {
		t.Fatalf("removing an absent agent errored: %v", err)
	}
}

func TestLoad_ReplacesStateFromStore(t *testing.T) {
	ctx := context.Background()
	st := &memStore{
		pool:    Pool{UserAgents: []string{"stored-agent"}, Proxies: []Proxy{{Server: "http://10.1.1.1:3128"}}},
		poolOK:  true,
		delay:   DelayPolicy{Min: 7 * time.Second, Max: 7 * time.Second},
		delayOK: true,
	}
	p := NewPolicy(Config{Store: st})

	if err := p.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if len(p.agents) != 1 || p.agents[0] != "stored-agent" {
		t.Fatalf("agents after Load = %v", p.agents)
	}
	if p.delay.Min != 7*time.Second {
		t.Fatalf("delay after Load = %+v", p.delay)
	}
}
