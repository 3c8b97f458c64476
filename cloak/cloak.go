// Package cloak disguises drover's traffic pattern as human browsing.
// It owns the identity pool (user agents, proxies) and the inter-request
// delay policy, and exposes Gate, the single pacing point every
// network-facing action passes through.
//
// The pool and the delay policy are process-wide state shared by all
// concurrent runs. Random draws are read-only and admin writes are rare,
// so reads are deliberately not synchronized against writes: a run may
// observe a profile that is concurrently being removed. That weak
// consistency is part of the contract, not an oversight.
package cloak

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"
)

// Proxy is one upstream proxy endpoint with an optional bypass list.
type Proxy struct {
	Server string `json:"server" yaml:"server"`
	Bypass string `json:"bypass,omitempty" yaml:"bypass,omitempty"`
}

// Identity is a user-agent/proxy pairing presented to the target site.
// Identities are copied out of the pool and never mutated after being
// handed to a session.
type Identity struct {
	UserAgent string
	Proxy     *Proxy
}

// DelayPolicy governs inter-request pacing. Only Min is consulted when
// deciding whether a delay is due; Max only widens the randomized sleep.
// That asymmetry matches the observed production behaviour and is kept
// on purpose.
type DelayPolicy struct {
	Min       time.Duration `json:"min" yaml:"min"`
	Max       time.Duration `json:"max" yaml:"max"`
	Randomize bool          `json:"randomize" yaml:"randomize"`
}

// Pool is the persisted shape of the identity pool.
type Pool struct {
	UserAgents []string `json:"user_agents"`
	Proxies    []Proxy  `json:"proxies"`
}

// Store persists pool and delay-policy state. Loads that find nothing
// report ok=false rather than an error.
type Store interface {
	LoadIdentityPool(ctx context.Context) (Pool, bool, error)
	SaveIdentityPool(ctx context.Context, pool Pool) error
	LoadDelayPolicy(ctx context.Context) (DelayPolicy, bool, error)
	SaveDelayPolicy(ctx context.Context, policy DelayPolicy) error
}

// Config configures a Policy.
type Config struct {
	// Store persists administrative changes. Nil keeps state in memory.
	Store Store

	// UserAgents seeds the pool. Empty = built-in defaults. The pool is
	// never allowed to become empty afterwards.
	UserAgents []string

	// Proxies seeds the proxy pool. An empty pool means direct
	// connections.
	Proxies []Proxy

	// Delay is the initial pacing policy. Zero Min and Max fall back to
	// 1s–3s randomized.
	Delay DelayPolicy

	Logger *slog.Logger

	// now and sleep are test seams.
	now   func() time.Time
	sleep func(time.Duration)
}

func (c *Config) defaults() {
	if len(c.UserAgents) == 0 {
		c.UserAgents = slices.Clone(DefaultUserAgents)
	}
	if c.Delay.Min <= 0 && c.Delay.Max <= 0 {
		c.Delay = DelayPolicy{Min: time.Second, Max: 3 * time.Second, Randomize: true}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
}

// Policy is the anti-detection policy object. Create one per process
// and inject it into every executor.
type Policy struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	sleep  func(time.Duration)

	agents  []string
	proxies []Proxy
	delay   DelayPolicy

	// lastRequest is the process-wide instant of the previous gate
	// passage. Zero means no request has been gated yet.
	lastRequest time.Time
}

// NewPolicy creates a Policy from cfg.
func NewPolicy(cfg Config) *Policy {
	cfg.defaults()
	return &Policy{
		store:   cfg.Store,
		logger:  cfg.Logger,
		now:     cfg.now,
		sleep:   cfg.sleep,
		agents:  cfg.UserAgents,
		proxies: cfg.Proxies,
		delay:   cfg.Delay,
	}
}

// Load replaces in-memory state with whatever the store holds. Missing
// records keep the current values. Call once at startup, before runs.
func (p *Policy) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	pool, ok, err := p.store.LoadIdentityPool(ctx)
	if err != nil {
		return fmt.Errorf("cloak: load identity pool: %w", err)
	}
	if ok && len(pool.UserAgents) > 0 {
		p.agents = pool.UserAgents
		p.proxies = pool.Proxies
	}
	delay, ok, err := p.store.LoadDelayPolicy(ctx)
	if err != nil {
		return fmt.Errorf("cloak: load delay policy: %w", err)
	}
	if ok {
		p.delay = delay
	}
	return nil
}

// RandomIdentity draws a uniform identity from the pool. The proxy is
// nil whenever the proxy pool is empty.
func (p *Policy) RandomIdentity() Identity {
	id := Identity{UserAgent: p.agents[rand.IntN(len(p.agents))]}
	if len(p.proxies) > 0 {
		proxy := p.proxies[rand.IntN(len(p.proxies))]
		id.Proxy = &proxy
	}
	return id
}

// ComputeDelay returns the next sleep duration: uniform in [Min, Max]
// when randomized, otherwise exactly Min.
func (p *Policy) ComputeDelay() time.Duration {
	d := p.delay
	if !d.Randomize || d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rand.Float64()*float64(d.Max-d.Min))
}

// ShouldDelay reports whether the previous gated request is still within
// the minimum spacing window. It is false before the first request.
func (p *Policy) ShouldDelay() bool {
	if p.lastRequest.IsZero() {
		return false
	}
	return p.now().Sub(p.lastRequest) < p.delay.Min
}

// Gate is the mandatory pacing point before network-facing work. When
// the previous request is too recent it sleeps for ComputeDelay, then
// unconditionally records the request instant. Gate never fails and is
// not cancellable: once the sleep starts it runs to completion.
func (p *Policy) Gate() {
	if p.ShouldDelay() {
		d := p.ComputeDelay()
		p.logger.Debug("cloak: gating", "delay", d)
		p.sleep(d)
	}
	p.lastRequest = p.now()
}

// Delay returns the current delay policy.
func (p *Policy) Delay() DelayPolicy { return p.delay }

// UserAgents returns a copy of the user-agent pool.
func (p *Policy) UserAgents() []string { return slices.Clone(p.agents) }

// Proxies returns a copy of the proxy pool.
func (p *Policy) Proxies() []Proxy { return slices.Clone(p.proxies) }
