package cloak

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ErrPoolExhausted is returned when a removal would leave the
// user-agent pool empty. The pool must hold at least one agent at all
// times.
var ErrPoolExhausted = errors.New("cloak: user-agent pool must not become empty")

// Administrative mutations apply to the in-memory state first and then
// attempt to persist. A persistence failure is reported to the caller
// but the in-memory change stays applied; there is no rollback and no
// partially visible state.

// AddUserAgent adds ua to the pool. Duplicates are ignored.
func (p *Policy) AddUserAgent(ctx context.Context, ua string) error {
	if ua == "" {
		return errors.New("cloak: user agent must not be empty")
	}
	if !slices.Contains(p.agents, ua) {
		p.agents = append(p.agents, ua)
	}
	return p.persistPool(ctx)
}

// RemoveUserAgent removes ua from the pool. Removing the last agent is
// refused with ErrPoolExhausted.
func (p *Policy) RemoveUserAgent(ctx context.Context, ua string) error {
	i := slices.Index(p.agents, ua)
	if i < 0 {
		return nil
	}
	if len(p.agents) == 1 {
		return ErrPoolExhausted
	}
	p.agents = slices.Delete(slices.Clone(p.agents), i, i+1)
	return p.persistPool(ctx)
}

// AddProxy adds proxy to the proxy pool. Duplicates are ignored.
func (p *Policy) AddProxy(ctx context.Context, proxy Proxy) error {
	if proxy.Server == "" {
		return errors.New("cloak: proxy server must not be empty")
	}
	if !slices.Contains(p.proxies, proxy) {
		p.proxies = append(p.proxies, proxy)
	}
	return p.persistPool(ctx)
}

// RemoveProxy removes proxy from the pool. An empty proxy pool is fine;
// it means direct connections.
func (p *Policy) RemoveProxy(ctx context.Context, proxy Proxy) error {
	i := slices.Index(p.proxies, proxy)
	if i < 0 {
		return nil
	}
	p.proxies = slices.Delete(slices.Clone(p.proxies), i, i+1)
	return p.persistPool(ctx)
}

// SetDelayPolicy replaces the delay policy.
func (p *Policy) SetDelayPolicy(ctx context.Context, d DelayPolicy) error {
	if d.Min < 0 || d.Max < d.Min {
		return fmt.Errorf("cloak: invalid delay policy: min=%s max=%s", d.Min, d.Max)
	}
	p.delay = d
	if p.store == nil {
		return nil
	}
	if err := p.store.SaveDelayPolicy(ctx, d); err != nil {
		return fmt.Errorf("cloak: persist delay policy: %w", err)
	}
	return nil
}

func (p *Policy) persistPool(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	pool := Pool{UserAgents: slices.Clone(p.agents), Proxies: slices.Clone(p.proxies)}
	if err := p.store.SaveIdentityPool(ctx, pool); err != nil {
		return fmt.Errorf("cloak: persist identity pool: %w", err)
	}
	return nil
}
