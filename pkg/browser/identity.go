package browser

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"igharvest/pkg/config"
)

// Identity is the user agent and window size a session presents
type Identity struct {
	UserAgent string
	Width     int
	Height    int
}

// Viewport renders the window size as "WxH"
func (i Identity) Viewport() string {
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

type viewport struct {
	w, h int
}

// IdentityPool draws identities uniformly at random
type IdentityPool struct {
	userAgents []string
	viewports  []viewport

	mu  sync.Mutex
	rng *rand.Rand
}

// NewIdentityPool parses "WxH" viewports; both pools must be non-empty
func NewIdentityPool(userAgents, viewports []string, rng *rand.Rand) (*IdentityPool, error) {
	if len(userAgents) == 0 {
		return nil, fmt.Errorf("identity pool: no user agents")
	}
	if len(viewports) == 0 {
		return nil, fmt.Errorf("identity pool: no viewports")
	}

	pool := &IdentityPool{userAgents: append([]string(nil), userAgents...), rng: rng}
	for _, v := range viewports {
		w, h, err := config.ParseViewport(v)
		if err != nil {
			return nil, fmt.Errorf("identity pool: %w", err)
		}
		pool.viewports = append(pool.viewports, viewport{w: w, h: h})
	}
	if pool.rng == nil {
		pool.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return pool, nil
}

// Next returns a random identity
func (p *IdentityPool) Next() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.viewports[p.rng.Intn(len(p.viewports))]
	return Identity{
		UserAgent: p.userAgents[p.rng.Intn(len(p.userAgents))],
		Width:     v.w,
		Height:    v.h,
	}
}
