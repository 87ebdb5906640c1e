package browser

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ProxyConfig is one upstream proxy
type ProxyConfig struct {
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
}

// ParseProxy accepts "host:port" or "scheme://[user:pass@]host:port"
func ParseProxy(raw string) (ProxyConfig, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyConfig{}, fmt.Errorf("invalid proxy %q: %w", raw, err)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return ProxyConfig{}, fmt.Errorf("invalid proxy %q: host and port required", raw)
	}

	p := ProxyConfig{Scheme: u.Scheme, Host: u.Hostname(), Port: u.Port()}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}

// Server is the value handed to --proxy-server
func (p ProxyConfig) Server() string {
	return fmt.Sprintf("%s://%s:%s", p.Scheme, p.Host, p.Port)
}

// HasAuth reports whether the proxy needs credentials
func (p ProxyConfig) HasAuth() bool {
	return p.Username != ""
}

// String hides the password
func (p ProxyConfig) String() string {
	if p.HasAuth() {
		return fmt.Sprintf("%s://%s:***@%s:%s", p.Scheme, p.Username, p.Host, p.Port)
	}
	return p.Server()
}

// ProxySource hands out the proxy for the next session
type ProxySource interface {
	Next() (ProxyConfig, bool)
}

// RoundRobinProxies cycles through its list
type RoundRobinProxies struct {
	mu      sync.Mutex
	proxies []ProxyConfig
	next    int
}

func NewRoundRobinProxies(proxies []ProxyConfig) *RoundRobinProxies {
	return &RoundRobinProxies{proxies: proxies}
}

func (r *RoundRobinProxies) Next() (ProxyConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return ProxyConfig{}, false
	}
	p := r.proxies[r.next%len(r.proxies)]
	r.next++
	return p, true
}

// RandomProxies picks uniformly
type RandomProxies struct {
	mu      sync.Mutex
	proxies []ProxyConfig
	rng     *rand.Rand
}

func NewRandomProxies(proxies []ProxyConfig, rng *rand.Rand) *RandomProxies {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomProxies{proxies: proxies, rng: rng}
}

func (r *RandomProxies) Next() (ProxyConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return ProxyConfig{}, false
	}
	return r.proxies[r.rng.Intn(len(r.proxies))], true
}

// NewProxySource parses servers and builds a source for mode
// ("round_robin" or "random"). No servers yields a nil source.
func NewProxySource(servers []string, mode string) (ProxySource, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	proxies := make([]ProxyConfig, 0, len(servers))
	for _, s := range servers {
		p, err := ParseProxy(s)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
	}
	switch mode {
	case "", "round_robin":
		return NewRoundRobinProxies(proxies), nil
	case "random":
		return NewRandomProxies(proxies, nil), nil
	default:
		return nil, fmt.Errorf("unknown proxy mode %q", mode)
	}
}
