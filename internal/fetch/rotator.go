package fetch

import (
	"fmt"
	"net/url"
	"sync"
)

var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

// Rotator hands out user agents and proxies in round-robin order. Its state
// belongs to a single Client.
type Rotator struct {
	mu        sync.Mutex
	agents    []string
	proxies   []*url.URL
	nextAgent int
	nextProxy int
}

func NewRotator(agents, proxies []string) (*Rotator, error) {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	r := &Rotator{agents: append([]string(nil), agents...)}
	for _, p := range proxies {
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", p)
		}
		r.proxies = append(r.proxies, u)
	}
	return r, nil
}

// Next returns the next identity. proxy is nil when no proxies are configured.
func (r *Rotator) Next() (agent string, proxy *url.URL) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent = r.agents[r.nextAgent]
	r.nextAgent = (r.nextAgent + 1) % len(r.agents)

	if len(r.proxies) > 0 {
		proxy = r.proxies[r.nextProxy]
		r.nextProxy = (r.nextProxy + 1) % len(r.proxies)
	}
	return agent, proxy
}
