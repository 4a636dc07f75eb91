package ratelimit

import "net/http"

type gatedTransport struct {
	gate *Gate
	base http.RoundTripper
}

// Transport wraps base so that every request waits on the gate before dispatch.
func (g *Gate) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &gatedTransport{gate: g, base: base}
}

func (t *gatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.gate.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
