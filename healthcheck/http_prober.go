package healthcheck

import (
	"context"
	"net/http"
)

// HTTPProber probes a node by GET-ing its /status endpoint and treating
// any 2xx response as healthy. Grounded on the 5-second-timeout,
// context-scoped GET pattern in
// MyGateway/adapters/discoverer.go:GetInstances.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates an HTTPProber using client, which the caller
// configures. main constructs a dedicated *http.Client for probing and
// passes it in; there is no HTTP client factory.
func NewHTTPProber(client *http.Client) *HTTPProber {
	return &HTTPProber{client: client}
}

func (p *HTTPProber) Probe(ctx context.Context, nodeURI string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nodeURI+"/status", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
