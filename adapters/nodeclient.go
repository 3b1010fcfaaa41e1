// Package adapters holds the clients that perform the actual remote
// "create session" call against a worker node (HTTPNodeClient and
// GRPCNodeClient, both implementations of nodehandle.NodeCreator, the
// "remote-node client implementation" spec.md §1 calls out as an
// external collaborator), plus RedisStatusCache. The core only depends
// on the NodeCreator interface.
//
// Grounded on the 5s-timeout, context.WithTimeout-per-call pattern of
// MyGateway/adapters/discoverer.go.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/moneytech/selenium/domain"
)

// HTTPNodeClient implements nodehandle.NodeCreator against a node's
// POST /session endpoint.
type HTTPNodeClient struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPNodeClient creates a node client using client for transport and
// timeout as the per-call deadline. main constructs the *http.Client and
// passes it in; one client serves every node. There is no HTTP client
// factory, and this client is not the one the health prober uses.
func NewHTTPNodeClient(client *http.Client, timeout time.Duration) *HTTPNodeClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPNodeClient{client: client, timeout: timeout}
}

type createSessionRequest struct {
	Capabilities domain.Capabilities `json:"capabilities"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// CreateSession POSTs caps to nodeURI+"/session" and parses the
// resulting session id. Any non-2xx response or body that fails to
// decode is surfaced as a plain error for the caller (nodehandle.
// Reservation.Finalize) to fold into SESSION_NOT_CREATED.
func (c *HTTPNodeClient) CreateSession(ctx context.Context, nodeURI string, caps domain.Capabilities) (domain.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(createSessionRequest{Capabilities: caps})
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("marshal create-session request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURI+"/session", bytes.NewReader(body))
	if err != nil {
		return domain.SessionRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.SessionRecord{}, fmt.Errorf("node returned %d: %s", resp.StatusCode, string(respBody))
	}
	var parsed createSessionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("decode create-session response: %w", err)
	}
	sessionID, err := uuid.Parse(parsed.SessionID)
	if err != nil {
		return domain.SessionRecord{}, fmt.Errorf("node returned invalid session id: %w", err)
	}
	return domain.SessionRecord{SessionID: sessionID, URI: nodeURI, Capabilities: caps}, nil
}
