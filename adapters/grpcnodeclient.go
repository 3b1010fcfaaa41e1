package adapters

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/graverr"
)

// GRPCNodeClient is an alternative nodehandle.NodeCreator for nodes that
// speak gRPC instead of HTTP, pooling one *grpc.ClientConn per node URI.
//
// Grounded on connectionPool.getOrCreateConnLocked in
// MyGateway/service/connection_pool.go: a mutex-guarded map of dialed
// connections, dialed lazily and kept for reuse. The request/response
// wire shape is google.golang.org/protobuf's well-known Struct type
// rather than a generated stub, since no .proto contract for a node's
// session-creation RPC exists in this module's scope (spec.md §1 keeps
// the wire protocol an external collaborator); Struct lets
// domain.Capabilities cross the wire without inventing one.
type GRPCNodeClient struct {
	dialOpts []grpc.DialOption

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewGRPCNodeClient creates a pooled gRPC node client. dialOpts are
// appended to every dial (e.g. TLS credentials); when empty, dials are
// insecure, matching the teacher's test-harness dial pattern.
func NewGRPCNodeClient(dialOpts ...grpc.DialOption) *GRPCNodeClient {
	return &GRPCNodeClient{dialOpts: dialOpts, conns: make(map[string]*grpc.ClientConn)}
}

func (c *GRPCNodeClient) connFor(nodeURI string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[nodeURI]; ok {
		return conn, nil
	}
	opts := c.dialOpts
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(nodeURI, opts...)
	if err != nil {
		return nil, err
	}
	c.conns[nodeURI] = conn
	return conn, nil
}

// CreateSession invokes the node's CreateSession RPC, encoding caps as a
// protobuf Struct and expecting a Struct response carrying a
// "sessionId" string field.
func (c *GRPCNodeClient) CreateSession(ctx context.Context, nodeURI string, caps domain.Capabilities) (domain.SessionRecord, error) {
	conn, err := c.connFor(nodeURI)
	if err != nil {
		return domain.SessionRecord{}, graverr.NewSessionNotCreated("failed to dial node", err)
	}

	req, err := structpb.NewStruct(caps)
	if err != nil {
		return domain.SessionRecord{}, graverr.NewInternal("failed to encode capabilities", err)
	}

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, "/selenium.grid.NodeService/CreateSession", req, resp); err != nil {
		return domain.SessionRecord{}, graverr.NewSessionNotCreated("node rejected session creation", err)
	}

	field, ok := resp.GetFields()["sessionId"]
	if !ok {
		return domain.SessionRecord{}, graverr.NewSessionNotCreated("node response missing sessionId", nil)
	}
	sessionID, err := uuid.Parse(field.GetStringValue())
	if err != nil {
		return domain.SessionRecord{}, graverr.NewSessionNotCreated("node returned invalid session id", err)
	}
	return domain.SessionRecord{SessionID: sessionID, URI: nodeURI, Capabilities: caps}, nil
}

// Close tears down every pooled connection. Safe to call once at
// shutdown; collects and returns the first error encountered.
func (c *GRPCNodeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for uri, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, uri)
	}
	return firstErr
}
