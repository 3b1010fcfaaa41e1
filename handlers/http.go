// Package handlers wires the Distributor's transport-agnostic operations
// (spec.md §6) onto concrete echo.HandlerFunc routes: POST /session,
// GET /status, POST /node, DELETE /node/{id}, POST /node/{id}/refresh.
//
// Grounded on MyDiscoverer/handlers/http.go: a thin HTTPServer struct
// wrapping the real dependency (cache there, *distributor.Distributor
// here), Bind-then-call-then-respond handlers, graverr/MyError-shaped
// failures returned straight to echo's error handler.
package handlers

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/moneytech/selenium/distributor"
	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/graverr"
)

// Server implements the Distributor's HTTP surface.
type Server struct {
	dist   *distributor.Distributor
	logger log.Logger
}

// NewServer creates a Server delegating to dist.
func NewServer(dist *distributor.Distributor, logger log.Logger) *Server {
	return &Server{dist: dist, logger: log.With(logger, "component", "http_server")}
}

// Register mounts every route onto e.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/session", s.NewSession)
	e.GET("/status", s.Status)
	e.POST("/node", s.AddNode)
	e.DELETE("/node/:id", s.RemoveNode)
	e.POST("/node/:id/refresh", s.RefreshNode)
	e.GET("/readyz", s.Ready)
}

// newSessionRequest is the wire shape of POST /session's body: an
// ordered, non-empty array of alternative capability sets.
type newSessionRequest struct {
	DesiredCapabilities []domain.Capabilities `json:"desiredCapabilities"`
}

// NewSession handles POST /session.
func (s *Server) NewSession(c echo.Context) error {
	var req newSessionRequest
	if err := c.Bind(&req); err != nil {
		return graverr.NewSessionNotCreated("invalid new session request body", err)
	}
	rec, err := s.dist.NewSession(c.Request().Context(), domain.NewSessionRequest{CapabilitySets: req.DesiredCapabilities})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toSessionRecordResponse(rec))
}

type sessionRecordResponse struct {
	SessionID    string              `json:"sessionId"`
	URI          string              `json:"uri"`
	Capabilities domain.Capabilities `json:"capabilities"`
}

func toSessionRecordResponse(rec domain.SessionRecord) sessionRecordResponse {
	return sessionRecordResponse{SessionID: rec.SessionID.String(), URI: rec.URI, Capabilities: rec.Capabilities}
}

// Status handles GET /status.
func (s *Server) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, toSummaryResponses(s.dist.Status()))
}

type nodeSummaryResponse struct {
	ID        string  `json:"id"`
	URI       string  `json:"uri"`
	Status    string  `json:"status"`
	Load      float64 `json:"load"`
	UsedSlots int     `json:"usedSlots"`
	MaxSlots  int     `json:"maxSlots"`
}

func toSummaryResponses(summaries []domain.NodeSummary) []nodeSummaryResponse {
	out := make([]nodeSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, nodeSummaryResponse{
			ID:        s.ID.String(),
			URI:       s.URI,
			Status:    string(s.Status),
			Load:      s.Load,
			UsedSlots: s.UsedSlots,
			MaxSlots:  s.MaxSlots,
		})
	}
	return out
}

// addNodeRequest is the wire shape of POST /node.
type addNodeRequest struct {
	NodeID             string              `json:"nodeId"`
	URI                string              `json:"uri"`
	Stereotypes        []domain.Stereotype `json:"stereotypes"`
	RegistrationSecret string              `json:"registrationSecret"`
}

// AddNode handles POST /node.
func (s *Server) AddNode(c echo.Context) error {
	var req addNodeRequest
	if err := c.Bind(&req); err != nil {
		return graverr.NewInternal("invalid add-node request body", err)
	}
	nodeID, err := uuid.Parse(req.NodeID)
	if err != nil {
		nodeID = uuid.New()
	}
	s.dist.Add(domain.NodeStatus{
		NodeID:             nodeID,
		URI:                req.URI,
		Stereotypes:        req.Stereotypes,
		Availability:       domain.Up,
		RegistrationSecret: req.RegistrationSecret,
	})
	return c.NoContent(http.StatusOK)
}

// RemoveNode handles DELETE /node/:id.
func (s *Server) RemoveNode(c echo.Context) error {
	nodeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return graverr.NewInternal("invalid node id", err)
	}
	s.dist.Remove(nodeID)
	return c.NoContent(http.StatusOK)
}

// RefreshNode handles POST /node/:id/refresh by triggering a refresh of
// the whole directory (the Distributor does not expose a per-node
// refresh; spec.md §4.1's refresh() is directory-wide).
func (s *Server) RefreshNode(c echo.Context) error {
	s.dist.Refresh()
	return c.NoContent(http.StatusOK)
}

// Ready handles GET /readyz.
func (s *Server) Ready(c echo.Context) error {
	if !s.dist.IsReady() {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}
