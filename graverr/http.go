package graverr

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/labstack/echo/v4"
)

// statusByCode maps a taxonomy code to the HTTP status the handler layer
// reports it as. Mirrors the pack's NewErrorCodeToStatusCodeMaps table.
func statusByCode() map[string]int {
	return map[string]int{
		SessionNotCreated: http.StatusInternalServerError,
		NoSuchSession:     http.StatusNotFound,
		Storage:           http.StatusInternalServerError,
		Config:            http.StatusInternalServerError,
		Internal:          http.StatusInternalServerError,
	}
}

// RegisterErrorHandler installs a custom echo.HTTPErrorHandler that
// translates graverr.Error codes into HTTP statuses and logs every error
// it handles.
func RegisterErrorHandler(e *echo.Echo, logger log.Logger) {
	h := &httpErrorHandler{byCode: statusByCode(), logger: logger}
	e.HTTPErrorHandler = h.Handler
}

type httpErrorHandler struct {
	byCode map[string]int
	logger log.Logger
}

func (h *httpErrorHandler) statusFor(code string) int {
	if s, ok := h.byCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Handler handles any error returned by an echo handler func, mapping
// graverr.Error into a JSON {"error": {...}} body and otherwise falling
// back to a generic INTERNAL error.
func (h *httpErrorHandler) Handler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	myErr := As(err)
	if myErr == nil {
		if he, ok := err.(*echo.HTTPError); ok {
			msg, _ := he.Message.(string)
			myErr = New(Internal, msg, err)
			level.Error(h.logger).Log("msg", "request error", "err", err)
			_ = c.JSON(he.Code, errResponse{Error: myErr})
			return
		}
		myErr = New(Internal, "an internal error has occurred", err)
	}

	level.Error(h.logger).Log("msg", "request error", "code", myErr.Code, "err", err)
	_ = c.JSON(h.statusFor(myErr.Code), errResponse{Error: myErr})
}

type errResponse struct {
	Error *Error `json:"error,omitempty"`
}
