package server

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/botvisor/internal/process"
	"github.com/loykin/botvisor/internal/supervisor"
)

// Controller is the part of the supervisor the API drives.
type Controller interface {
	Units() []string
	Status() ([]process.Status, error)
	RestartAttempts() (map[string]int, error)
	Draining() bool
	Start(id string) error
	Stop(id string) error
	Shutdown()
}

// Router provides embeddable HTTP handlers for controlling units.
// Endpoints:
//
//	GET  {basePath}/status
//	POST {basePath}/start     query: name=...
//	POST {basePath}/stop      query: name=...
//	POST {basePath}/shutdown
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ctrl      Controller
	basePath  string
	tokenHash string
}

// NewRouter constructs a Router. A non-empty tokenHash (bcrypt) requires
// every request to carry the matching bearer token.
func NewRouter(ctrl Controller, basePath, tokenHash string) *Router {
	return &Router{ctrl: ctrl, basePath: sanitizeBase(basePath), tokenHash: tokenHash}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.Use(TokenAuth(r.tokenHash))
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/shutdown", r.handleShutdown)
	return g
}

// Listen binds addr and serves h in the background. A bind failure is
// returned to the caller; the bound address is useful with port 0.
func Listen(addr string, h http.Handler) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", err
	}
	server := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, ln.Addr().String(), nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// StatusResp is the body of GET /status.
type StatusResp struct {
	Units    []string         `json:"units"`
	Live     []process.Status `json:"live"`
	Draining bool             `json:"draining"`
	// RestartAttempts holds every unit with a non-zero restart counter.
	RestartAttempts map[string]int `json:"restart_attempts,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	live, err := r.ctrl.Status()
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	if live == nil {
		live = []process.Status{}
	}
	attempts, err := r.ctrl.RestartAttempts()
	if err != nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, StatusResp{
		Units:           r.ctrl.Units(),
		Live:            live,
		Draining:        r.ctrl.Draining(),
		RestartAttempts: attempts,
	})
}

func (r *Router) handleStart(c *gin.Context) {
	name, ok := unitName(c)
	if !ok {
		return
	}
	if err := r.ctrl.Start(name); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	name, ok := unitName(c)
	if !ok {
		return
	}
	if err := r.ctrl.Stop(name); err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleShutdown(c *gin.Context) {
	r.ctrl.Shutdown()
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func unitName(c *gin.Context) (string, bool) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return "", false
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return "", false
	}
	return name, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrNotRunning),
		errors.Is(err, supervisor.ErrDraining):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
