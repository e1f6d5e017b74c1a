package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/mcp-toolrouter/internal/agent"
	"github.com/giantswarm/mcp-toolrouter/internal/logging"
)

// maxCallBody bounds the size of a /tools/call request body.
const maxCallBody = 1 << 20

// HTTPOptions configures the REST handler.
type HTTPOptions struct {
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

type callBody struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type healthResponse struct {
	Healthy bool           `json:"healthy"`
	Agents  []agent.Health `json:"agents"`
}

// NewHTTPHandler maps the router onto plain HTTP:
//
//	GET  /tools/list  tool array
//	POST /tools/call  {name, arguments}, 200 on success, 400 on an error result
//	                  or a malformed body
//	GET  /health      agent health, 503 when every agent is unhealthy
//	GET  /agents      agent status
//	GET  /metrics     Prometheus metrics
func NewHTTPHandler(r *Router, opts HTTPOptions) http.Handler {
	h := &httpHandler{router: r, logger: opts.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tools/list", h.handleListTools)
	mux.HandleFunc("POST /tools/call", h.handleCallTool)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /agents", h.handleAgents)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

type httpHandler struct {
	router *Router
	logger *logging.Logger
}

func (h *httpHandler) handleListTools(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.router.ListTools(r.Context()))
}

func (h *httpHandler) handleCallTool(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBody+1))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read request body: %v", err))
		return
	}
	if len(body) > maxCallBody {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var call callBody
	if err := json.Unmarshal(body, &call); err != nil {
		h.writeJSON(w, http.StatusBadRequest, agent.ErrorResult(agent.CategoryInvalidArguments, "Request body is not a valid tool call: %v", err))
		return
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = call.Name
	if call.Arguments != nil {
		req.Params.Arguments = call.Arguments
	}

	result := h.router.Execute(r.Context(), req, BearerToken(r.Header.Get("Authorization")))
	status := http.StatusOK
	if result.IsError {
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, result)
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := h.router.Health(r.Context())
	resp := healthResponse{Healthy: len(health) == 0, Agents: health}
	for _, entry := range health {
		if entry.Healthy {
			resp.Healthy = true
			break
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

func (h *httpHandler) handleAgents(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.router.Agents())
}

func (h *httpHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response: %v", err)
		h.writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *httpHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
