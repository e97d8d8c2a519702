package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/NoahSaso/cw-receipt/core"
	"github.com/NoahSaso/cw-receipt/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// ServerConfig carries the optional knobs for the RPC server.
type ServerConfig struct {
	// AuthToken gates mutating methods when non-empty.
	AuthToken string
	// RateLimitPerMinute bounds mutating requests per client address. Zero
	// disables limiting.
	RateLimitPerMinute float64
	Logger             *slog.Logger
	Metrics            *metrics.Metrics
}

// Server exposes the node over JSON-RPC 2.0.
type Server struct {
	node      *core.Node
	authToken string

	limit rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter

	log     *slog.Logger
	metrics *metrics.Metrics

	handlers map[string]handlerFunc
}

type handlerFunc func(req *RPCRequest) (interface{}, *RPCError)

// NewServer wires the RPC surface around the node.
func NewServer(node *core.Node, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:      node,
		authToken: strings.TrimSpace(cfg.AuthToken),
		visitors:  make(map[string]*rate.Limiter),
		log:       logger,
		metrics:   cfg.Metrics,
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limit = rate.Limit(cfg.RateLimitPerMinute / 60.0)
		s.burst = int(cfg.RateLimitPerMinute)
		if s.burst < 1 {
			s.burst = 1
		}
	}
	s.registerHandlers()
	return s
}

// Router mounts the RPC endpoint plus health and metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handleRPC)
	return r
}

// RPCRequest is a single JSON-RPC 2.0 call.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RPCResponse is a single JSON-RPC 2.0 reply.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	resp := RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := uuid.NewString()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "unable to read request body", err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}

	log := s.log.With(
		slog.String("requestId", requestID),
		slog.String("method", req.Method),
	)

	handler, ok := s.handlers[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	if mutatingMethods[req.Method] {
		if rpcErr := s.authorize(r); rpcErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
		if !s.allow(clientAddr(r)) {
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	result, rpcErr := handler(req)
	if s.metrics != nil {
		s.metrics.RPCRequestDuration.WithLabelValues(req.Method).Observe(time.Since(started).Seconds())
	}
	if rpcErr != nil {
		log.Info("rpc request failed", slog.Int("code", rpcErr.Code), slog.String("error", rpcErr.Message))
		writeError(w, httpStatusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	log.Debug("rpc request served", slog.Duration("elapsed", time.Since(started)))
	writeResult(w, req.ID, result)
}

func (s *Server) authorize(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func (s *Server) allow(client string) bool {
	if s.limit == 0 {
		return true
	}
	s.mu.Lock()
	limiter, ok := s.visitors[client]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.visitors[client] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func httpStatusFor(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeReceiptUnauthorized, codeOwnershipForbidden:
		return http.StatusForbidden
	case codeInvalidParams, codeInvalidRequest, codeReceiptMissingPayment, codeReceiptInvalidDeposit:
		return http.StatusBadRequest
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
