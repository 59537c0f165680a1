package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/copyleftdev/simplex/internal/errors"
	"github.com/copyleftdev/simplex/internal/optimization"
	"github.com/copyleftdev/simplex/internal/problem"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32001
	codeConflict       = -32002
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type idParams struct {
	OptimizationID string `json:"optimization_id"`
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	var request rpcRequest
	if err := json.Unmarshal(body, &request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	// Route to appropriate handler
	var result interface{}

	switch request.Method {
	case "optimization.start":
		result, err = s.handleOptimizeStart(request.Params)
	case "optimization.status":
		result, err = s.handleOptimizationStatus(request.Params)
	case "optimization.cancel":
		result, err = s.handleOptimizationCancel(request.Params)
	case "optimization.list":
		result = s.listOptimizations()
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, rpcCode(err), err.Error(), request.ID)
		return
	}

	// Send successful response
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func rpcCode(err error) int {
	switch {
	case optimization.IsConfigError(err):
		return codeInvalidParams
	case apperrors.Is(err, ErrNotFound):
		return codeNotFound
	case apperrors.Is(err, ErrFinished):
		return codeConflict
	default:
		return codeServerError
	}
}

// unwrapParams accepts params given either as an object or as a
// one-element positional array holding that object.
func unwrapParams(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, optimization.NewConfigError("missing required parameters")
	}
	if raw[0] != '[' {
		return raw, nil
	}

	var positional []json.RawMessage
	if err := json.Unmarshal(raw, &positional); err != nil {
		return nil, optimization.NewConfigError("invalid parameter format: %v", err)
	}
	if len(positional) == 0 {
		return nil, optimization.NewConfigError("missing required parameters")
	}
	return positional[0], nil
}

func decodeID(raw json.RawMessage) (string, error) {
	params, err := unwrapParams(raw)
	if err != nil {
		return "", err
	}
	var p idParams
	if err := json.Unmarshal(params, &p); err != nil {
		return "", optimization.NewConfigError("invalid parameter format, expected object: %v", err)
	}
	if p.OptimizationID == "" {
		return "", optimization.NewConfigError("optimization_id is required")
	}
	return p.OptimizationID, nil
}

// handleOptimizeStart handles the optimization.start JSON-RPC method. Its
// params are a problem document.
func (s *Server) handleOptimizeStart(raw json.RawMessage) (interface{}, error) {
	params, err := unwrapParams(raw)
	if err != nil {
		return nil, err
	}
	p, err := problem.ParseJSON(params)
	if err != nil {
		return nil, err
	}
	return s.startOptimization(p)
}

// handleOptimizationStatus handles the optimization.status JSON-RPC method.
// Expected parameters: {"optimization_id": "..."}
func (s *Server) handleOptimizationStatus(raw json.RawMessage) (interface{}, error) {
	id, err := decodeID(raw)
	if err != nil {
		return nil, err
	}
	return s.optimizationStatus(id)
}

// handleOptimizationCancel handles the optimization.cancel JSON-RPC method.
// Expected parameters: {"optimization_id": "..."}
func (s *Server) handleOptimizationCancel(raw json.RawMessage) (interface{}, error) {
	id, err := decodeID(raw)
	if err != nil {
		return nil, err
	}
	return s.cancelOptimization(id)
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
