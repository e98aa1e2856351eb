// Package httpadapter is a thin, out-of-scope-of-the-core HTTP surface
// over the invocation engine: one POST endpoint per registered invokable,
// canonical-JSON request/response bodies, 4xx/5xx with a JSON error body
// on failure. Grounded on internal/api/server.go and handlers.go's
// mux-plus-JSON-envelope shape.
package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/reachcore/journal/codec"
	"github.com/reachcore/journal/invokable"
	"github.com/reachcore/journal/invoke"
	"github.com/reachcore/journal/journalerr"
	"github.com/reachcore/journal/log"
	"github.com/reachcore/journal/store"
)

// Handler routes POST /invoke/<name> to a registered Invokable, encoding
// its input/output as canonical JSON wire values.
type Handler struct {
	st     *store.Store
	logger *log.Logger

	mu         sync.RWMutex
	invokables map[string]invokable.Invokable
}

func NewHandler(st *store.Store, logger *log.Logger) *Handler {
	return &Handler{st: st, logger: logger, invokables: make(map[string]invokable.Invokable)}
}

// Register exposes inv at POST /invoke/<name>.
func (h *Handler) Register(name string, inv invokable.Invokable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invokables[name] = inv
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type suspendedBody struct {
	Suspended     bool   `json:"suspended"`
	RequestedType string `json:"requested_type"`
	Context       string `json:"context"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, journalerr.New(journalerr.CodeInvalidArgument, "method not allowed"))
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/invoke/")
	if name == "" || name == r.URL.Path {
		writeError(w, http.StatusNotFound, journalerr.New(journalerr.CodeNotFound, "unknown path"))
		return
	}

	h.mu.RLock()
	inv, ok := h.invokables[name]
	h.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, journalerr.New(journalerr.CodeNotFound, fmt.Sprintf("no invokable named %q", name)))
		return
	}

	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, journalerr.New(journalerr.CodeInvalidArgument, "invalid JSON body").WithCause(err))
		return
	}
	input, err := codec.UnpackValue(raw, h.st.Registry())
	if err != nil {
		writeError(w, http.StatusBadRequest, journalerr.New(journalerr.CodeInvalidArgument, "invalid input encoding").WithCause(err))
		return
	}

	ctx := store.WithStore(r.Context(), h.st)
	result, err := invoke.Invoke(ctx, inv, input)
	if err != nil {
		h.logger.Error("invoke failed", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if result.IsSuspended() {
		ir, _ := result.Suspension()
		writeJSON(w, http.StatusUnprocessableEntity, suspendedBody{
			Suspended:     true,
			RequestedType: ir.RequestedType.Name,
			Context:       ir.Context,
		})
		return
	}

	if raised, ok := result.Raised(); ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("invocation raised: %v", raised))
		return
	}

	out, _ := result.Output()
	packedOut, err := codec.PackValue(out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, journalerr.New(journalerr.CodeInternal, "failed to encode output").WithCause(err))
		return
	}
	writeJSON(w, http.StatusOK, packedOut)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	code := ""
	if je, ok := err.(*journalerr.Error); ok {
		code = string(je.Code)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}
