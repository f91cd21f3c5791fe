package agents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"trpc.group/trpc-go/trpc-a2a-go/auth"

	"github.com/tuannvm/workitem-qa/internal/common"
	"github.com/tuannvm/workitem-qa/internal/identity"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/models"
	"github.com/tuannvm/workitem-qa/internal/orchestrator"
)

const maxBodyBytes = 1 << 20

// Responder answers one question synchronously.
type Responder interface {
	Answer(ctx context.Context, req orchestrator.Request) (models.OrchestratedResponse, error)
}

// NewHTTPHandler serves POST /ask with a JSON request body, behind
// provider when it is not nil.
func NewHTTPHandler(r Responder, provider auth.Provider) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ask", identity.Middleware(provider, askHandler(r)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func askHandler(r Responder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requestID := uuid.NewString()
		logger := log.With("request", requestID)

		if req.Method != http.MethodPost {
			common.ReturnJSONError(w, http.StatusMethodNotAllowed, "Method not allowed: Only POST requests are accepted")
			return
		}
		if ct, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type")); ct != "application/json" {
			common.ReturnJSONError(w, http.StatusUnsupportedMediaType, "Content type must be application/json")
			return
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		if err != nil {
			common.ReturnJSONError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		var data map[string]interface{}
		if err := json.Unmarshal(body, &data); err != nil {
			common.ReturnJSONError(w, http.StatusBadRequest, "Failed to parse request body as JSON")
			return
		}
		in, err := RequestFromMap(data)
		if err != nil {
			common.ReturnJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.UserID = identity.Resolve(req.Context(), in.UserID)

		resp, err := r.Answer(req.Context(), in)
		status := http.StatusOK
		if err != nil {
			status = statusFor(err)
			logger.Warnf("Question failed with status %d: %v", status, err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-ID", requestID)
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Errorf("Failed to write response: %v", err)
		}
	})
}

func statusFor(err error) int {
	var pe *orchestrator.PipelineError
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError
	}
	switch pe.Kind {
	case orchestrator.KindInvalidInput:
		return http.StatusBadRequest
	case orchestrator.KindConversationNotFound:
		return http.StatusNotFound
	case orchestrator.KindOwnershipMismatch:
		return http.StatusForbidden
	case orchestrator.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
