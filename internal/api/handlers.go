package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradesuite/rolesync/internal/entitlement"
	"github.com/tradesuite/rolesync/internal/intake"
	"github.com/tradesuite/rolesync/internal/logging"
)

// webhookTimeout bounds the background reconciliation a webhook kicks off.
// The HTTP response does not wait for it.
const webhookTimeout = 5 * time.Minute

type webhookResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId"`
	Email     string `json:"email"`
	Action    string `json:"action"`
	ProductID string `json:"productId,omitempty"`
}

// handleWebhook accepts an automation event and acknowledges it before the
// reconciliation runs. Payload errors are the only synchronous failures;
// everything downstream is observable via logs and history.
func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var event intake.AutomationEvent
	if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	request, err := event.Normalize()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The request context dies when the ack is written, so the background
	// run gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	ctx, requestID := logging.WithRequestID(ctx, request.ID)
	request.ID = requestID

	log.Info().
		Str("requestID", requestID).
		Str("email", request.Email).
		Str("action", event.Action).
		Str("product", request.ProductID).
		Msg("Webhook event accepted")

	done := r.coordinator.Submit(ctx, request)
	go func() {
		defer cancel()
		<-done
	}()

	writeJSON(w, http.StatusAccepted, webhookResponse{
		Success:   true,
		RequestID: requestID,
		Email:     request.Email,
		Action:    event.Action,
		ProductID: request.ProductID,
	})
}

type healthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	Uptime             int64  `json:"uptime"`
	DirectoryConnected bool   `json:"directoryConnected"`
	HistoryEnabled     bool   `json:"historyEnabled"`
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:             "healthy",
		Version:            r.version,
		Uptime:             int64(time.Since(r.started).Seconds()),
		DirectoryConnected: r.directory != nil && r.directory.Connected(),
		HistoryEnabled:     r.history != nil,
	})
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": r.version})
}

// handleReconciliations returns recent reconciliation history, optionally
// filtered by email.
func (r *Router) handleReconciliations(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	email := entitlement.NormalizeEmail(req.URL.Query().Get("email"))
	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	if r.history == nil {
		writeJSONError(w, http.StatusNotFound, "History is not enabled")
		return
	}

	entries, err := r.history.Recent(req.Context(), email, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read reconciliation history")
		writeJSONError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
