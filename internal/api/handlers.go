package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"udp-monitor/internal/auth"
	"udp-monitor/internal/metrics"
	"udp-monitor/internal/model"
	"udp-monitor/internal/storage"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// messageJSON is the wire form of one stored record. Data carries the
// decoded text when the payload was valid UTF-8, a lowercase hex dump
// otherwise.
type messageJSON struct {
	ID            int64     `json:"id"`
	ReceivedAt    time.Time `json:"received_at"`
	SourceAddress string    `json:"source_address"`
	SourcePort    int       `json:"source_port"`
	Data          string    `json:"data"`
	DataSize      int       `json:"data_size"`
}

func renderMessage(m model.Message) messageJSON {
	data := hex.EncodeToString(m.Payload)
	if m.PayloadText != nil {
		data = *m.PayloadText
	}
	return messageJSON{
		ID:            m.ID,
		ReceivedAt:    m.ReceivedAt,
		SourceAddress: m.SourceAddress,
		SourcePort:    m.SourcePort,
		Data:          data,
		DataSize:      m.PayloadSize,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/messages", a.ListMessages)
	r.Get("/messages/count", a.MessageCount)
	r.Get("/messages/{id}", a.GetMessage)
	r.Get("/health", a.Health)
	r.Handle("/metrics", metrics.Handler())

	// Mutating endpoints; secured when a JWT secret is configured.
	r.Group(func(r chi.Router) {
		if auth.Enabled() {
			r.Use(auth.JWTAuthMiddleware)
		}
		r.Post("/cleanup", a.Cleanup)
		r.Delete("/messages", a.ClearMessages)
	})

	return r
}

// @Summary List stored messages
// @Tags Messages
// @Produce json
// @Param limit query int false "Maximum number of messages to return (1-1000)"
// @Param offset query int false "Number of messages to skip"
// @Param source_address query string false "Filter by source IP address"
// @Param source_port query int false "Filter by source port"
// @Success 200 {object} map[string]interface{}
// @Router /messages [get]
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	filter := storage.QueryFilter{Limit: defaultLimit}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = offset
	}
	filter.SourceAddress = r.URL.Query().Get("source_address")
	if v := r.URL.Query().Get("source_port"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			writeError(w, http.StatusBadRequest, "invalid source_port")
			return
		}
		filter.SourcePort = port
	}

	messages, err := a.Store.Query(filter)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to query messages")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rendered := make([]messageJSON, 0, len(messages))
	for _, m := range messages {
		rendered = append(rendered, renderMessage(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"count":    len(rendered),
		"messages": rendered,
	})
}

// @Summary Get total message count
// @Tags Messages
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /messages/count [get]
func (a *API) MessageCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.Store.Count()
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to count messages")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   count,
	})
}

// @Summary Get a message by id
// @Tags Messages
// @Produce json
// @Param id path int true "Message ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /messages/{id} [get]
func (a *API) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	m, err := a.Store.GetByID(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Int64("id", id).Msg("failed to get message")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": renderMessage(*m),
	})
}

// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "udp-monitor",
	})
}

// @Summary Purge messages older than a retention window
// @Tags Messages
// @Security ApiKeyAuth
// @Produce json
// @Param days query number false "Retention window in days (default: configured retention)"
// @Success 200 {object} map[string]interface{}
// @Router /cleanup [post]
func (a *API) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := a.RetentionDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = parsed
	}

	deleted, err := a.Store.DeleteOlderThan(time.Duration(days * 24 * float64(time.Hour)))
	if err != nil {
		a.Logger.Error().Err(err).Msg("cleanup failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	metrics.MessagesPurged.Add(float64(deleted))
	a.Logger.Info().Int64("deleted", deleted).Float64("days", days).Msg("manual cleanup completed")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"deleted_count":  deleted,
		"retention_days": days,
	})
}

// @Summary Delete all stored messages
// @Tags Messages
// @Security ApiKeyAuth
// @Success 204
// @Router /messages [delete]
func (a *API) ClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.ClearAll(); err != nil {
		a.Logger.Error().Err(err).Msg("failed to clear messages")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.Logger.Info().Msg("all messages cleared")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
