package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/metrics"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/service"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/transport/http/middleware"
	"github.com/Siddharthgautam09/SERVEPE-sub000/pkg/validator"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader lets a client retry a send without duplicating it.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

type MessageHandler struct {
	messageService *service.MessageService
	log            *zap.Logger
}

func NewMessageHandler(messageService *service.MessageService, log *zap.Logger) *MessageHandler {
	return &MessageHandler{messageService: messageService, log: log}
}

// Routes mounts the message endpoints on r. Callers add authentication.
func (h *MessageHandler) Routes(r chi.Router) {
	r.Post("/send", h.Send)
	r.Get("/conversation/{counterpart}", h.Conversation)
	r.Get("/conversations", h.Conversations)
	r.Put("/mark-read", h.MarkRead)
	r.Get("/unread-count", h.UnreadCount)
	r.Get("/{id}", h.Get)
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.SendMessageInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	input.IdempotencyKey = r.Header.Get(IdempotencyKeyHeader)
	if len(input.IdempotencyKey) > maxIdempotencyKeyLength {
		writeError(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY", "Idempotency key is too long")
		return
	}

	res, err := h.messageService.Send(r.Context(), userID, metrics.PathREST, input)
	if err != nil {
		h.writeServiceError(w, "send message", err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	counterpart := chi.URLParam(r, "counterpart")

	var orderID *uuid.UUID
	if orderStr := r.URL.Query().Get("orderId"); orderStr != "" {
		id, err := uuid.Parse(orderStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid order ID")
			return
		}
		orderID = &id
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 0)

	resp, err := h.messageService.GetConversation(r.Context(), userID, counterpart, orderID, page, limit)
	if err != nil {
		h.writeServiceError(w, "get conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	list, err := h.messageService.ListConversations(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

type markReadRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateMarkRead(req.ConversationID); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	n, err := h.messageService.MarkRead(r.Context(), userID, req.ConversationID)
	if err != nil {
		h.writeServiceError(w, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"modified_count": n})
}

func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	n, err := h.messageService.UnreadCount(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "unread count", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"unread_count": n})
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	msg, err := h.messageService.GetMessage(r.Context(), userID, messageID)
	if err != nil {
		h.writeServiceError(w, "get message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// writeServiceError maps the error taxonomy to a status. Storage and other
// unexpected failures are logged and never shown to the client.
func (h *MessageHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var fieldErr *service.ValidationError
	switch {
	case errors.As(err, &fieldErr):
		writeValidationErrors(w, fieldErr.Fields)
	case errors.Is(err, domain.ErrPolicyViolation):
		writeError(w, http.StatusBadRequest, "POLICY_VIOLATION", "Message not sent due to policy: contact details and external links are not allowed")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	case errors.Is(err, domain.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "This request is already being processed")
	default:
		h.log.Error(op, zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return fallback
}
