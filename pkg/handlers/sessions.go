package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/conversation"
	"github.com/ekaya-inc/census-engine/pkg/models"
)

// ListQuestionsResponse for GET /api/sessions/{sid}/questions.
type ListQuestionsResponse struct {
	Questions []*models.ConversationalQuestion `json:"questions"`
	Total     int                              `json:"total"`
	Critical  int                              `json:"critical"`
}

// SessionsHandler exposes the conversation loop over HTTP.
type SessionsHandler struct {
	conversations conversation.ConversationService
	logger        *zap.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(conversations conversation.ConversationService, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{conversations: conversations, logger: logger}
}

// RegisterRoutes registers the sessions handler's routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux) {
	base := "/api/sessions/{sid}"

	mux.HandleFunc("GET "+base, h.Get)
	mux.HandleFunc("GET "+base+"/questions", h.ListQuestions)
	mux.HandleFunc("POST "+base+"/questions/{qid}/answer", h.Answer)
	mux.HandleFunc("POST "+base+"/finalize", h.Finalize)
}

// Get handles GET /api/sessions/{sid}
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	view, err := h.conversations.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err, "get session", h.logger)
		return
	}
	writeOK(w, http.StatusOK, view, h.logger)
}

// ListQuestions handles GET /api/sessions/{sid}/questions
func (h *SessionsHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	pending, err := h.conversations.PendingQuestions(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err, "list questions", h.logger)
		return
	}

	data := ListQuestionsResponse{Questions: pending, Total: len(pending)}
	for _, q := range pending {
		if q.IsCritical() {
			data.Critical++
		}
	}
	writeOK(w, http.StatusOK, data, h.logger)
}

// Answer handles POST /api/sessions/{sid}/questions/{qid}/answer
// A rejected answer is still a 200: the result carries Accepted=false and
// the reason.
func (h *SessionsHandler) Answer(w http.ResponseWriter, r *http.Request) {
	sessionID, questionID, ok := ParseSessionAndQuestionIDs(w, r, h.logger)
	if !ok {
		return
	}

	var req models.Answer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", h.logger)
		return
	}
	if req.OptionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "option_id is required", h.logger)
		return
	}

	result, err := h.conversations.ProcessAnswer(r.Context(), sessionID, questionID, req)
	if err != nil {
		writeServiceError(w, err, "process answer", h.logger)
		return
	}
	writeOK(w, http.StatusOK, result, h.logger)
}

// Finalize handles POST /api/sessions/{sid}/finalize
func (h *SessionsHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := ParseSessionID(w, r, h.logger)
	if !ok {
		return
	}

	dataset, err := h.conversations.Finalize(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err, "finalize session", h.logger)
		return
	}
	writeOK(w, http.StatusOK, dataset, h.logger)
}
