package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseSessionID extracts and validates the session ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: sid
func ParseSessionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_session_id", "Invalid session ID format", logger)
}

// ParseQuestionID extracts and validates the question ID from the request path.
// Expects path parameter: qid
func ParseQuestionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "qid", "invalid_question_id", "Invalid question ID format", logger)
}

// ParseSessionAndQuestionIDs extracts and validates both IDs.
// Expects path parameters: sid, qid
func ParseSessionAndQuestionIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	sessionID, ok := ParseSessionID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	questionID, ok := ParseQuestionID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return sessionID, questionID, true
}

func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}
