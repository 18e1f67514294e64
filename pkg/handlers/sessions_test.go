package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/census-engine/pkg/models"
)

// ingest uploads the roster and returns the session id and its critical question.
func ingest(t *testing.T, s *server) (uuid.UUID, *models.ConversationalQuestion) {
	t.Helper()
	rec := s.do(uploadRequest(t, "/api/ingest", "plantilla.csv", "text/csv", []byte(rosterCSV), nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Session struct {
			ID      uuid.UUID                        `json:"id"`
			Pending []*models.ConversationalQuestion `json:"pending"`
		} `json:"session"`
	}
	envelope(t, rec, &resp)
	require.NotEmpty(t, resp.Session.Pending)
	return resp.Session.ID, resp.Session.Pending[0]
}

func answerRequest(sid, qid uuid.UUID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost,
		"/api/sessions/"+sid.String()+"/questions/"+qid.String()+"/answer", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSessionsHandler_Flow(t *testing.T) {
	s := newServer(t, nil)
	sid, critical := ingest(t, s)
	require.True(t, critical.IsCritical())

	// Questions
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid.String()+"/questions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListQuestionsResponse
	envelope(t, rec, &list)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Critical)

	// Finalizing with a critical question pending is a conflict.
	rec = s.do(httptest.NewRequest(http.MethodPost, "/api/sessions/"+sid.String()+"/finalize", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A rejected answer is reported, not failed.
	rec = s.do(answerRequest(sid, critical.ID, `{"option_id":"nope"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var rejected models.AnswerResult
	envelope(t, rec, &rejected)
	assert.False(t, rejected.Accepted)
	assert.Contains(t, rejected.Reason, "unknown option")

	// Confirming the field is absent completes the session.
	rec = s.do(answerRequest(sid, critical.ID, `{"option_id":"absent"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result models.AnswerResult
	envelope(t, rec, &result)
	assert.True(t, result.Accepted)
	assert.True(t, result.IsComplete)
	require.NotNil(t, result.FinalizedDataset)
	assert.Len(t, result.FinalizedDataset.Records[models.PurposeActivePersonnel], 6)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsHandler_Get(t *testing.T) {
	s := newServer(t, nil)
	sid, _ := ingest(t, s)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		ID              uuid.UUID `json:"id"`
		PendingCritical int       `json:"pending_critical"`
		File            struct {
			FileName string `json:"file_name"`
		} `json:"file"`
	}
	envelope(t, rec, &view)
	assert.Equal(t, sid, view.ID)
	assert.Equal(t, 1, view.PendingCritical)
	assert.Equal(t, "plantilla.csv", view.File.FileName)
}

func TestSessionsHandler_BadRequests(t *testing.T) {
	s := newServer(t, nil)
	sid, critical := ingest(t, s)

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid session id",
			req:        httptest.NewRequest(http.MethodGet, "/api/sessions/abc/questions", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_session_id",
		},
		{
			name:       "unknown session",
			req:        httptest.NewRequest(http.MethodGet, "/api/sessions/"+uuid.NewString(), nil),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name: "invalid question id",
			req: httptest.NewRequest(http.MethodPost,
				"/api/sessions/"+sid.String()+"/questions/xyz/answer", bytes.NewBufferString(`{"option_id":"a"}`)),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_question_id",
		},
		{
			name:       "malformed body",
			req:        answerRequest(sid, critical.ID, `{`),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "missing option",
			req:        answerRequest(sid, critical.ID, `{"value":"3"}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}
