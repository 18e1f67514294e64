package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/config"
	"github.com/ekaya-inc/census-engine/pkg/conversation"
	"github.com/ekaya-inc/census-engine/pkg/mapping"
	"github.com/ekaya-inc/census-engine/pkg/pipeline"
)

const rosterCSV = "Empleado,Fecha Nacimiento,Sueldo\n" +
	"Juan Pérez López,15/03/1985,15000\n" +
	"María García,02/11/1990,\"$18,500.00\"\n" +
	"Pedro Ramírez,20/07/1978,22000\n" +
	"Ana Torres Ruiz,05/01/1995,12500.50\n" +
	"Luis Hernández,30/09/1982,30000\n" +
	"Sofía Méndez,12/12/1988,17800\n"

type server struct {
	mux           *http.ServeMux
	store         conversation.SessionStore
	conversations conversation.ConversationService
}

// newServer wires the real pipeline and conversation service behind the
// ingest and sessions routes.
func newServer(t *testing.T, processor FileProcessor) *server {
	t.Helper()
	logger := zap.NewNop()
	cfg := &config.Config{
		Scoring:    config.DefaultScoring(),
		Extraction: config.ExtractionConfig{HeadBytes: 8192},
		Pipeline:   config.PipelineConfig{BatchConcurrency: 1},
	}
	catalog, err := mapping.DefaultCatalog()
	require.NoError(t, err)
	pl := pipeline.NewWithExtractor(cfg, catalog, pipeline.NewRegistry(cfg.Extraction, logger), logger)
	if processor == nil {
		processor = pl
	}

	store := conversation.NewSessionStore(logger)
	conversations := conversation.NewConversationService(store, pl.Generator(), pl.Mapper(), pl.Analyzer(), logger)

	mux := http.NewServeMux()
	NewIngestHandler(processor, conversations, 1, logger).RegisterRoutes(mux)
	NewSessionsHandler(conversations, logger).RegisterRoutes(mux)
	return &server{mux: mux, store: store, conversations: conversations}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path, fileName, contentType string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
		h["Content-Type"] = []string{contentType}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// envelope decodes an ApiResponse whose data is decoded into out.
func envelope(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), rec.Body.String())
	require.True(t, resp.Success)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}
