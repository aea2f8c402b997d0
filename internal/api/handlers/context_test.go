package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixcare/clinidex/internal/domain"
	"github.com/helixcare/clinidex/internal/service"
)

type MockContextService struct {
	mock.Mock
}

func (m *MockContextService) GetContextForQuery(ctx context.Context, query string, owner domain.Owner, elevated bool) (*service.ContextBundle, error) {
	args := m.Called(ctx, query, owner, elevated)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ContextBundle), args.Error(1)
}

func TestContextHandler_Query_Success(t *testing.T) {
	mockSvc := new(MockContextService)
	handler := NewContextHandler(mockSvc)

	bundle := &service.ContextBundle{
		ContextText:       "[Document Excerpt 1]\nHemoglobin 13.5",
		Chunks:            []domain.ScoredChunk{{Chunk: domain.DocumentChunk{ID: "chunk-1", DocumentID: "doc-1"}}},
		SourceDocumentIDs: []string{"doc-1"},
		ChunkIDs:          []string{"chunk-1"},
	}
	mockSvc.On("GetContextForQuery", mock.Anything, "latest blood work", testOwner, false).Return(bundle, nil)

	body := `{"query":"latest blood work"}`
	req := requestWithOwner(http.MethodPost, "/context", []byte(body), testOwner)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Contains(t, data["context"], "[Document Excerpt 1]")
	assert.Equal(t, false, data["empty"])
	ids := data["source_document_ids"].([]interface{})
	require.Len(t, ids, 1)
	assert.Equal(t, "doc-1", ids[0])
	mockSvc.AssertExpectations(t)
}

func TestContextHandler_Query_DoctorIsElevated(t *testing.T) {
	mockSvc := new(MockContextService)
	handler := NewContextHandler(mockSvc)

	doctor := domain.Owner{ID: "doctor-1", Kind: domain.OwnerKindDoctor}
	mockSvc.On("GetContextForQuery", mock.Anything, "patient history", doctor, true).
		Return(&service.ContextBundle{}, nil)

	body := `{"query":"patient history"}`
	req := requestWithOwner(http.MethodPost, "/context", []byte(body), doctor)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestContextHandler_Query_EmptyResult(t *testing.T) {
	mockSvc := new(MockContextService)
	handler := NewContextHandler(mockSvc)

	mockSvc.On("GetContextForQuery", mock.Anything, "anything", testOwner, false).
		Return(&service.ContextBundle{}, nil)

	body := `{"query":"anything"}`
	req := requestWithOwner(http.MethodPost, "/context", []byte(body), testOwner)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["empty"])
	assert.Equal(t, "", data["context"])
}

func TestContextHandler_Query_RetrievalErrorDegradesToEmpty(t *testing.T) {
	mockSvc := new(MockContextService)
	handler := NewContextHandler(mockSvc)

	mockSvc.On("GetContextForQuery", mock.Anything, "blood work", testOwner, false).
		Return(nil, errors.New("embedding API unavailable"))

	body := `{"query":"blood work"}`
	req := requestWithOwner(http.MethodPost, "/context", []byte(body), testOwner)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	// a retrieval failure must not fail the caller's turn
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, true, data["empty"])
	assert.Equal(t, "", data["context"])
}

func TestContextHandler_Query_MissingOwner(t *testing.T) {
	mockSvc := new(MockContextService)
	handler := NewContextHandler(mockSvc)

	req := httptest.NewRequest(http.MethodPost, "/context", nil)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContextHandler_Query_InvalidBody(t *testing.T) {
	mockSvc := new(MockContextService)
	handler := NewContextHandler(mockSvc)

	req := requestWithOwner(http.MethodPost, "/context", []byte("{not json"), testOwner)
	w := httptest.NewRecorder()

	handler.Query(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}
