package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/http/response"
	"github.com/yungbote/memstream-backend/internal/memory/extract"
	"github.com/yungbote/memstream-backend/internal/memory/ingest"
	"github.com/yungbote/memstream-backend/internal/memory/retrieval"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/types"
)

type fakePipeline struct {
	result ingest.MemorizeResult
	err    error
	got    []types.RawMessage
}

func (f *fakePipeline) Memorize(ctx context.Context, messages []types.RawMessage) (ingest.MemorizeResult, error) {
	f.got = messages
	return f.result, f.err
}

type fakeEngine struct {
	result *retrieval.Result
	err    error
}

func (f *fakeEngine) RetrieveLightweight(ctx context.Context, req retrieval.Request) (*retrieval.Result, error) {
	return f.result, f.err
}

func (f *fakeEngine) RetrieveAgentic(ctx context.Context, req retrieval.AgenticRequest) (*retrieval.Result, error) {
	return f.result, f.err
}

type fakeStatus struct {
	known map[uuid.UUID]extract.TaskStatus
}

func (f *fakeStatus) StatusOf(id uuid.UUID) (extract.TaskStatus, bool) {
	s, ok := f.known[id]
	return s, ok
}

type fakeMetaRepo struct {
	saved *types.ConversationMeta
}

func (f *fakeMetaRepo) Upsert(ctx context.Context, tx *gorm.DB, meta *types.ConversationMeta) (*types.ConversationMeta, error) {
	f.saved = meta
	return meta, nil
}

func (f *fakeMetaRepo) GetByGroupID(ctx context.Context, tx *gorm.DB, groupID string) (*types.ConversationMeta, error) {
	if f.saved != nil && f.saved.GroupID == groupID {
		return f.saved, nil
	}
	return nil, nil
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMemorizeAcknowledgesSubmission(t *testing.T) {
	gin.SetMode(gin.TestMode)

	requestID := uuid.New()
	pipeline := &fakePipeline{result: ingest.MemorizeResult{
		RequestID:  &requestID,
		StatusInfo: ingest.StatusSubmitted,
	}}
	h := NewMemoryHandler(pipeline, &fakeEngine{}, &fakeStatus{}, testLog(t))

	r := gin.New()
	r.POST("/memorize", h.Memorize)

	rec := postJSON(r, "/memorize", `{
		"message_id": "m1",
		"group_id": "g1",
		"sender_id": "user_a",
		"content": "hello",
		"created_at": "2026-07-01T10:00:00Z"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var env response.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Status != "ok" {
		t.Fatalf("envelope status = %q", env.Status)
	}
	result, _ := env.Result.(map[string]any)
	if result["status_info"] != ingest.StatusSubmitted {
		t.Fatalf("result = %v", env.Result)
	}
	if result["request_id"] != requestID.String() {
		t.Fatalf("request_id = %v", result["request_id"])
	}
	if len(pipeline.got) != 1 || pipeline.got[0].MessageID != "m1" {
		t.Fatalf("pipeline received %+v", pipeline.got)
	}
}

func TestMemorizeRejectsIncompleteMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewMemoryHandler(&fakePipeline{}, &fakeEngine{}, &fakeStatus{}, testLog(t))
	r := gin.New()
	r.POST("/memorize", h.Memorize)

	rec := postJSON(r, "/memorize", `{"group_id": "g1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Status != "failed" || env.Code != "INVALID_PARAMETER" || env.Path != "/memorize" {
		t.Fatalf("error envelope = %+v", env)
	}
}

func TestRequestStatusNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewMemoryHandler(&fakePipeline{}, &fakeEngine{}, &fakeStatus{known: map[uuid.UUID]extract.TaskStatus{}}, testLog(t))
	r := gin.New()
	r.GET("/api/request-status/:id", h.RequestStatus)

	req := httptest.NewRequest(http.MethodGet, "/api/request-status/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Code != "BEAN_NOT_FOUND" {
		t.Fatalf("code = %q", env.Code)
	}
}

func TestConversationMetaRejectsUnknownScene(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewConversationMetaHandler(&fakeMetaRepo{}, testLog(t))
	r := gin.New()
	r.POST("/conversation-meta", h.Upsert)

	rec := postJSON(r, "/conversation-meta", `{"group_id": "g1", "scene": "courtroom"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestConversationMetaRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repo := &fakeMetaRepo{}
	h := NewConversationMetaHandler(repo, testLog(t))
	r := gin.New()
	r.POST("/conversation-meta", h.Upsert)
	r.GET("/api/conversation-meta/:group_id", h.Get)

	rec := postJSON(r, "/conversation-meta", `{
		"group_id": "g1",
		"scene": "assistant",
		"default_timezone": "America/New_York",
		"user_details": {"user_a": {"full_name": "Ada", "role": "user"}}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/conversation-meta/g1", nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, req)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d", getRec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/conversation-meta/missing", nil)
	missRec := httptest.NewRecorder()
	r.ServeHTTP(missRec, req)
	if missRec.Code != http.StatusNotFound {
		t.Fatalf("missing group status = %d", missRec.Code)
	}
}
