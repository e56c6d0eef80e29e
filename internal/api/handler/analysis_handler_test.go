package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"sync"
	"testing"

	"resume-analyzer-go/internal/analyzer"
	"resume-analyzer-go/internal/api/handler"
	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/constants"
	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/internal/parser"
	"resume-analyzer-go/internal/storage"
	"resume-analyzer-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const structuredResume = "Name: Ram Kumar\nContact: 9876543210\nSkills: java,python\nSkills: SQL\nDegree: Btech\n"

type memoryStore struct {
	mu      sync.Mutex
	records map[string]*models.AnalysisRecord
}

func (s *memoryStore) SaveAnalysisRecord(_ context.Context, rec *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.AnalysisID] = &cp
	return nil
}

func (s *memoryStore) GetAnalysisRecord(_ context.Context, id string) (*models.AnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memoryStore) UpdateAnalysisStatus(_ context.Context, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return storage.ErrRecordNotFound
	}
	rec.Status = status
	rec.ErrorMessage = errMsg
	return nil
}

type fakeUploader struct {
	objects map[string][]byte
	err     error
}

func (u *fakeUploader) UploadOriginal(_ context.Context, id, filename string, data []byte) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	key := storage.OriginalObjectKey(id, filename)
	u.objects[key] = data
	return key, nil
}

type fakePublisher struct {
	messages []*storage.AnalysisRequestMessage
	err      error
}

func (p *fakePublisher) PublishAnalysisRequest(_ context.Context, msg *storage.AnalysisRequestMessage) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

type testEnv struct {
	h         *server.Hertz
	store     *memoryStore
	uploader  *fakeUploader
	publisher *fakePublisher
}

func newTestEnv(t *testing.T, completer extractor.Completer, async bool) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     &memoryStore{records: make(map[string]*models.AnalysisRecord)},
		uploader:  &fakeUploader{objects: make(map[string][]byte)},
		publisher: &fakePublisher{},
	}
	a := analyzer.New(extractor.New(completer),
		analyzer.WithRecordStore(env.store),
		analyzer.WithTextExtractor(parser.NewRegistry(parser.PlainTextExtractor{})),
	)

	upload := config.DefaultConfig().Upload
	var h *handler.AnalysisHandler
	if async {
		h = handler.NewAnalysisHandler(a, upload, env.uploader, env.publisher)
	} else {
		h = handler.NewAnalysisHandler(a, upload, nil, nil)
	}

	env.h = server.New(server.WithHostPorts("127.0.0.1:0"))
	rg := env.h.Group("/api/v1")
	rg.POST("/resume/analyze", h.AnalyzeText)
	rg.POST("/resume/analyze/upload", h.AnalyzeUpload)
	rg.POST("/resume/submit", h.Submit)
	rg.GET("/resume/analyses/:id", h.GetAnalysis)
	return env
}

func (e *testEnv) postJSON(path string, body interface{}) *ut.ResponseRecorder {
	data, _ := json.Marshal(body)
	return ut.PerformRequest(e.h.Engine, "POST", path,
		&ut.Body{Body: bytes.NewReader(data), Len: len(data)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
}

func (e *testEnv) postFile(t *testing.T, path, filename string, content []byte, mode string) *ut.ResponseRecorder {
	body, contentType := createMultipartFormWithContent(t, filename, content, mode)
	return ut.PerformRequest(e.h.Engine, "POST", path,
		&ut.Body{Body: body, Len: body.Len()},
		ut.Header{Key: "Content-Type", Value: contentType},
	)
}

func (e *testEnv) get(path string) *ut.ResponseRecorder {
	return ut.PerformRequest(e.h.Engine, "GET", path, nil)
}

// createMultipartFormWithContent 用字节内容构造 multipart 表单
func createMultipartFormWithContent(t *testing.T, fileName string, fileContent []byte, mode string) (*bytes.Buffer, string) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(fileContent)
	require.NoError(t, err)

	if mode != "" {
		require.NoError(t, writer.WriteField("mode", mode))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decode(t *testing.T, resp *ut.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), v), resp.Body.String())
}

func TestAnalyzeTextStructured(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp := env.postJSON("/api/v1/resume/analyze", handler.AnalyzeRequest{Text: structuredResume, Mode: "structured"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var result analyzer.Result
	decode(t, resp, &result)
	assert.Equal(t, "Ram Kumar", result.Fields.Name)
	assert.Equal(t, "java, python, SQL", result.Fields.Skills)
	assert.Equal(t, extractor.NotMentioned, result.Fields.College)
	assert.False(t, result.Degraded)
	assert.NotEmpty(t, result.ID)

	got := env.get("/api/v1/resume/analyses/" + result.ID)
	require.Equal(t, http.StatusOK, got.Code, got.Body.String())
	var rec handler.RecordResponse
	decode(t, got, &rec)
	assert.Equal(t, constants.StatusCompleted, rec.Status)
	require.NotNil(t, rec.Fields)
	assert.Equal(t, result.Fields, *rec.Fields)
	assert.Equal(t, result.Report, rec.Report)
}

func TestAnalyzeTextMessyDegraded(t *testing.T) {
	failing := extractor.CompleterFunc(func(context.Context, string) (string, error) {
		return "", errors.New("dial tcp 127.0.0.1:11434: connection refused")
	})
	env := newTestEnv(t, failing, false)

	resp := env.postJSON("/api/v1/resume/analyze", handler.AnalyzeRequest{
		Text: "Call +91 9876543210. Worked 2018-2020 and 2019-2022.",
		Mode: "messy",
	})
	require.Equal(t, http.StatusOK, resp.Code, "降级结果仍返回200")

	var result analyzer.Result
	decode(t, resp, &result)
	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.DegradedReason)
	assert.Equal(t, "9876543210", result.Fields.Contact)
	assert.Equal(t, "4 years 0 months (rounded down: 4 years)", result.Fields.Experience)
	assert.Equal(t, extractor.NotMentioned, result.Fields.Name)
}

func TestAnalyzeTextBadRequests(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp := ut.PerformRequest(env.h.Engine, "POST", "/api/v1/resume/analyze",
		&ut.Body{Body: bytes.NewBufferString("{not json"), Len: 9})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.postJSON("/api/v1/resume/analyze", handler.AnalyzeRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.postJSON("/api/v1/resume/analyze", handler.AnalyzeRequest{Text: structuredResume, Mode: "fuzzy"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAnalyzeUpload(t *testing.T) {
	env := newTestEnv(t, nil, false)

	resp := env.postFile(t, "/api/v1/resume/analyze/upload", "cv.txt", []byte(structuredResume), "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var result analyzer.Result
	decode(t, resp, &result)
	assert.Equal(t, "Btech", result.Fields.Degree)
	assert.Equal(t, constants.SourceUpload, result.Source)

	resp = env.postFile(t, "/api/v1/resume/analyze/upload", "cv.docx", []byte("x"), "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ut.PerformRequest(env.h.Engine, "POST", "/api/v1/resume/analyze/upload", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitQueuesAnalysis(t *testing.T) {
	env := newTestEnv(t, nil, true)

	resp := env.postFile(t, "/api/v1/resume/submit", "cv.md", []byte(structuredResume), "messy")
	require.Equal(t, http.StatusAccepted, resp.Code, resp.Body.String())

	var submitted handler.SubmitResponse
	decode(t, resp, &submitted)
	assert.Equal(t, constants.StatusQueued, submitted.Status)
	require.NotEmpty(t, submitted.AnalysisID)

	require.Len(t, env.publisher.messages, 1)
	msg := env.publisher.messages[0]
	assert.Equal(t, submitted.AnalysisID, msg.AnalysisID)
	assert.Equal(t, "messy", msg.Mode)
	assert.Equal(t, "cv.md", msg.OriginalFilename)
	assert.Equal(t, []byte(structuredResume), env.uploader.objects[msg.OriginalObjectKey])

	got := env.get("/api/v1/resume/analyses/" + submitted.AnalysisID)
	require.Equal(t, http.StatusOK, got.Code)
	var rec handler.RecordResponse
	decode(t, got, &rec)
	assert.Equal(t, constants.StatusQueued, rec.Status)
	assert.Nil(t, rec.Fields)
}

func TestSubmitPublishFailure(t *testing.T) {
	env := newTestEnv(t, nil, true)
	env.publisher.err = errors.New("channel closed")

	resp := env.postFile(t, "/api/v1/resume/submit", "cv.txt", []byte(structuredResume), "")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	for _, rec := range env.store.records {
		assert.Equal(t, constants.StatusFailed, rec.Status)
		assert.Contains(t, rec.ErrorMessage, "channel closed")
	}
}

func TestSubmitDisabled(t *testing.T) {
	env := newTestEnv(t, nil, false)
	resp := env.postFile(t, "/api/v1/resume/submit", "cv.txt", []byte(structuredResume), "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestGetAnalysisNotFound(t *testing.T) {
	env := newTestEnv(t, nil, false)
	resp := env.get("/api/v1/resume/analyses/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
