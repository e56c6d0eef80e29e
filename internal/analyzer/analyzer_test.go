package analyzer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"resume-analyzer-go/internal/constants"
	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/internal/parser"
	"resume-analyzer-go/internal/storage"
	"resume-analyzer-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const structuredResume = `Name: Ram Kumar
Contact: 9876543210
Current location: Chennai
Years of Experience: 3 years 4 months
Skills: java,python,AI/ML
Skills: SQL
Degree: Btech
Passout year: 2020
College name: Anna University`

const messyResume = `Ram Kumar, based in Chennai. Reach me at +91 9876543210.
Worked at Acme 2018-2020 and Globex 2019 - 2022.
Btech from Anna University, graduated 2018.`

const messyReply = `Name: Ram Kumar
Current location: Chennai
Skills: Go, go, Kubernetes
Degree: Btech
Passout year: 2018
College name: Anna University`

// memoryStore 内存版 RecordStore
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*models.AnalysisRecord
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*models.AnalysisRecord)}
}

func (s *memoryStore) SaveAnalysisRecord(_ context.Context, rec *models.AnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
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

// memoryDedup 内存版 DedupIndex
type memoryDedup struct {
	seen map[string]bool
	err  error
}

func (d *memoryDedup) CheckAndAddTextMD5(_ context.Context, md5Hex string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	existed := d.seen[md5Hex]
	d.seen[md5Hex] = true
	return existed, nil
}

func (d *memoryDedup) RemoveTextMD5(_ context.Context, md5Hex string) error {
	delete(d.seen, md5Hex)
	return nil
}

func fixedID(id string) Option {
	return func(a *Analyzer) {
		a.newID = func() (string, error) { return id, nil }
	}
}

func replying(reply string, err error) extractor.Completer {
	return extractor.CompleterFunc(func(context.Context, string) (string, error) {
		return reply, err
	})
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Structured ")
	require.NoError(t, err)
	assert.Equal(t, ModeStructured, m)

	m, err = ParseMode("2")
	require.NoError(t, err)
	assert.Equal(t, ModeMessy, m)

	_, err = ParseMode("fuzzy")
	assert.ErrorIs(t, err, ErrUnknownMode)
	_, err = ParseMode("")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestAnalyzeStructured(t *testing.T) {
	store := newMemoryStore()
	a := New(extractor.New(nil), WithRecordStore(store), fixedID("id-1"))

	res, err := a.Analyze(context.Background(), Request{Text: structuredResume, Source: constants.SourceText})
	require.NoError(t, err)

	assert.Equal(t, "id-1", res.ID)
	assert.Equal(t, ModeStructured, res.Mode, "未指定模式时使用默认模式")
	assert.False(t, res.Degraded)
	assert.Equal(t, "Ram Kumar", res.Fields.Name)
	assert.Equal(t, "9876543210", res.Fields.Contact)
	assert.Equal(t, "java, python, AI/ML, SQL", res.Fields.Skills)
	assert.Equal(t, res.Fields.String(), res.Report)
	assert.Len(t, strings.Split(strings.TrimSuffix(res.Report, "\n"), "\n"), 8)
	assert.Len(t, res.TextMD5, 32)

	rec, err := a.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusCompleted, rec.Status)
	assert.Equal(t, "structured", rec.Mode)
	assert.Equal(t, res.Report, rec.Report)
	assert.Equal(t, constants.ParserVersion, rec.ParserVersion)

	var fields extractor.FieldSet
	require.NoError(t, rec.DecodeFields(&fields))
	assert.Equal(t, res.Fields, fields)
}

func TestAnalyzeMessy(t *testing.T) {
	a := New(extractor.New(replying(messyReply, nil)), WithDefaultMode(ModeMessy))

	res, err := a.Analyze(context.Background(), Request{Text: messyResume})
	require.NoError(t, err)
	assert.Equal(t, ModeMessy, res.Mode)
	assert.False(t, res.Degraded)
	assert.Equal(t, "9876543210", res.Fields.Contact)
	assert.Equal(t, "4 years 0 months (rounded down: 4 years)", res.Fields.Experience)
	assert.Equal(t, "Go, Kubernetes", res.Fields.Skills)
	assert.Equal(t, "Anna University", res.Fields.College)
}

func TestAnalyzeMessyDegraded(t *testing.T) {
	store := newMemoryStore()
	a := New(extractor.New(replying("", errors.New("connection refused"))),
		WithRecordStore(store), fixedID("id-2"))

	res, err := a.Analyze(context.Background(), Request{Text: messyResume, Mode: ModeMessy})
	require.NoError(t, err, "补全失败时返回降级结果而不是错误")
	assert.True(t, res.Degraded)
	assert.Contains(t, res.DegradedReason, "connection refused")
	assert.Equal(t, "9876543210", res.Fields.Contact)
	assert.Equal(t, "4 years 0 months (rounded down: 4 years)", res.Fields.Experience)
	assert.Equal(t, extractor.NotMentioned, res.Fields.Name)
	assert.Equal(t, constants.StatusDegraded, res.Status())

	rec, err := a.Get(context.Background(), "id-2")
	require.NoError(t, err)
	assert.True(t, rec.Degraded)
	assert.Equal(t, constants.StatusDegraded, rec.Status)
}

type brokenExtractor struct{ err error }

func (b brokenExtractor) ExtractStructured(string) extractor.FieldSet { return extractor.FieldSet{} }
func (b brokenExtractor) ExtractMessy(context.Context, string) (extractor.FieldSet, error) {
	return extractor.FieldSet{}, b.err
}

func TestAnalyzeMessyUnexpectedError(t *testing.T) {
	a := New(brokenExtractor{err: errors.New("boom")})
	_, err := a.Analyze(context.Background(), Request{Text: "x", Mode: ModeMessy})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractFailed)

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "extract", ae.Op)
}

func TestAnalyzeFailureForgetsText(t *testing.T) {
	dedup := &memoryDedup{}
	a := New(brokenExtractor{err: errors.New("boom")}, WithDedupIndex(dedup))

	_, err := a.Analyze(context.Background(), Request{Text: "x", Mode: ModeMessy})
	require.Error(t, err)
	assert.Empty(t, dedup.seen, "失败的文本不应留在去重集合里")

	ok := New(extractor.New(nil), WithDedupIndex(dedup))
	res, err := ok.Analyze(context.Background(), Request{Text: "x", Mode: ModeStructured})
	require.NoError(t, err)
	assert.False(t, res.SeenBefore)
}

func TestAnalyzeValidation(t *testing.T) {
	a := New(extractor.New(nil))

	_, err := a.Analyze(context.Background(), Request{Text: "  \n\t "})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.True(t, IsClientError(err))

	_, err = a.Analyze(context.Background(), Request{Text: "Name: Ram", Mode: "fuzzy"})
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.True(t, IsClientError(err))
}

func TestAnalyzeNormalizesInput(t *testing.T) {
	raw := "   Name: Asha\r\nDegree: BE  \r\n"
	a := New(extractor.New(nil))

	res, err := a.Analyze(context.Background(), Request{Text: raw, Mode: ModeStructured})
	require.NoError(t, err)
	assert.Equal(t, "Asha", res.Fields.Name)
	assert.Equal(t, "BE", res.Fields.Degree)

	// 提取器本身不做规范化，缩进的首行不算键值行
	assert.Equal(t, extractor.NotMentioned, extractor.ExtractStructured(raw).Name)
}

func TestAnalyzeStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = errors.New("mysql gone")

	lenient := New(extractor.New(nil), WithRecordStore(store))
	res, err := lenient.Analyze(context.Background(), Request{Text: structuredResume})
	require.NoError(t, err)
	assert.Equal(t, "Ram Kumar", res.Fields.Name)

	strict := New(extractor.New(nil), WithRecordStore(store), WithStrictStore(true))
	_, err = strict.Analyze(context.Background(), Request{Text: structuredResume})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailed)
	assert.ErrorIs(t, err, store.saveErr)
	assert.False(t, IsClientError(err))
}

func TestAnalyzeDedup(t *testing.T) {
	dedup := &memoryDedup{}
	a := New(extractor.New(nil), WithDedupIndex(dedup))

	first, err := a.Analyze(context.Background(), Request{Text: structuredResume})
	require.NoError(t, err)
	assert.False(t, first.SeenBefore)

	second, err := a.Analyze(context.Background(), Request{Text: structuredResume + "\r\n"})
	require.NoError(t, err)
	assert.True(t, second.SeenBefore, "换行归一后文本相同")
	assert.Equal(t, first.TextMD5, second.TextMD5)

	failing := New(extractor.New(nil), WithDedupIndex(&memoryDedup{err: errors.New("redis down")}))
	res, err := failing.Analyze(context.Background(), Request{Text: structuredResume})
	require.NoError(t, err, "去重失败不影响分析")
	assert.False(t, res.SeenBefore)
}

func TestAnalyzeFile(t *testing.T) {
	a := New(extractor.New(nil), WithTextExtractor(parser.NewRegistry(parser.PlainTextExtractor{})))

	res, err := a.AnalyzeFile(context.Background(), "cv.txt", []byte(structuredResume), ModeStructured)
	require.NoError(t, err)
	assert.Equal(t, constants.SourceUpload, res.Source)
	assert.Equal(t, "Anna University", res.Fields.College)

	_, err = a.AnalyzeFile(context.Background(), "cv.docx", []byte("x"), ModeStructured)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	assert.ErrorIs(t, err, parser.ErrUnsupportedFile)

	_, err = a.AnalyzeFile(context.Background(), "cv.txt", []byte{0xff, 0xfe}, ModeStructured)
	assert.ErrorIs(t, err, ErrParseFailed)

	noFiles := New(extractor.New(nil))
	_, err = noFiles.AnalyzeFile(context.Background(), "cv.txt", []byte("x"), ModeStructured)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestQueuedLifecycle(t *testing.T) {
	store := newMemoryStore()
	a := New(extractor.New(nil), WithRecordStore(store),
		WithTextExtractor(parser.NewRegistry(parser.PlainTextExtractor{})))
	ctx := context.Background()

	req := Request{AnalysisID: "q-1", Source: constants.SourceQueue, OriginalFilename: "cv.md", OriginalObjectKey: "resume/q-1/original.md"}
	require.NoError(t, a.SaveQueued(ctx, req))

	rec, err := a.Get(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusQueued, rec.Status)
	assert.Equal(t, "structured", rec.Mode)

	res, err := a.AnalyzeFileRequest(ctx, req, []byte(structuredResume))
	require.NoError(t, err)
	assert.Equal(t, "q-1", res.ID)

	rec, err = a.Get(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusCompleted, rec.Status)
	assert.Equal(t, "resume/q-1/original.md", rec.OriginalObjectKey)

	require.NoError(t, a.MarkStatus(ctx, "q-1", constants.StatusFailed, errors.New("bad file")))
	rec, err = a.Get(ctx, "q-1")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, rec.Status)
	assert.Equal(t, "bad file", rec.ErrorMessage)

	err = a.MarkStatus(ctx, "missing", constants.StatusFailed, nil)
	assert.ErrorIs(t, err, ErrAnalysisNotFound)
}

func TestGetWithoutStore(t *testing.T) {
	a := New(extractor.New(nil))
	_, err := a.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrStoreDisabled)
	assert.NoError(t, a.SaveQueued(context.Background(), Request{AnalysisID: "x"}))
	assert.NoError(t, a.MarkStatus(context.Background(), "x", constants.StatusFailed, nil))

	store := newMemoryStore()
	withStore := New(extractor.New(nil), WithRecordStore(store))
	_, err = withStore.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAnalysisNotFound)
}

func TestNewAnalysisIDIsUUIDv7(t *testing.T) {
	a := New(extractor.New(nil))
	id, err := a.NewAnalysisID()
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Equal(t, byte('7'), id[14], "版本位应为7")
}

func TestDurationUsesClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	a := New(extractor.New(nil))
	a.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 25 * time.Millisecond)
	}

	res, err := a.Analyze(context.Background(), Request{Text: structuredResume})
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.DurationMS)
	assert.Equal(t, base, res.CreatedAt)
}
