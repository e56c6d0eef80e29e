package parser

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTikaTextExtractor(t *testing.T) {
	e := NewTikaTextExtractor("http://localhost:9998/")
	assert.Equal(t, "http://localhost:9998", e.ServerURL)
	assert.Equal(t, 60*time.Second, e.Client.Timeout)
	assert.True(t, e.extractAnnotations)
	assert.ElementsMatch(t, []string{".pdf", ".docx", ".doc"}, e.Extensions())

	customLogger := log.New(os.Stdout, "[测试Tika] ", log.LstdFlags)
	custom := NewTikaTextExtractor("http://tika", WithTikaLogger(customLogger), WithTikaTimeout(30*time.Second), WithAnnotations(false))
	assert.Equal(t, customLogger, custom.logger, "应该使用提供的自定义logger")
	assert.Equal(t, 30*time.Second, custom.Client.Timeout, "应该使用自定义超时")
	assert.False(t, custom.extractAnnotations)
}

// 创建一个模拟的Tika服务器，记录最后一次请求
func createMockTikaServer(t *testing.T, last *http.Header) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*last = r.Header.Clone()
		if r.URL.Path != "/tika" || r.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if len(body) == 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("\r\nName: Ram Kumar  \r\nDegree: Btech\r\n\r\n"))
	}))
}

func TestTikaExtractText(t *testing.T) {
	var last http.Header
	server := createMockTikaServer(t, &last)
	defer server.Close()

	e := NewTikaTextExtractor(server.URL, WithAnnotations(false))
	text, err := e.ExtractText(context.Background(), "/tmp/uploads/cv.PDF", []byte("%PDF-1.5 mock"))
	require.NoError(t, err)
	assert.Equal(t, "Name: Ram Kumar\nDegree: Btech", text)
	assert.Equal(t, "application/pdf", last.Get("Content-Type"))
	assert.Equal(t, "text/plain", last.Get("Accept"))
	assert.Equal(t, "cv.PDF", last.Get("X-Tika-Resource-Name"))
	assert.Equal(t, "false", last.Get("X-Tika-PDFExtractAnnotationText"))

	_, err = e.ExtractText(context.Background(), "cv.docx", []byte("PK mock"))
	require.NoError(t, err)
	assert.Equal(t, tikaContentTypes[".docx"], last.Get("Content-Type"))
}

func TestTikaExtractTextErrors(t *testing.T) {
	var last http.Header
	server := createMockTikaServer(t, &last)
	defer server.Close()
	e := NewTikaTextExtractor(server.URL)

	_, err := e.ExtractText(context.Background(), "cv.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = e.ExtractText(context.Background(), "cv.pdf", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")

	down := NewTikaTextExtractor("http://127.0.0.1:1", WithTikaTimeout(time.Second))
	_, err = down.ExtractText(context.Background(), "cv.pdf", []byte("x"))
	assert.Error(t, err)
}

func TestRegistryWithTika(t *testing.T) {
	r := NewRegistry(PlainTextExtractor{}, NewTikaTextExtractor("http://tika"))
	assert.True(t, r.Supports("a.docx"))
	assert.True(t, r.Supports("a.pdf"))
	assert.True(t, r.Supports("a.md"))
	assert.False(t, r.Supports("a.rtf"))
}
