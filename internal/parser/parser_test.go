package parser

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPDFTextExtractor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	extractor, err := NewPDFTextExtractor(ctx)
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor.parser)
	require.NotNil(t, extractor.logger, "PDF提取器应该有默认的logger")
	assert.Equal(t, 30*time.Second, extractor.timeout)

	customLogger := log.New(os.Stdout, "[测试PDF提取器] ", log.LstdFlags)
	custom, err := NewPDFTextExtractor(ctx, WithPDFLogger(customLogger), WithPDFTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, customLogger, custom.logger)
	assert.Equal(t, time.Second, custom.timeout)
}

func TestPDFTextExtractorRejectsGarbage(t *testing.T) {
	extractor, err := NewPDFTextExtractor(context.Background())
	require.NoError(t, err)

	_, err = extractor.ExtractText(context.Background(), "resume.pdf", []byte("this is not a pdf"))
	assert.Error(t, err)
}

func TestPlainTextExtractor(t *testing.T) {
	text, err := PlainTextExtractor{}.ExtractText(context.Background(), "r.txt", []byte("\ufeffName: Ram  \r\nSkills: Go\t\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "Name: Ram\nSkills: Go", text)

	_, err = PlainTextExtractor{}.ExtractText(context.Background(), "r.txt", []byte{0xff, 0xfe, 0xfd})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(PlainTextExtractor{})

	assert.True(t, r.Supports("cv.TXT"))
	assert.True(t, r.Supports("notes.md"))
	assert.False(t, r.Supports("cv.docx"))

	text, err := r.ExtractText(context.Background(), "cv.Md", []byte("Degree: Btech"))
	require.NoError(t, err)
	assert.Equal(t, "Degree: Btech", text)

	_, err = r.ExtractText(context.Background(), "cv.docx", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "a\nb\n\nc", NormalizeText("a \r\nb\r\n\r\nc  \n"))
	assert.Equal(t, "", NormalizeText(" \n\t "))
}
