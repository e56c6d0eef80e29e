package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"resume-analyzer-go/internal/analyzer"
	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(completer extractor.Completer) (*runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	a := analyzer.New(extractor.New(completer),
		analyzer.WithTextExtractor(parser.NewRegistry(parser.PlainTextExtractor{})))
	return &runner{analyzer: a, out: out}, out
}

func TestInteractiveParagraphs(t *testing.T) {
	r, out := newTestRunner(nil)
	input := strings.Join([]string{
		"Name: Ram Kumar",
		"Degree: Btech",
		"",
		"",
		"Name: Asha",
		"",
		"exit",
		"Name: Never Reached",
		"",
	}, "\n")

	require.NoError(t, r.interactive(context.Background(), strings.NewReader(input), analyzer.ModeStructured))
	assert.Equal(t, 1, strings.Count(out.String(), "Name: Ram Kumar\n"))
	assert.Equal(t, 1, strings.Count(out.String(), "Name: Asha\n"))
	assert.NotContains(t, out.String(), "Never Reached")
}

func TestInteractiveEOFFlushesLastParagraph(t *testing.T) {
	r, out := newTestRunner(nil)
	require.NoError(t, r.interactive(context.Background(), strings.NewReader("Name: Ram Kumar"), ""))
	assert.Contains(t, out.String(), "Name: Ram Kumar\n")
	assert.Contains(t, out.String(), "Skills: Not mentioned\n")
}

func TestInteractiveModeSwitch(t *testing.T) {
	reply := extractor.CompleterFunc(func(context.Context, string) (string, error) {
		return "Name: Asha\nCollege name: IIT", nil
	})
	r, out := newTestRunner(reply)

	input := ":mode bogus\n:mode 2\nAsha studied at IIT, 2015-2019.\n\nquit\n"
	require.NoError(t, r.interactive(context.Background(), strings.NewReader(input), analyzer.ModeStructured))
	assert.Contains(t, out.String(), "未知的提取模式")
	assert.Contains(t, out.String(), "[messy]")
	assert.Contains(t, out.String(), "College name: IIT\n")
	assert.Contains(t, out.String(), "Years of Experience: 4 years 0 months (rounded down: 4 years)\n")
}

func TestInteractiveExitOnlyAtParagraphStart(t *testing.T) {
	r, out := newTestRunner(nil)
	input := "Name: Ram\nexit\n\n"
	require.NoError(t, r.interactive(context.Background(), strings.NewReader(input), analyzer.ModeStructured))
	assert.Contains(t, out.String(), "Name: Ram\n", "段落中间的 exit 只是普通文本")
}

func TestAnalyzeFileAndJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cv.txt")
	require.NoError(t, os.WriteFile(path, []byte(demoStructured), 0o644))

	r, out := newTestRunner(nil)
	r.asJSON = true
	require.NoError(t, r.analyzeFile(context.Background(), path, analyzer.ModeStructured))
	assert.Contains(t, out.String(), `"name": "Ram Kumar"`)
	assert.Contains(t, out.String(), `"source": "cli"`)

	err := r.analyzeFile(context.Background(), filepath.Join(dir, "missing.txt"), "")
	assert.Error(t, err)
}

func TestDemoPrintsBothModes(t *testing.T) {
	r, out := newTestRunner(nil)
	require.NoError(t, r.demo(context.Background()))
	assert.Contains(t, out.String(), "Contact: 9876543210\n")
	assert.Contains(t, out.String(), "(降级结果:")
}
