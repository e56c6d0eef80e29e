package analyzer

import (
	"context"
	"testing"

	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/llm"
	"resume-analyzer-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleterChain(t *testing.T) {
	cfg := config.DefaultConfig()

	c := NewCompleter(cfg, nil)
	_, ok := c.(*llm.ChatCompleter)
	assert.True(t, ok, "没有 Redis 时不加缓存")

	c = NewCompleter(cfg, &storage.Storage{Redis: &storage.Redis{}})
	_, ok = c.(*storage.CachedCompleter)
	assert.True(t, ok)

	cfg.Extractor.CacheCompletions = false
	c = NewCompleter(cfg, &storage.Storage{Redis: &storage.Redis{}})
	_, ok = c.(*llm.ChatCompleter)
	assert.True(t, ok)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Extractor.DefaultMode = "messy"

	a, err := NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeMessy, a.DefaultMode())
	assert.True(t, a.files.Supports("cv.txt"))
	assert.Nil(t, a.store)
	assert.Nil(t, a.dedup)

	res, err := a.Analyze(context.Background(), Request{Text: structuredResume, Mode: ModeStructured})
	require.NoError(t, err)
	assert.Equal(t, "Ram Kumar", res.Fields.Name)

	assert.False(t, a.files.Supports("cv.docx"))

	cfg.Parser.Backend = "tika"
	a, err = NewFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.True(t, a.files.Supports("cv.docx"))

	cfg.Extractor.DefaultMode = "fuzzy"
	_, err = NewFromConfig(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnknownMode)
}
