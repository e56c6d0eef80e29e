package analyzer

import (
	"context"

	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/internal/storage/models"
)

// FieldExtractor 两种提取模式，*extractor.Extractor 实现了它
type FieldExtractor interface {
	ExtractStructured(text string) extractor.FieldSet
	ExtractMessy(ctx context.Context, text string) (extractor.FieldSet, error)
}

// TextExtractor 把上传文件转成文本，*parser.Registry 实现了它
type TextExtractor interface {
	Supports(name string) bool
	ExtractText(ctx context.Context, name string, data []byte) (string, error)
}

// RecordStore 分析记录存储，*storage.MySQL 实现了它
type RecordStore interface {
	SaveAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error
	GetAnalysisRecord(ctx context.Context, analysisID string) (*models.AnalysisRecord, error)
	UpdateAnalysisStatus(ctx context.Context, analysisID, status, errMsg string) error
}

// DedupIndex 记录分析过的文本MD5，*storage.Redis 实现了它
type DedupIndex interface {
	CheckAndAddTextMD5(ctx context.Context, md5Hex string) (bool, error)
	RemoveTextMD5(ctx context.Context, md5Hex string) error
}
