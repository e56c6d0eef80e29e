package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"resume-analyzer-go/internal/analyzer"
	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/constants"
	"resume-analyzer-go/internal/extractor"
	"resume-analyzer-go/internal/logger"
	"resume-analyzer-go/internal/storage"
	"resume-analyzer-go/internal/storage/models"
	"resume-analyzer-go/pkg/utils"

	"github.com/cloudwego/hertz/pkg/app"
	hutils "github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// ObjectUploader 保存异步分析的原始文件，*storage.MinIO 实现了它
type ObjectUploader interface {
	UploadOriginal(ctx context.Context, analysisID, filename string, data []byte) (string, error)
}

// AnalysisPublisher 投递异步分析请求，*storage.RabbitMQ 实现了它
type AnalysisPublisher interface {
	PublishAnalysisRequest(ctx context.Context, msg *storage.AnalysisRequestMessage) error
}

// AnalysisHandler 简历字段提取相关接口
type AnalysisHandler struct {
	analyzer  *analyzer.Analyzer
	upload    config.UploadConfig
	uploader  ObjectUploader
	publisher AnalysisPublisher
}

// NewAnalysisHandler uploader 或 publisher 为 nil 时异步提交接口返回 503
func NewAnalysisHandler(a *analyzer.Analyzer, upload config.UploadConfig, uploader ObjectUploader, publisher AnalysisPublisher) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:  a,
		upload:    upload,
		uploader:  uploader,
		publisher: publisher,
	}
}

// AnalyzeRequest 文本分析请求体
type AnalyzeRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode,omitempty"`
}

// SubmitResponse 异步提交响应
type SubmitResponse struct {
	AnalysisID string `json:"analysis_id"`
	Status     string `json:"status"`
}

// RecordResponse 查询分析记录的响应
type RecordResponse struct {
	AnalysisID       string              `json:"analysis_id"`
	Status           string              `json:"status"`
	Mode             string              `json:"mode"`
	Source           string              `json:"source,omitempty"`
	OriginalFilename string              `json:"original_filename,omitempty"`
	Fields           *extractor.FieldSet `json:"fields,omitempty"`
	Report           string              `json:"report,omitempty"`
	Degraded         bool                `json:"degraded"`
	DegradedReason   string              `json:"degraded_reason,omitempty"`
	Error            string              `json:"error,omitempty"`
	TextMD5          string              `json:"text_md5,omitempty"`
	DurationMS       int64               `json:"duration_ms"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// parseMode 空字符串交给分析器使用默认模式
func parseMode(s string) (analyzer.Mode, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return analyzer.ParseMode(s)
}

// AnalyzeText POST /resume/analyze
func (h *AnalysisHandler) AnalyzeText(c context.Context, ctx *app.RequestContext) {
	var req AnalyzeRequest
	if err := json.Unmarshal(ctx.Request.Body(), &req); err != nil {
		ctx.JSON(consts.StatusBadRequest, hutils.H{"error": "请求体不是有效的JSON"})
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		writeError(ctx, err)
		return
	}

	result, err := h.analyzer.Analyze(c, analyzer.Request{Text: req.Text, Mode: mode, Source: constants.SourceText})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}

// AnalyzeUpload POST /resume/analyze/upload，同步解析上传文件
func (h *AnalysisHandler) AnalyzeUpload(c context.Context, ctx *app.RequestContext) {
	filename, data, ok := h.readUpload(ctx)
	if !ok {
		return
	}
	mode, err := parseMode(ctx.PostForm("mode"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	result, err := h.analyzer.AnalyzeFile(c, filename, data, mode)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, result)
}

// Submit POST /resume/submit，原始文件存入对象存储后投递到分析队列
func (h *AnalysisHandler) Submit(c context.Context, ctx *app.RequestContext) {
	if h.uploader == nil || h.publisher == nil {
		ctx.JSON(consts.StatusServiceUnavailable, hutils.H{"error": "异步分析未启用"})
		return
	}

	filename, data, ok := h.readUpload(ctx)
	if !ok {
		return
	}
	mode, err := parseMode(ctx.PostForm("mode"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	if mode == "" {
		mode = h.analyzer.DefaultMode()
	}

	analysisID, err := h.analyzer.NewAnalysisID()
	if err != nil {
		writeError(ctx, fmt.Errorf("生成分析ID失败: %w", err))
		return
	}

	objectKey, err := h.uploader.UploadOriginal(c, analysisID, filename, data)
	if err != nil {
		logger.Ctx(c).Error().Err(err).Str("analysis_id", analysisID).Msg("上传原始简历失败")
		writeError(ctx, err)
		return
	}

	req := analyzer.Request{
		AnalysisID:        analysisID,
		Mode:              mode,
		Source:            constants.SourceQueue,
		OriginalFilename:  filename,
		OriginalObjectKey: objectKey,
	}
	if err := h.analyzer.SaveQueued(c, req); err != nil {
		// 记录写入失败不阻止投递，worker 完成后会重新写入
		logger.Ctx(c).Warn().Err(err).Str("analysis_id", analysisID).Msg("写入排队记录失败")
	}

	msg := &storage.AnalysisRequestMessage{
		AnalysisID:        analysisID,
		SubmittedAt:       time.Now(),
		Mode:              string(mode),
		OriginalFilename:  filename,
		OriginalObjectKey: objectKey,
		RawFileMD5:        utils.CalculateMD5(data),
	}
	if err := h.publisher.PublishAnalysisRequest(c, msg); err != nil {
		logger.Ctx(c).Error().Err(err).Str("analysis_id", analysisID).Msg("投递分析请求失败")
		_ = h.analyzer.MarkStatus(c, analysisID, constants.StatusFailed, err)
		writeError(ctx, err)
		return
	}

	ctx.JSON(consts.StatusAccepted, SubmitResponse{AnalysisID: analysisID, Status: constants.StatusQueued})
}

// GetAnalysis GET /resume/analyses/:id
func (h *AnalysisHandler) GetAnalysis(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	rec, err := h.analyzer.Get(c, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	resp, err := toRecordResponse(rec)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func toRecordResponse(rec *models.AnalysisRecord) (*RecordResponse, error) {
	resp := &RecordResponse{
		AnalysisID:       rec.AnalysisID,
		Status:           rec.Status,
		Mode:             rec.Mode,
		Source:           rec.Source,
		OriginalFilename: rec.OriginalFilename,
		Report:           rec.Report,
		Degraded:         rec.Degraded,
		DegradedReason:   rec.DegradedReason,
		Error:            rec.ErrorMessage,
		TextMD5:          rec.TextMD5,
		DurationMS:       rec.DurationMS,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if len(rec.FieldsJSON) > 0 && string(rec.FieldsJSON) != "null" {
		var fields extractor.FieldSet
		if err := rec.DecodeFields(&fields); err != nil {
			return nil, fmt.Errorf("解析字段JSON失败: %w", err)
		}
		resp.Fields = &fields
	}
	return resp, nil
}

// readUpload 读取 file 字段并检查大小和扩展名，失败时已写好响应
func (h *AnalysisHandler) readUpload(ctx *app.RequestContext) (string, []byte, bool) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, hutils.H{"error": "文件未找到"})
		return "", nil, false
	}
	if limit := h.upload.UploadMaxBytes(); limit > 0 && fileHeader.Size > limit {
		ctx.JSON(consts.StatusRequestEntityTooLarge, hutils.H{"error": fmt.Sprintf("文件超过 %d MB", h.upload.MaxSizeMB)})
		return "", nil, false
	}
	ext := filepath.Ext(fileHeader.Filename)
	if len(h.upload.AllowedExtensions) > 0 && !h.upload.IsAllowedExtension(ext) {
		ctx.JSON(consts.StatusBadRequest, hutils.H{"error": fmt.Sprintf("不支持的文件类型: %q", ext)})
		return "", nil, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, hutils.H{"error": "打开文件失败"})
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		ctx.JSON(consts.StatusInternalServerError, hutils.H{"error": "读取文件失败"})
		return "", nil, false
	}
	return fileHeader.Filename, data, true
}

// writeError 按错误类型选择状态码
func writeError(ctx *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case analyzer.IsClientError(err):
		status = consts.StatusBadRequest
	case errors.Is(err, analyzer.ErrAnalysisNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, analyzer.ErrStoreDisabled):
		status = consts.StatusServiceUnavailable
	}
	ctx.JSON(status, hutils.H{"error": err.Error()})
}
