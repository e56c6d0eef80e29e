package router

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"resume-analyzer-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

const (
	apiPrefix  = "/api/v1"
	healthPath = apiPrefix + "/health"
)

var errInvalidAPIKey = errors.New("invalid api key")

// RegisterRoutes 注册 API 路由。apiKeys 非空时除健康检查外的接口都需要 "Authorization: Bearer <key>"
func RegisterRoutes(h *server.Hertz, analysisHandler *handler.AnalysisHandler, apiKeys []string) {
	api := h.Group(apiPrefix)
	if len(apiKeys) > 0 {
		api.Use(apiKeyAuth(apiKeys))
	}

	api.POST("/resume/analyze", analysisHandler.AnalyzeText)
	api.POST("/resume/analyze/upload", analysisHandler.AnalyzeUpload)
	api.POST("/resume/submit", analysisHandler.Submit)
	api.GET("/resume/analyses/:id", analysisHandler.GetAnalysis)

	// 添加健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

func apiKeyAuth(apiKeys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
		keyauth.WithFilter(func(c context.Context, ctx *app.RequestContext) bool {
			return strings.HasPrefix(string(ctx.Path()), healthPath)
		}),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			for _, k := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, errInvalidAPIKey
		}),
		keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "未授权: " + err.Error()})
		}),
	)
}
