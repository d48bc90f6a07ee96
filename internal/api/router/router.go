package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"student-roster/config"
	"student-roster/internal/api/handler"
	"student-roster/internal/api/middleware"
	"student-roster/pkg/jwt"
	"student-roster/pkg/redis"
	"student-roster/pkg/response"
)

// Setup 初始化并返回 Gin 路由引擎
// auth.require_token 开启时，写操作与导入需携带 Bearer Token；读接口与推送始终开放
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "接口不存在")
	})
	r.NoMethod(func(c *gin.Context) {
		response.Error(c, 405, "请求方法不被允许")
	})

	// ── 运行状态 ──
	r.GET("/health", h.Meta.Health)
	r.GET("/client-config", h.Meta.ClientConfig)

	// ── 认证 ──
	r.POST("/auth/login",
		middleware.RateLimit(rdb, cfg.Auth.LoginRateLimit, time.Minute, logger),
		h.Auth.Login,
	)

	// ── 学生记录 ──
	records := r.Group("/records")
	{
		records.GET("", h.Record.ListRecords)
		records.GET("/search", h.Record.SearchRecords)
		records.GET("/changes", h.Feed.Stream)
		records.GET("/export", h.Export.ExportRecords)
		records.GET("/:id", h.Record.GetRecord)

		writes := records.Group("")
		if cfg.Auth.RequireToken {
			writes.Use(middleware.JWTAuth(jwtMgr))
		}
		{
			writes.POST("", h.Record.CreateRecord)
			writes.POST("/import", h.Record.ImportRecords)
			writes.PUT("/:id", h.Record.UpdateRecord)
			writes.PUT("/:id/attendance", h.Record.UpdateAttendance)
			writes.DELETE("/:id", h.Record.DeleteRecord)
		}
	}

	return r
}
