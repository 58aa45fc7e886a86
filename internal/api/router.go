package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/storage"
)

type ArticleLister interface {
	ListArticles(ctx context.Context, topic string, limit int) ([]storage.ArticleRecord, error)
	ListTopics(ctx context.Context) ([]string, error)
}

type Runner interface {
	RunOnce(ctx context.Context) (scheduler.Report, error)
}

type Server struct {
	store  ArticleLister
	runner Runner
}

// NewServer store 为 nil 时文章相关接口返回 503
func NewServer(store ArticleLister, runner Runner) *Server {
	return &Server{store: store, runner: runner}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/articles", s.listArticles)
		v1.GET("/topics", s.listTopics)
		v1.POST("/runs", s.triggerRun)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listArticles(c *gin.Context) {
	if s.store == nil {
		storageUnavailable(c)
		return
	}
	topic := c.Query("topic")

	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.store.ListArticles(c.Request.Context(), topic, limit)
	if err != nil {
		log.Printf("list articles error: %v", err)
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) listTopics(c *gin.Context) {
	if s.store == nil {
		storageUnavailable(c)
		return
	}
	topics, err := s.store.ListTopics(c.Request.Context())
	if err != nil {
		log.Printf("list topics error: %v", err)
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    topics,
	})
}

// triggerRun 同步执行一轮，返回统计信息
func (s *Server) triggerRun(c *gin.Context) {
	rep, err := s.runner.RunOnce(c.Request.Context())
	if errors.Is(err, scheduler.ErrRunning) {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "run_in_progress",
			"message": "a run is already in progress",
		})
		return
	}

	data := gin.H{
		"startedAt":  rep.StartedAt,
		"durationMs": rep.Duration.Milliseconds(),
		"entries":    rep.Entries,
		"candidates": rep.Candidates,
		"articles":   len(rep.Articles),
		"outcomes":   rep.Outcomes,
		"saved":      rep.Saved,
	}
	if len(rep.Digest) > 0 {
		digest := make(map[string]gin.H, len(rep.Digest))
		for _, d := range rep.Digest {
			digest[d.Topic] = gin.H{"summary": d.Summary, "insights": d.Insights}
		}
		data["digest"] = digest
	}

	if err != nil {
		// 部分失败：结果仍然返回
		log.Printf("run error: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"code":    "partial",
			"message": err.Error(),
			"data":    data,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func storageUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"code":    "storage_unavailable",
		"message": "article storage is not configured",
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

// BasicAuth 为整个站点增加一个简单的 Basic Auth 访问密码。
// /health 不做认证，便于健康检查。
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
