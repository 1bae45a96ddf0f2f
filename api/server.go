// Package api 暴露推荐系统的 HTTP 接口。
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/recommend"
)

// EventPublisher 把交互事件投递到事件管道。
type EventPublisher interface {
	Publish(ctx context.Context, ev *core.InteractionEvent) error
}

// Server 装配 HTTP 路由及其依赖。
//
// 写路径（POST /interact）只做校验和投递，落库与训练由消费者异步完成；
// 读路径（GET /recommendations）走 cache-aside 的 recommend.Service。
type Server struct {
	Publisher EventPublisher
	Recs      *recommend.Service
	Profiles  core.ProfileProvider
	Cache     core.Store // 可为 nil
	Log       *zap.Logger
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Router 构建 gin 路由。
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	v1 := r.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.POST("/interact", s.handleInteract)
	v1.GET("/recommendations/:user_id", s.handleRecommendations)
	v1.GET("/users/:user_id/profile", s.handleProfile)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger().Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleInteract 接收一条交互事件并投递到消息管道。
// 接受即返回 202，持久化由消费者异步完成。
func (s *Server) handleInteract(c *gin.Context) {
	var ev core.InteractionEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := ev.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if err := s.Publisher.Publish(c.Request.Context(), &ev); err != nil {
		s.logger().Error("event publish failed",
			zap.String("user_id", ev.UserID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event pipeline unavailable"})
		return
	}

	// 新交互让该用户的画像缓存与推荐列表缓存都过期，下次读取重建
	if s.Cache != nil {
		ctx := c.Request.Context()
		for _, key := range []string{
			core.UserProfileCacheKey(ev.UserID),
			core.RecommendationCacheKey(ev.UserID),
		} {
			if err := s.Cache.Delete(ctx, key); err != nil {
				s.logger().Warn("cache invalidation failed",
					zap.String("user_id", ev.UserID), zap.String("key", key), zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "accepted",
		"user_id":    ev.UserID,
		"content_id": ev.ContentID,
	})
}

func (s *Server) handleRecommendations(c *gin.Context) {
	userID := c.Param("user_id")

	limit := recommend.DefaultServeLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer in [1, 100]"})
			return
		}
		limit = n
	}

	items, cached, err := s.Recs.TopForUser(c.Request.Context(), userID, limit)
	if err != nil {
		s.logger().Error("recommendation read failed",
			zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load recommendations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"cached":          cached,
		"count":           len(items),
		"recommendations": items,
	})
}

func (s *Server) handleProfile(c *gin.Context) {
	userID := c.Param("user_id")

	profile, err := s.Profiles.Profile(c.Request.Context(), userID)
	if err != nil {
		if core.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		s.logger().Error("profile read failed",
			zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// ListenAndServe 启动 HTTP 服务并在 ctx 取消时优雅关停。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger().Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
