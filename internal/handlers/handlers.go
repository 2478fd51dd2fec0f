package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/image-relay/internal/apierror"
	"github.com/example/image-relay/internal/middleware"
	"github.com/example/image-relay/internal/provider"
	"github.com/example/image-relay/internal/upload"
	"github.com/example/image-relay/internal/usecase"
)

// MaxMultipartMemory keeps a whole accepted upload in memory.
const MaxMultipartMemory = upload.MaxRequestSize

// Relay is the use case behind the HTTP surface.
type Relay interface {
	Process(ctx context.Context, requestID string, kind provider.Kind, file *upload.File) (*provider.NormalizedResult, error)
	UsageSummary(ctx context.Context) (*usecase.UsageSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. apiMiddleware
// runs in front of every /api route.
func RegisterRoutes(router *gin.Engine, relay Relay, apiMiddleware ...gin.HandlerFunc) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "message": "Image relay API is running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	api := router.Group("/api", apiMiddleware...)
	api.POST("/remove-bg", relayHandler(relay, provider.RemoveBackground))
	api.POST("/enhance-image", relayHandler(relay, provider.EnhanceImage))
	api.GET("/stats", func(c *gin.Context) {
		summary, err := relay.UsageSummary(c.Request.Context())
		if errors.Is(err, usecase.ErrLedgerDisabled) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Usage statistics are not enabled"})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": apierror.MsgNotFound})
	})
}

func relayHandler(relay Relay, kind provider.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := upload.FromRequest(c)
		if err != nil {
			writeError(c, err)
			return
		}

		result, err := relay.Process(c.Request.Context(), middleware.RequestIDFrom(c), kind, file)
		if err != nil {
			writeError(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
		c.Data(http.StatusOK, result.ContentType, result.Data)
	}
}

func writeError(c *gin.Context, err error) {
	outcome := apierror.Translate(err)
	c.AbortWithStatusJSON(outcome.Status, outcome)
}
