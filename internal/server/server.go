// Package server is TGCloud's optional local HTTP frontend: a thin gin
// adapter over internal/engine, grounded on the teacher's main.go and
// controllers/file_controller.go (health/ready probes, CORS, graceful
// shutdown, one handler per file operation).
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/angel2rider/tgcloud/internal/models"
)

// Engine is the subset of *engine.Engine the HTTP frontend drives.
type Engine interface {
	UploadFile(ctx context.Context, path string, sink chan<- models.UploadEvent) error
	DownloadFile(ctx context.Context, name, outPath string, sink chan<- models.DownloadEvent) error
	DeleteFile(ctx context.Context, name string) error
	ListFiles(ctx context.Context, prefix string) ([]models.FileMetadata, error)
	RenameFile(ctx context.Context, oldName, newName string) error
}

// Server wraps a gin router and an http.Server around an Engine.
type Server struct {
	router *gin.Engine
	http   *http.Server
	ready  func() bool
}

// New builds the router: health/ready probes plus the file routes, CORS
// configured the same permissive way the teacher's main.go does for its
// browser-facing frontend.
func New(addr string, ready func() bool, h *Handlers) *Server {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if ready != nil && !ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.POST("/files", h.Upload)
	router.GET("/files", h.List)
	router.GET("/files/:name", h.Download)
	router.DELETE("/files/:name", h.Delete)
	router.PATCH("/files/:name", h.Rename)

	return &Server{
		router: router,
		ready:  ready,
		http:   &http.Server{Addr: addr, Handler: router},
	}
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// gracefully with a 10 second drain window, mirroring main.go's SIGINT
// handling.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	return s.http.Shutdown(shutdownCtx)
}
