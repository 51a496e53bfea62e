// Package http exposes relays, subject keys and uploads over a JSON/multipart
// HTTP API.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/dmitrijs2005/exius/internal/server/services"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Relays is implemented by services.RelayService.
type Relays interface {
	Create(ctx context.Context, p services.CreateRelayParams) (*models.Relay, error)
	Get(ctx context.Context, name string) (*models.Relay, error)
	Update(ctx context.Context, p services.UpdateRelayParams) (*models.Relay, error)
	Delete(ctx context.Context, name string, dropTable bool) error
}

// SubjectKeys is implemented by services.SubjectKeyService.
type SubjectKeys interface {
	Issue(ctx context.Context, relayName, metaData string) (*models.SubjectKey, error)
	Get(ctx context.Context, relayName, key string) (*models.SubjectKey, error)
	List(ctx context.Context, relayName string) ([]*models.SubjectKey, error)
	Update(ctx context.Context, p services.UpdateSubjectKeyParams) (*models.SubjectKey, error)
	Delete(ctx context.Context, relayName, key string) error
}

// Permissions is implemented by services.PermissionService.
type Permissions interface {
	CanCreateRelay(ctx context.Context, userToken string) (string, error)
	CanAccessRelay(ctx context.Context, userToken, relayName string) (string, error)
	CanIssueKey(ctx context.Context, relayName, password string) error
}

// Repositories provisions code host repositories for relays.
type Repositories interface {
	EnsureRepository(ctx context.Context, repo string) (bool, error)
}

type Services struct {
	Relays       Relays
	SubjectKeys  SubjectKeys
	Uploads      *services.UploadService
	Permissions  Permissions
	Repositories Repositories
}

type Options struct {
	Address             string
	SecretKey           []byte
	UploadTokenValidity time.Duration
	RequestTimeout      time.Duration
	Debug               bool
}

type HTTPServer struct {
	address  string
	engine   *gin.Engine
	svc      Services
	secret   []byte
	validity time.Duration
	logger   logging.Logger
}

func NewHTTPServer(opts Options, svc Services, l logging.Logger) *HTTPServer {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &HTTPServer{
		address:  opts.Address,
		engine:   gin.New(),
		svc:      svc,
		secret:   opts.SecretKey,
		validity: opts.UploadTokenValidity,
		logger:   l.With("module", "http_server"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), requestTimeout(opts.RequestTimeout))
	s.routes()
	return s
}

func (s *HTTPServer) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	relay := s.engine.Group("/relay")
	relay.POST("/createRelay", s.createRelay)
	relay.POST("/getRelay", s.getRelay)
	relay.POST("/modifyRelay", s.modifyRelay)
	relay.POST("/deleteRelay", s.deleteRelay)

	keys := s.engine.Group("/subjectKey")
	keys.POST("/createSubjectKey", s.createSubjectKey)
	keys.POST("/getSubjectKey", s.getSubjectKey)
	keys.POST("/listSubjectKeys", s.listSubjectKeys)
	keys.POST("/modifySubjectKey", s.modifySubjectKey)
	keys.POST("/deleteSubjectKey", s.deleteSubjectKey)

	s.engine.POST("/upload", s.upload)
	s.engine.POST("/github/addRepository", s.addRepository)
}

// Handler returns the router. Tests drive it with httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
