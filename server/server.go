// Package server - the HTTP upload surface around the counting pipeline.
package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/densitylab/crowdcount/config"
	"github.com/densitylab/crowdcount/inference"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server wires upload handling, flash messaging and metrics around a
// predictor. All pipeline work happens synchronously on the request
// goroutine; the predictor is the only shared state.
type Server struct {
	cfg     *config.Config
	pred    *inference.Predictor
	log     *logrus.Logger
	metrics *metrics
	router  *gin.Engine
}

// New builds the HTTP server around cfg and pred. A nil logger falls back to
// the logrus standard logger.
func New(cfg *config.Config, pred *inference.Predictor, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, pred: pred, log: log, metrics: newMetrics()}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))
	router.Use(sessions.Sessions("crowdcount", cookie.NewStore([]byte(cfg.SessionSecret))))

	router.GET("/", s.index)
	router.POST("/upload", s.upload)
	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	s.router = router
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves HTTP on the configured address until the listener fails.
func (s *Server) Run() error { return s.router.Run(s.cfg.ListenAddr) }
