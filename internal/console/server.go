package console

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/httpmiddleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "login", "session", "pass", "enrolled", "student", "error"}

// Options configures a console Server.
type Options struct {
	Service *attendance.Service
	Media   attendance.Media
	School  config.School

	// Login is required only when OperatorPassword is set.
	OperatorPassword string
	JWTIssuer        string
	JWTSigningKey    string
	SessionTTL       time.Duration
	RateLimitPerMin  int

	Health func(ctx context.Context) map[string]bool
}

// Server is the operator console: server-rendered pages over the attendance service.
type Server struct {
	opts  Options
	repo  *attendance.Repository
	pages map[string]*template.Template
	now   func() time.Time
}

// New parses the page templates and returns a console.
func New(opts Options) (*Server, error) {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 120
	}
	pages, err := parsePages(templateFS)
	if err != nil {
		return nil, err
	}
	return &Server{
		opts:  opts,
		repo:  opts.Service.Repo(),
		pages: pages,
		now:   time.Now,
	}, nil
}

func parsePages(fsys fs.FS) (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"pct": func(n, total int) string {
			if total == 0 {
				return "-"
			}
			return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
		},
	}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(fsys, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// Handler builds the gin engine with every console route.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = 32 << 20
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(s.opts.RateLimitPerMin, s.opts.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)
	r.GET("/login", s.loginPage)
	r.POST("/login", s.login)
	r.POST("/logout", s.logout)

	g := r.Group("/")
	if s.opts.OperatorPassword != "" {
		g.Use(auth.OperatorAuth(s.opts.JWTSigningKey, s.opts.JWTIssuer, "/login"))
	}
	g.GET("/", s.home)
	g.GET("/session", s.session)
	g.POST("/session/take", s.take)
	g.POST("/session/override", s.override)
	g.POST("/students", s.addStudent)
	g.GET("/students/:id", s.student)
	g.GET("/students/:id/qr.png", s.studentQR)
	g.POST("/retrain", s.retrain)
	g.GET("/reports/day.csv", s.dayCSV)
	g.GET("/reports/month", s.monthReport)
	return r
}

func (s *Server) render(c *gin.Context, status int, page string, data gin.H) {
	t, ok := s.pages[page]
	if !ok {
		c.String(http.StatusInternalServerError, "unknown page %s", page)
		return
	}
	if data == nil {
		data = gin.H{}
	}
	_, data["LoggedIn"] = c.Get("claims")
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(c.Writer, "base", data); err != nil {
		log.Error().Err(err).Str("page", page).Msg("render page")
	}
}

// fail renders err on the error page with the status its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("console request failed")
	}
	s.render(c, status, "error", gin.H{
		"Title":   http.StatusText(status),
		"Kind":    apperr.Kind(err),
		"Message": err.Error(),
		"Back":    c.Request.Referer(),
	})
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	health := gin.H{"status": "ok"}
	if s.opts.Health != nil {
		for name, ok := range s.opts.Health(c.Request.Context()) {
			health[name] = ok
			if !ok && name == "db" {
				status = http.StatusServiceUnavailable
				health["status"] = "degraded"
			}
		}
	}
	c.JSON(status, health)
}

// Serve runs h on addr until ctx is cancelled, then drains in-flight requests.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second, // a pass over a large class photo can be slow
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("console listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down console")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info().Msg("console exited")
	return nil
}
