package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/local/linerelay/internal/dispatcher"
	mpkg "github.com/local/linerelay/internal/metrics"
	"github.com/local/linerelay/internal/statuscheck"
	"github.com/local/linerelay/internal/store"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

// DefaultTestPrompt is sent by /test_llm when no prompt is given.
const DefaultTestPrompt = "Explain who you are in three points."

// Backend is the slice of the invoker the HTTP surface needs.
type Backend interface {
	Provider() string
	Model() string
	Invoke(ctx context.Context, text string, deadline time.Duration) dispatcher.Result
	ListAvailableModels(ctx context.Context) ([]string, error)
}

type StatusReporter interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Deps struct {
	Backend       Backend
	State         store.State
	Webhook       http.Handler
	Status        StatusReporter
	HasBackendKey bool
	AdminToken    string
	TestTimeout   time.Duration

	// DiagLimit caps /test_llm and /list_models per client IP per minute; 0 disables.
	// RedisClient, when set, shares the limit across replicas.
	DiagLimit   uint
	RedisClient *redis.Client

	// Metrics mounts /metrics and the gin request collectors.
	Metrics bool
}

type Web struct {
	deps Deps
}

func New(deps Deps) *Web {
	if deps.TestTimeout <= 0 {
		deps.TestTimeout = 8 * time.Second
	}
	return &Web{deps: deps}
}

// Router builds the gin engine with middleware and all routes.
func (w *Web) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	w.RegisterRoutes(router)

	if w.deps.Metrics {
		p := ginprometheus.NewPrometheus("gin")
		p.Use(router)
	}
	return router
}

func (w *Web) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", w.handleHealth)
	r.HEAD("/health", w.handleHealth)
	r.GET("/diag", w.handleDiag)
	limited := r.Group("", w.diagLimiter()...)
	limited.GET("/list_models", w.handleListModels)
	limited.GET("/test_llm", w.handleTestLLM)
	if w.deps.Webhook != nil {
		r.POST("/webhook", gin.WrapH(w.deps.Webhook))
	}

	admin := r.Group("/talking", w.requireAdmin())
	admin.GET("", w.handleGetTalking)
	admin.PUT("", w.handlePutTalking)
}

func (w *Web) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (w *Web) handleDiag(c *gin.Context) {
	talking, err := w.deps.State.TalkingEnabled(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("diag: read talking state failed")
	}
	body := gin.H{
		"model":           w.deps.Backend.Model(),
		"provider":        w.deps.Backend.Provider(),
		"has_backend_key": w.deps.HasBackendKey,
		"working_status":  talking,
	}
	if s, ok := w.deps.Backend.(interface{ Stats() dispatcher.Stats }); ok {
		body["invoker"] = s.Stats()
	}
	if w.deps.Status != nil {
		body["checks"] = w.deps.Status.Summary(c.Request.Context())
	}
	c.JSON(http.StatusOK, body)
}

func (w *Web) handleListModels(c *gin.Context) {
	ids, err := w.deps.Backend.ListAvailableModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

func (w *Web) handleTestLLM(c *gin.Context) {
	prompt := strings.TrimSpace(c.Query("prompt"))
	if prompt == "" {
		prompt = DefaultTestPrompt
	}
	res := w.deps.Backend.Invoke(c.Request.Context(), prompt, w.deps.TestTimeout)
	if !res.OK() {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": res.Failure.Error(), "kind": res.Failure.Kind})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "text": res.Text})
}

type talkingBody struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (w *Web) handleGetTalking(c *gin.Context) {
	enabled, err := w.deps.State.TalkingEnabled(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

func (w *Web) handlePutTalking(c *gin.Context) {
	var body talkingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"enabled\": bool}"})
		return
	}
	if err := w.deps.State.SetTalkingEnabled(c.Request.Context(), *body.Enabled); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	mpkg.SetTalking(*body.Enabled)
	log.Info().Bool("enabled", *body.Enabled).Str("ip", c.ClientIP()).Msg("talking state changed via admin API")
	c.JSON(http.StatusOK, gin.H{"enabled": *body.Enabled})
}

func (w *Web) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if w.deps.AdminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "ADMIN_TOKEN not set"})
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(w.deps.AdminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// diagLimiter guards the endpoints that spend backend quota.
func (w *Web) diagLimiter() []gin.HandlerFunc {
	if w.deps.DiagLimit == 0 {
		return nil
	}
	var st rateli.Store
	if w.deps.RedisClient != nil {
		st = rateli.RedisStore(&rateli.RedisOptions{
			RedisClient: w.deps.RedisClient,
			Rate:        time.Minute,
			Limit:       w.deps.DiagLimit,
		})
	} else {
		st = rateli.InMemoryStore(&rateli.InMemoryOptions{
			Rate:  time.Minute,
			Limit: w.deps.DiagLimit,
		})
	}
	mw := rateli.RateLimiter(st, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			log.Warn().
				Str("ip", c.ClientIP()).
				Str("path", c.Request.URL.Path).
				Time("reset", info.ResetTime).
				Msg("diag rate limit exceeded")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, retry in " + time.Until(info.ResetTime).Round(time.Second).String()})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
	return []gin.HandlerFunc{mw}
}

// requestLogger logs one line per request, warn on 4xx and error on 5xx.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = log.Error()
		case status >= http.StatusBadRequest:
			ev = log.Warn()
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			ev = ev.Str("error", msg)
		}
		ev.Int("status", status).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}
