// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, route handlers and the chat websocket gateway. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging/redaction,
// panic recovery, metrics, CORS, security headers, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-shop-chat/docs"
	"github.com/tbourn/go-shop-chat/internal/chat"
	"github.com/tbourn/go-shop-chat/internal/config"
	"github.com/tbourn/go-shop-chat/internal/http/handlers"
	"github.com/tbourn/go-shop-chat/internal/http/middleware"
	"github.com/tbourn/go-shop-chat/internal/http/ws"
	"github.com/tbourn/go-shop-chat/internal/repo"
	"github.com/tbourn/go-shop-chat/internal/services"
)

// WSPath is where the chat gateway accepts websocket upgrades.
const WSPath = "/ws/chat"

// RegisterRoutes attaches all middleware and endpoints to r and returns the
// websocket gateway so the caller can shut it down with the server.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP; websocket upgrades bypass it)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) *ws.Gateway {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"Sec-WebSocket-Protocol"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStorePaths: []string{joinPath(apiBase, "/auth/")},
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := repo.Ping(ctx, db); err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	issuer := &services.TokenIssuer{
		Secret: []byte(cfg.Auth.TokenSecret),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL,
	}
	verifier := &services.JWTVerifier{DB: db, Secret: issuer.Secret, Issuer: issuer.Issuer}
	authSvc := services.NewAuthService(db, issuer)
	authSvc.HashCost = cfg.Auth.HashCost
	roomSvc := services.NewRoomService(db, repo.Rooms{})
	msgSvc := services.NewMessageService(db)
	msgSvc.MaxBodyRunes = cfg.Chat.MaxBodyRunes
	msgSvc.DedupTTL = cfg.Chat.DedupTTL

	h := handlers.New(authSvc, roomSvc, msgSvc, cfg.Auth.TokenTTL)

	mgr := chat.NewManager(verifier, roomSvc, msgSvc, authSvc, chat.NewRegistry(), chat.Options{
		MsgRPS:   cfg.Chat.MsgRPS,
		MsgBurst: cfg.Chat.MsgBurst,
	})
	gw := ws.NewGateway(mgr, ws.Options{
		SendBuffer:     cfg.Chat.SendBuffer,
		PingInterval:   cfg.Chat.PingInterval,
		WriteTimeout:   cfg.Chat.WriteTimeout,
		EventTimeout:   cfg.Chat.EventTimeout,
		MaxFrameBytes:  cfg.Chat.MaxFrameBytes,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	// Real-time gateway. Compression would break the upgrade, so it stays
	// outside the gzip group.
	r.GET(WSPath, gw.Handle)

	// Public API
	api := groupWithPrefix(r, apiBase)
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		authed := api.Group("", middleware.AuthRequired(verifier))
		authed.GET("/rooms", h.ListRooms)
		authed.GET("/rooms/:id/messages", h.ListMessages)
	}

	return gw
}

func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "ETag", "Content-Length"}
	methods := []string{"GET", "POST", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps every request body at maxBytes using http.MaxBytesReader.
// Reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
