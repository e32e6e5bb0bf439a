// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/amirphl/esim-relay/app/dto"
	"github.com/amirphl/esim-relay/app/handlers"
	"github.com/amirphl/esim-relay/app/middleware"
	"github.com/amirphl/esim-relay/config"
	"github.com/amirphl/esim-relay/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app               *fiber.App
	cfg               *config.ProductionConfig
	callbackHandler   handlers.CallbackHandlerInterface
	authHandler       handlers.AuthHandlerInterface
	adminOrderHandler handlers.AdminOrderHandlerInterface
	authMiddleware    *middleware.AuthMiddleware
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	callbackHandler handlers.CallbackHandlerInterface,
	authHandler handlers.AuthHandlerInterface,
	adminOrderHandler handlers.AdminOrderHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
) Router {
	app := fiber.New(fiber.Config{
		AppName:          "esim-relay",
		ServerHeader:     "esim-relay",
		ErrorHandler:     errorHandler,
		BodyLimit:        cfg.Server.BodyLimit,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		ProxyHeader:      cfg.Server.ProxyHeader,
		TrustProxy:       len(cfg.Server.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{Proxies: cfg.Server.TrustedProxies},
		JSONEncoder:      json.Marshal,
		JSONDecoder:      json.Unmarshal,
	})

	return &FiberRouter{
		app:               app,
		cfg:               cfg,
		callbackHandler:   callbackHandler,
		authHandler:       authHandler,
		adminOrderHandler: adminOrderHandler,
		authMiddleware:    authMiddleware,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	r.app.Get("/health", r.healthCheck)
	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api")
	api.Use(limiter.New(limiter.Config{
		Max:          r.cfg.Security.GlobalRateLimit,
		Expiration:   r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
		LimitReached: rateLimitReached,
	}))

	requireJSON := middleware.RequireJSONContent()
	adminAuth := r.authMiddleware.AdminAuthenticate()

	// Vendor callbacks
	joytel := api.Group("/joytel")
	callbackIPs := middleware.IPWhitelist(r.cfg.Security.CallbackIPWhitelist)
	joytel.Post("/esim/callback", callbackIPs, requireJSON, r.callbackHandler.ProvisioningCallback)
	joytel.Post("/notify/coupon/redeem", callbackIPs, requireJSON, r.callbackHandler.RedemptionCallback)
	joytel.Post("/notify/esim/progress", callbackIPs, requireJSON, r.callbackHandler.ProgressEvent)

	// Manual vendor operations
	joytel.Post("/esim/order", adminAuth, requireJSON, r.adminOrderHandler.ManualSubmit)
	joytel.Post("/coupon/redeem", adminAuth, requireJSON, r.adminOrderHandler.Redeem)
	joytel.Post("/esim/status-usage", adminAuth, requireJSON, r.adminOrderHandler.StatusUsage)

	// Admin session
	authLimiter := limiter.New(limiter.Config{
		Max:          r.cfg.Security.AuthRateLimit,
		Expiration:   r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
		LimitReached: rateLimitReached,
	})
	api.Post("/login", authLimiter, requireJSON, r.authHandler.Login)
	api.Post("/logout", r.authHandler.Logout)
	api.Get("/auth/status", r.authHandler.Status)

	// Admin dashboard
	admin := api.Group("/admin", adminAuth)
	admin.Get("/orders", r.adminOrderHandler.ListOrders)
	admin.Get("/orders/export", r.adminOrderHandler.ExportOrders)
	admin.Get("/callbacks", r.adminOrderHandler.ListCallbacks)
	admin.Post("/reconcile", r.adminOrderHandler.Reconcile)

	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		XDNSPrefetchControl:   "off",
		XDownloadOptions:      "noopen",
		XPermittedCrossDomain: "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     r.cfg.Security.AllowedHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: r.cfg.Security.AllowCredentials && !containsWildcard(r.cfg.Security.AllowedOrigins),
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	}

	r.app.Use(middleware.Metrics(r.cfg.Metrics.Path))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == r.cfg.Metrics.Path
		},
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.GetRespHeader("X-Request-ID"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	return r.app.Listen(address)
}

func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"env":     r.cfg.Deployment.Environment,
		"version": r.cfg.Deployment.Version,
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":   c.Path(),
				"method": c.Method(),
			},
		},
		RequestID: c.GetRespHeader("X-Request-ID"),
	})
}

func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error:     dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
		RequestID: c.GetRespHeader("X-Request-ID"),
	})
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	log.Printf("Error %d: %v", code, err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: "INTERNAL_ERROR",
			Details: fiber.Map{"timestamp": utils.UTCNow().Unix()},
		},
		RequestID: c.GetRespHeader("X-Request-ID"),
	})
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
