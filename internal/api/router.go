package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	cors "github.com/itsjamie/gin-cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robocompute/go-robocompute/build"
	"github.com/robocompute/go-robocompute/constants"
	"github.com/robocompute/go-robocompute/internal/computing"
	"github.com/robocompute/go-robocompute/internal/models"
	"github.com/robocompute/go-robocompute/internal/ratelimit"
)

type Config struct {
	AdminToken       string
	RequireSignature bool
	TimestampSkew    time.Duration
	CorsOrigins      string
	Pprof            bool
	Now              func() time.Time
}

type Server struct {
	market  *computing.Market
	hub     *computing.Hub
	limiter ratelimit.Limiter
	cfg     Config
}

// NewServer wires the handlers to market. hub delivers the events the stream
// endpoint forwards; limiter may be nil to disable rate limiting.
func NewServer(market *computing.Market, hub *computing.Hub, limiter ratelimit.Limiter, cfg Config) *Server {
	return &Server{market: market, hub: hub, limiter: limiter, cfg: cfg}
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	origins := s.cfg.CorsOrigins
	if origins == "" {
		origins = "*"
	}
	r.Use(cors.Middleware(cors.Config{
		Origins:         origins,
		Methods:         "GET, PUT, POST, PATCH, DELETE",
		RequestHeaders:  "Origin, Authorization, Content-Type, X-Wallet-Signature, X-Timestamp",
		ExposedHeaders:  "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After",
		MaxAge:          50 * time.Second,
		ValidateHeaders: false,
	}))
	if s.cfg.Pprof {
		pprof.Register(r)
	}
	r.NoRoute(noRoute)

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group(constants.ApiVersionPath)
	v1.GET("/health", s.health)
	adminManager(v1.Group("/admin", s.adminOnly), s)

	authed := v1.Group("", s.authenticate, s.rateLimit, s.verifySignature)
	taskManager(authed.Group("/tasks"), s)
	ledgerManager(authed, s)
	authed.GET("/providers/search", s.searchProviders)
	authed.GET("/providers/:id", s.getProvider)
	providerManager(authed.Group("/providers/:id", s.ownProvider), s)
	return r
}

func adminManager(router *gin.RouterGroup, s *Server) {
	router.POST("/accounts", s.createAccount)
	router.GET("/accounts", s.listAccounts)
}

func taskManager(router *gin.RouterGroup, s *Server) {
	router.POST("", s.submitTask)
	router.GET("", s.listTasks)
	router.GET("/:id", s.getTask)
	router.PATCH("/:id", s.updateTask)
	router.DELETE("/:id", s.cancelTask)
	router.GET("/:id/stream", s.streamTask)
	router.GET("/:id/logs", s.taskLogs)
	router.GET("/:id/metrics", s.taskMetrics)
	router.GET("/:id/results", s.taskResults)
}

func ledgerManager(router *gin.RouterGroup, s *Server) {
	router.GET("/wallet/balance", s.getBalance)
	router.POST("/wallet/deposit", s.deposit)
	router.GET("/billing/history", s.billingHistory)
	router.GET("/billing/invoices/:id", s.getInvoice)
	router.POST("/billing/payment-method", s.setPaymentMethod)
}

func providerManager(router *gin.RouterGroup, s *Server) {
	router.POST("/resources", s.createResource)
	router.GET("/resources", s.listResources)
	router.GET("/resources/:rid", s.getResource)
	router.PATCH("/resources/:rid", s.updateResource)
	router.DELETE("/resources/:rid", s.deleteResource)

	router.GET("/tasks/available", s.availableTasks)
	router.POST("/tasks/accept", s.acceptTask)
	router.POST("/tasks/:tid/start", s.startTask)
	router.PATCH("/tasks/:tid/progress", s.updateProgress)
	router.POST("/tasks/:tid/logs", s.appendLogs)
	router.POST("/tasks/:tid/complete", s.completeTask)
	router.POST("/tasks/:tid/fail", s.failTask)

	router.GET("/earnings", s.earnings)
	router.POST("/payouts/request", s.requestPayout)
	router.GET("/payouts/history", s.payoutHistory)
	router.GET("/payouts/pending", s.pendingPayouts)

	router.GET("/staking", s.stakingStatus)
	router.POST("/staking/stake", s.stake)
	router.POST("/staking/unstake", s.unstake)

	router.GET("/status", s.providerStatus)
	router.POST("/heartbeat", s.heartbeat)
	router.GET("/metrics", s.providerMetrics)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, models.Health{Status: "ok", Version: build.UserVersion()})
}
