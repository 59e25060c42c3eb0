package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/iplanclient"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/sapclient"
	"github.com/mmdatafocus/orders_backend/sapsync"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/mmdatafocus/orders_backend/workflow"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"path":           c.FullPath(),
				"correlation_id": cid,
			}).Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// requestContext attaches the correlation id and acting user to the request.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if user := strings.TrimSpace(c.GetHeader("x-user-name")); user != "" {
			ctx = utils.SetUserNameInContext(ctx, user)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	// In production only the CORS_ALLOWED_ORIGINS allowlist is accepted.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id", "x-user-name")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	return cors.New(corsConfig)
}

func registerRoutes(r gin.IRouter, a *api, worker *sapsync.Worker) {
	lines := r.Group("/order-lines")
	lines.GET("/attention", a.attentionLinesHandler())
	lines.POST("/:id/attention-flags", a.attentionFlagsHandler(false))
	lines.POST("/:id/attention-flags/remove", a.attentionFlagsHandler(true))
	lines.PUT("/:id/parent", a.assignParentHandler())

	atp := r.Group("/atp-ctp")
	atp.POST("/request", a.requestPlanHandler())
	atp.POST("/confirm", a.confirmPlanHandler())

	r.POST("/overdue/mark", a.markOverdueHandler())

	sync := r.Group("/sync")
	sync.POST("/goods-issue", sapsync.TriggerSyncHandler(worker))
	sync.GET("/runs", sapsync.SyncHistoryHandler(worker))
	sync.GET("/runs/:id", sapsync.SyncRunDetailHandler(worker))
	sync.POST("/runs/:id/retry", sapsync.RetrySyncRunHandler(worker))

	r.POST("/pubsub/goods-issue", sapsync.PubSubPushHandler(worker))
}

// newRouter builds the application engine once its dependencies exist.
func newRouter(logger *logrus.Logger, a *api, worker *sapsync.Worker, limiter *RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(requestContext())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(corsMiddleware())
	if limiter != nil {
		r.Use(limiter.RateLimitMiddleware)
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r, a, worker)
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints return 503.
	var app atomic.Pointer[gin.Engine]
	srv := &http.Server{
		Addr: ":" + port,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == "/healthz" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			engine := app.Load()
			if engine == nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			engine.ServeHTTP(w, req)
		}),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; run it as a separate job with SKIP_MIGRATIONS=true.
	if !config.EnvBool("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	erp, err := sapclient.NewFromEnv()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "sapclient"}).Fatal(err.Error())
	}
	planner, err := iplanclient.NewFromEnv()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "iplanclient"}).Fatal(err.Error())
	}
	var locker workflow.Locker
	if l := config.GetRedisLock(); l != nil {
		locker = l
	}

	a := &api{
		db:     db,
		logger: logger,
		now:    time.Now,
		orchestrator: &workflow.AtpCtpOrchestrator{
			DB:      db,
			Logger:  logger,
			Planner: planner,
			Locker:  locker,
		},
	}
	worker := &sapsync.Worker{
		DB:     db,
		Logger: logger,
		Sync: &workflow.ConfirmationSync{
			DB:     db,
			Logger: logger,
			ERP:    erp,
			Locker: locker,
		},
	}
	app.Store(newRouter(logger, a, worker, rateLimiterFromEnv(config.GetRedisDB())))

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	if config.OverdueSweepEnabled() {
		go NewOverdueSweepProcessor(db, logger, locker).Run(sweepCtx)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
