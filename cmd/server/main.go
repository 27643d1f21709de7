package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"log/slog"

	"github.com/opsboard/sopmatch/internal/audit"
	"github.com/opsboard/sopmatch/internal/auth"
	"github.com/opsboard/sopmatch/internal/cache"
	"github.com/opsboard/sopmatch/internal/database"
	"github.com/opsboard/sopmatch/internal/errors"
	"github.com/opsboard/sopmatch/internal/matching"
	"github.com/opsboard/sopmatch/internal/middleware"
	"github.com/opsboard/sopmatch/internal/monitoring"
	"github.com/opsboard/sopmatch/internal/patterns"
	"github.com/opsboard/sopmatch/internal/prediction"
	"github.com/opsboard/sopmatch/internal/ratelimit"
	"github.com/opsboard/sopmatch/internal/scoring"
	"github.com/opsboard/sopmatch/internal/types"
)

func main() {
	appLogger := monitoring.NewLogger(parseLogLevel(getEnvOrDefault("LOG_LEVEL", "info")))
	slog.SetDefault(appLogger.Logger)

	// Configuration from environment with defaults
	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	port := getEnvOrDefault("PORT", "8080")
	jwtSecret := getEnvOrDefault("JWT_SECRET", "change-me-in-production")
	redisAddr := os.Getenv("REDIS_ADDR")
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := getEnvIntOrDefault("REDIS_DB", 0)
	cacheTTL := time.Duration(getEnvIntOrDefault("CACHE_TTL_MINUTES", 5)) * time.Minute

	db, err := database.NewDB(dataDir)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	auditor := audit.NewRecorder(repo)

	matchService := matching.NewService(repo, auditor)
	predictionService := prediction.NewService(repo, auditor)
	patternService := patterns.NewService(repo, auditor)

	tokenService := auth.NewTokenService(jwtSecret, 24*time.Hour)

	appMetrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(redisAddr, redisPassword, redisDB)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	defer redisClient.Close()
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.DefaultConfig(), appMetrics)

	appCache := cache.NewCache(cacheTTL)
	compression := middleware.NewCompression(6)

	// Hourly purge of matches past their expiry.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			deleted, err := matchService.PurgeExpired()
			if err != nil {
				slog.Error("Failed to purge expired matches", "error", err)
				continue
			}
			if deleted > 0 {
				slog.Info("Purged expired matches", "count", deleted)
			}
		}
	}()

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(compression.Handler())
	r.Use(monitoring.RequestMiddleware(appMetrics, appLogger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(tokenService.Middleware())
	r.Use(limiter.IPRateLimitMiddleware())
	r.Use(appCache.Middleware(appMetrics, appLogger, "/matching", "/predictions", "/patterns"))

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, types.Fail("method not allowed", "VALIDATION_ERROR"))
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, types.Fail("route not found", "NOT_FOUND"))
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"database":  db.GetPoolStats(),
			"metrics":   appMetrics.GetStats(),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, appMetrics.GetStats())
	})

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, appCache.Stats())
	})

	r.GET("/pools/database", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"database":   db.GetPoolStats(),
			"rate_limit": limiter.GetStats(),
		})
	})

	// Match generation over the requested procedures and all active staff.
	r.POST("/matching", limiter.EndpointRateLimitMiddleware("matching", 10), func(c *gin.Context) {
		var req types.GenerateMatchesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		start := time.Now()
		tenant := auth.TenantFrom(c)
		matches, err := matchService.GenerateMatches(c.Request.Context(), tenant, req)
		if err != nil {
			errors.Respond(c, err)
			return
		}

		appLogger.MatchLogger(tenant, len(req.SOPIDs), len(matches), time.Since(start))
		appMetrics.AddMatchesComputed(len(matches))
		c.JSON(http.StatusOK, types.OK(gin.H{
			"matches": matches,
			"count":   len(matches),
		}))
	})

	r.GET("/matching", func(c *gin.Context) {
		filter := database.MatchFilter{
			SOPID:     c.Query("sop_id"),
			StaffID:   c.Query("user_id"),
			Algorithm: c.Query("algorithm"),
		}
		if v := c.Query("min_match_score"); v != "" {
			score, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errors.Respond(c, errors.NewValidationError("min_match_score must be numeric"))
				return
			}
			filter.MinScore = score
		}
		filter.Limit = queryInt(c, "limit", 0)
		filter.Offset = queryInt(c, "offset", 0)
		includeAnalytics := c.Query("include_analytics") == "true"

		matches, analytics, err := matchService.ListMatches(filter, includeAnalytics, auth.TenantFrom(c))
		if err != nil {
			errors.Respond(c, err)
			return
		}

		payload := gin.H{"matches": matches, "count": len(matches)}
		if analytics != nil {
			payload["analytics"] = analytics
		}
		c.JSON(http.StatusOK, types.OK(payload))
	})

	r.POST("/predictions/generate", limiter.EndpointRateLimitMiddleware("predictions", 10), func(c *gin.Context) {
		var req types.GeneratePredictionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		start := time.Now()
		tenant := auth.TenantFrom(c)
		preds, err := predictionService.Generate(tenant, req)
		if err != nil {
			errors.Respond(c, err)
			return
		}

		appLogger.PredictionLogger(tenant, len(preds), time.Since(start))
		appMetrics.AddPredictionsGenerated(len(preds))
		c.JSON(http.StatusOK, types.OK(gin.H{
			"predictions": preds,
			"count":       len(preds),
		}))
	})

	r.POST("/predictions/verify", func(c *gin.Context) {
		var req types.VerifyPredictionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		verified, err := predictionService.Verify(auth.TenantFrom(c), req)
		if err != nil {
			errors.Respond(c, err)
			return
		}

		appMetrics.AddPredictionsVerified(len(verified))
		c.JSON(http.StatusOK, types.OK(gin.H{
			"predictions": verified,
			"count":       len(verified),
		}))
	})

	r.GET("/predictions", func(c *gin.Context) {
		preds, err := predictionService.List(
			c.Query("sop_id"),
			c.Query("user_id"),
			queryInt(c, "limit", 0),
			queryInt(c, "offset", 0),
		)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, types.OK(gin.H{
			"predictions": preds,
			"count":       len(preds),
		}))
	})

	r.POST("/patterns/analyze", limiter.EndpointRateLimitMiddleware("patterns", 10), func(c *gin.Context) {
		var req types.AnalyzePatternsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		start := time.Now()
		tenant := auth.TenantFrom(c)
		found, err := patternService.Analyze(tenant, req)
		if err != nil {
			errors.Respond(c, err)
			return
		}

		appLogger.PatternLogger(tenant, len(found), time.Since(start))
		appMetrics.IncrementPatternRun()
		c.JSON(http.StatusOK, types.OK(gin.H{
			"patterns": found,
			"count":    len(found),
		}))
	})

	r.GET("/patterns", func(c *gin.Context) {
		found, err := patternService.List(
			c.Query("sop_id"),
			c.Query("pattern_type"),
			queryInt(c, "limit", 0),
			queryInt(c, "offset", 0),
		)
		if err != nil {
			errors.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, types.OK(gin.H{
			"patterns": found,
			"count":    len(found),
		}))
	})

	r.GET("/scoring-config", func(c *gin.Context) {
		cfg, err := repo.GetScoringConfig(auth.TenantFrom(c))
		if err != nil {
			errors.Respond(c, errors.NewDatabaseError("failed to load scoring configuration", err))
			return
		}
		c.JSON(http.StatusOK, types.OK(cfg))
	})

	r.PUT("/scoring-config", func(c *gin.Context) {
		var req types.UpdateConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}

		tenantID := auth.TenantFrom(c)
		cfg, err := repo.GetScoringConfig(tenantID)
		if err != nil {
			errors.Respond(c, errors.NewDatabaseError("failed to load scoring configuration", err))
			return
		}
		before, _ := json.Marshal(cfg)

		if updated, err := applyConfigUpdate(&cfg, req); err != nil {
			errors.Respond(c, err)
			return
		} else if !updated {
			errors.Respond(c, errors.NewValidationError("no configuration fields to update"))
			return
		}

		cfg.UpdatedAt = time.Now().UTC()
		if err := repo.SaveScoringConfig(cfg); err != nil {
			errors.Respond(c, errors.NewDatabaseError("failed to save scoring configuration", err))
			return
		}

		after, _ := json.Marshal(cfg)
		auditor.Record(tenantID, "scoring-config.update", "scoring_config", string(before), string(after))

		c.JSON(http.StatusOK, types.OK(cfg))
	})

	// Reference data ingest.
	r.POST("/staff", func(c *gin.Context) {
		var s types.Staff
		if err := c.ShouldBindJSON(&s); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}
		if err := repo.CreateStaff(s); err != nil {
			errors.Respond(c, errors.NewDatabaseError("failed to create staff member", err))
			return
		}
		c.JSON(http.StatusOK, types.OK(s))
	})

	r.POST("/sops", func(c *gin.Context) {
		var s types.SOP
		if err := c.ShouldBindJSON(&s); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}
		if err := repo.CreateSOP(s); err != nil {
			errors.Respond(c, errors.NewDatabaseError("failed to create procedure", err))
			return
		}
		c.JSON(http.StatusOK, types.OK(s))
	})

	r.POST("/completions", func(c *gin.Context) {
		var rec types.CompletionRecord
		if err := c.ShouldBindJSON(&rec); err != nil {
			errors.Respond(c, errors.NewValidationError("invalid request body: "+err.Error()))
			return
		}
		if rec.PercentComplete < 0 || rec.PercentComplete > 100 {
			errors.Respond(c, errors.NewValidationError("percent_complete must be in [0,100]"))
			return
		}
		if err := repo.InsertCompletion(rec); err != nil {
			errors.Respond(c, errors.NewDatabaseError("failed to record completion", err))
			return
		}
		c.JSON(http.StatusOK, types.OK(rec))
	})

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

// applyConfigUpdate merges the partial update into cfg, validating weights.
func applyConfigUpdate(cfg *scoring.Config, req types.UpdateConfigRequest) (bool, error) {
	updated := false

	if len(req.AlgorithmWeights) > 0 {
		for name, w := range req.AlgorithmWeights {
			if w < 0 {
				return false, errors.NewValidationError("algorithm weight for " + name + " must be non-negative")
			}
			cfg.AlgorithmWeights[name] = w
		}
		updated = true
	}
	if len(req.ObjectiveWeights) > 0 {
		for name, w := range req.ObjectiveWeights {
			if w < 0 {
				return false, errors.NewValidationError("objective weight for " + name + " must be non-negative")
			}
			cfg.ObjectiveWeights[name] = w
		}
		updated = true
	}
	if req.EnsembleEnabled != nil {
		cfg.EnsembleEnabled = *req.EnsembleEnabled
		updated = true
	}
	return updated, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
