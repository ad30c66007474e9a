// The attendance engine plus its HTTP facade: login issues a signed
// token, mutations flow through the verification-gated engine, and the
// presentation layer reads cache snapshots kept fresh by the sync layer.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"biomark/internal/auth"
	"biomark/internal/config"
	"biomark/internal/credential"
	"biomark/internal/datasync"
	"biomark/internal/engine"
	"biomark/internal/httpmiddleware"
	"biomark/internal/model"
	"biomark/internal/remote"
	"biomark/internal/report"
)

func main() {
	cfg := config.Load()
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(cfg config.App) error {
	backend := remote.New(cfg.BackendURL)
	store := datasync.NewStore()

	var redisClient *redis.Client
	var broadcast datasync.Broadcast
	var credStore credential.Store
	if cfg.SyncBackend == "memory" {
		broadcast = datasync.NewMemoryBroadcast()
		credStore = credential.NewMemoryStore()
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
		})
		broadcast = datasync.NewRedisBroadcast(redisClient, "")
		credStore = credential.NewRedisStore(redisClient, "")
	}

	syncer := datasync.NewSyncer(store, backend, broadcast, cfg.SyncInterval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go syncer.Run(ctx)

	gate := credential.NewGate(&credential.PlatformAuthenticator{
		Secure:  cfg.SecureContext,
		Capable: cfg.PlatformCapable,
	}, credStore)

	eng := engine.New(store, backend, gate, nil, syncer)
	reports := report.New(store)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/healthz", "/metrics"}}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := true
		if redisClient != nil {
			redisHealthy = redisClient.Ping(c.Request.Context()).Err() == nil
		}
		backendHealthy := backend.Ping(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !backendHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "backend": backendHealthy})
	})

	r.POST("/v1/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := eng.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		token, exp, err := auth.Issue(user.ID, string(user.Role), user.Name, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":           token,
			"expires_at":      exp.Unix(),
			"user":            user,
			"enrolledCourses": store.EnrolledCourseIDs(user.ID),
		})
	})

	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/logout", func(c *gin.Context) {
		eng.Logout()
		c.Status(http.StatusNoContent)
	})

	authGroup.GET("/cache/users", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": store.Users()})
	})
	authGroup.GET("/cache/courses", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"courses": store.Courses()})
	})
	authGroup.GET("/cache/enrollments", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"enrollments": store.Enrollments()})
	})
	authGroup.GET("/cache/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": store.Sessions()})
	})
	authGroup.GET("/cache/records", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"records": store.Records()})
	})

	authGroup.POST("/refresh", func(c *gin.Context) {
		if err := syncer.RefetchNow(c.Request.Context()); err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "partial", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup.POST("/courses/:id/enroll", auth.RequireRole("student"), func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		if err := eng.EnrollCourse(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"enrolledCourses": store.EnrolledCourseIDs(claims.UserID)})
	})

	authGroup.POST("/biometric/enroll", auth.RequireRole("student"), func(c *gin.Context) {
		var req struct {
			Method string `json:"method" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.FromContext(c)
		enrollment, err := eng.EnrollBiometric(c.Request.Context(), claims.UserID, claims.Name, model.ToMethod(req.Method))
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, enrollment)
	})

	authGroup.POST("/sessions", auth.RequireRole("lecturer"), func(c *gin.Context) {
		var req struct {
			CourseID      string `json:"courseId" binding:"required"`
			BiometricType string `json:"biometricType"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.FromContext(c)
		sess, err := eng.OpenSession(c.Request.Context(), req.CourseID, claims.UserID, model.ToBiometricType(req.BiometricType))
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess)
	})

	authGroup.POST("/sessions/:id/close", auth.RequireRole("lecturer"), func(c *gin.Context) {
		claims, _ := auth.FromContext(c)
		sess, err := eng.CloseSession(c.Request.Context(), c.Param("id"), claims.UserID)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	})

	authGroup.POST("/attendance", auth.RequireRole("student"), func(c *gin.Context) {
		var req struct {
			SessionID string `json:"sessionId" binding:"required"`
			Method    string `json:"method" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.FromContext(c)
		rec, err := eng.MarkAttendance(c.Request.Context(), claims.UserID, req.SessionID, model.ToMethod(req.Method))
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	authGroup.POST("/attendance/scan", auth.RequireRole("lecturer"), func(c *gin.Context) {
		var req struct {
			StudentID string `json:"studentId" binding:"required"`
			SessionID string `json:"sessionId" binding:"required"`
			Method    string `json:"method" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := eng.Scan(c.Request.Context(), req.StudentID, req.SessionID, model.ToMethod(req.Method))
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	authGroup.POST("/users", auth.RequireRole("admin"), func(c *gin.Context) {
		var req struct {
			model.User
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		created, err := eng.AddUser(c.Request.Context(), req.User, req.Password)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	authGroup.PUT("/users/:id", auth.RequireRole("admin"), func(c *gin.Context) {
		var u model.User
		if err := c.ShouldBindJSON(&u); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		u.ID = c.Param("id")
		updated, err := eng.UpdateUser(c.Request.Context(), u)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	authGroup.DELETE("/users/:id", auth.RequireRole("admin"), func(c *gin.Context) {
		if err := eng.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
			respondEngineError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.POST("/courses", auth.RequireRole("admin"), func(c *gin.Context) {
		var course model.Course
		if err := c.ShouldBindJSON(&course); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		created, err := eng.AddCourse(c.Request.Context(), course)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	authGroup.PUT("/courses/:id", auth.RequireRole("admin"), func(c *gin.Context) {
		var course model.Course
		if err := c.ShouldBindJSON(&course); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		course.ID = c.Param("id")
		updated, err := eng.UpdateCourse(c.Request.Context(), course)
		if err != nil {
			respondEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	authGroup.DELETE("/courses/:id", auth.RequireRole("admin"), func(c *gin.Context) {
		if err := eng.DeleteCourse(c.Request.Context(), c.Param("id")); err != nil {
			respondEngineError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.GET("/reports/courses/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"courseId":      c.Param("id"),
			"attendancePct": reports.CourseAttendancePct(c.Param("id")),
		})
	})

	authGroup.GET("/reports/sessions/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, reports.SessionCounts(c.Param("id")))
	})

	authGroup.GET("/reports/students/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, reports.StudentTotals(c.Param("id")))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// respondEngineError maps engine failure kinds to HTTP statuses, keeping
// the engine's user-facing message.
func respondEngineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch engine.KindOf(err) {
	case engine.KindAuthenticationFailed:
		status = http.StatusUnauthorized
	case engine.KindAlreadyRecorded:
		status = http.StatusConflict
	case engine.KindSessionClosed, engine.KindInvalidTransition:
		status = http.StatusConflict
	case engine.KindBiometricNotEnrolled:
		status = http.StatusPreconditionFailed
	case engine.KindVerificationFailed, engine.KindUnsupportedPlatform:
		status = http.StatusForbidden
	case engine.KindRecordRejected:
		status = http.StatusBadGateway
	case engine.KindNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": string(engine.KindOf(err))})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
