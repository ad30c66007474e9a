// Stand-in for the remote attendance backend: the five REST collections,
// login, and biometric enrollment over Postgres. Lets the engine run end
// to end without the production service; not part of the core.
package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"biomark/internal/config"
	"biomark/internal/stubstore"
)

func main() {
	cfg := config.Load()
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := stubstore.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db not reachable: %v", err)
	}
	defer db.Close()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/healthz"}}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.POST("/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		user, err := db.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		if user == nil || user.Password != req.Password {
			fail(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":        user.ID,
			"name":      user.Name,
			"email":     user.Email,
			"role":      user.Role,
			"studentId": user.StudentID,
			"staffId":   user.StaffID,
			"token":     uuid.NewString(),
		})
	})

	api.GET("/users", func(c *gin.Context) {
		users, err := db.ListUsers(c.Request.Context())
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, users)
	})

	api.POST("/users", func(c *gin.Context) {
		var req struct {
			stubstore.User
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		req.User.Password = req.Password
		created, err := db.CreateUser(c.Request.Context(), req.User)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	api.PUT("/users/:id", func(c *gin.Context) {
		var u stubstore.User
		if err := c.ShouldBindJSON(&u); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		u.ID = pathID(c)
		updated, err := db.UpdateUser(c.Request.Context(), u)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	api.DELETE("/users/:id", func(c *gin.Context) {
		if err := db.DeleteUser(c.Request.Context(), pathID(c)); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/courses", func(c *gin.Context) {
		courses, err := db.ListCourses(c.Request.Context())
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, courses)
	})

	api.POST("/courses", func(c *gin.Context) {
		var course stubstore.Course
		if err := c.ShouldBindJSON(&course); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		created, err := db.CreateCourse(c.Request.Context(), course)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	api.PUT("/courses/:id", func(c *gin.Context) {
		var course stubstore.Course
		if err := c.ShouldBindJSON(&course); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		course.ID = pathID(c)
		updated, err := db.UpdateCourse(c.Request.Context(), course)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	api.DELETE("/courses/:id", func(c *gin.Context) {
		if err := db.DeleteCourse(c.Request.Context(), pathID(c)); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.GET("/enrollments", func(c *gin.Context) {
		links, err := db.ListEnrollments(c.Request.Context(), 0)
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, links)
	})

	api.GET("/enrollments/student/:id", func(c *gin.Context) {
		links, err := db.ListEnrollments(c.Request.Context(), pathID(c))
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, links)
	})

	api.POST("/enrollments", func(c *gin.Context) {
		var e stubstore.Enrollment
		if err := c.ShouldBindJSON(&e); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		created, err := db.CreateEnrollment(c.Request.Context(), e)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	api.GET("/sessions", func(c *gin.Context) {
		sessions, err := db.ListSessions(c.Request.Context())
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, sessions)
	})

	api.POST("/sessions", func(c *gin.Context) {
		var sess stubstore.Session
		if err := c.ShouldBindJSON(&sess); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		created, err := db.CreateSession(c.Request.Context(), sess)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	api.PUT("/sessions/:id", func(c *gin.Context) {
		var sess stubstore.Session
		if err := c.ShouldBindJSON(&sess); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		sess.ID = pathID(c)
		updated, err := db.UpdateSession(c.Request.Context(), sess)
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	api.GET("/attendance", func(c *gin.Context) {
		records, err := db.ListRecords(c.Request.Context())
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, records)
	})

	api.POST("/attendance", func(c *gin.Context) {
		var rec stubstore.Record
		if err := c.ShouldBindJSON(&rec); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		created, err := db.CreateRecord(c.Request.Context(), rec)
		if errors.Is(err, stubstore.ErrDuplicateRecord) {
			fail(c, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusCreated, created)
	})

	api.GET("/biometric/:id", func(c *gin.Context) {
		b, err := db.GetBiometric(c.Request.Context(), pathID(c))
		if err != nil {
			fail(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusOK, b)
	})

	biometricUpsert := func(c *gin.Context, userID int64) {
		var b stubstore.BiometricEnrollment
		if err := c.ShouldBindJSON(&b); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		if userID != 0 {
			b.UserID = userID
		}
		if err := db.UpsertBiometric(c.Request.Context(), b); err != nil {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": b.UserID})
	}

	api.PUT("/biometric/:id", func(c *gin.Context) { biometricUpsert(c, pathID(c)) })
	api.POST("/biometric", func(c *gin.Context) { biometricUpsert(c, 0) })

	log.Printf("stub backend listening on :%s", cfg.StubPort)
	if err := r.Run(":" + cfg.StubPort); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

func pathID(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.Param("id"), 10, 64)
	return id
}
