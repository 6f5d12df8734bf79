package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"llm-backend/internal/chat"
	"llm-backend/internal/common"
	"llm-backend/internal/config"
	"llm-backend/internal/httpapi/handlers"
	"llm-backend/internal/httpapi/middleware"
)

func NewRouter(db *gorm.DB, cfg config.Config, svc *chat.Service, repo *chat.Repo) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, svc, repo)

	r.GET("/ping", h.Ping)
	r.GET("/api/health", h.Health)

	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	authGroup.POST("/api/v1/chat", h.Chat)

	authGroup.GET("/api/threads", h.ListThreads)
	authGroup.GET("/api/messages/thread/:thread_id", h.ListThreadMessages)
	authGroup.GET("/api/messages/thread/:thread_id/turn/:turn", h.ListTurnMessages)
	authGroup.GET("/api/messages/:message_id", h.GetMessage)

	authGroup.GET("/api/runs", h.ListRuns)
	authGroup.POST("/api/usage/log", h.LogUsage)
	authGroup.POST("/api/feedback/submit", h.SubmitFeedback)

	return r
}
