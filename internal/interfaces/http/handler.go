package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"botfactory/internal/infrastructure"
	"botfactory/internal/interfaces"
	"botfactory/internal/usecases"
)

type Handler struct {
	registry      *usecases.BotRegistry
	ledger        *usecases.SubscriptionLedger
	responder     *usecases.Responder
	runtime       *infrastructure.BotRuntime
	knowledge     interfaces.KnowledgeRepo
	conversations interfaces.ConversationRepo

	maxKnowledgeSize int
}

func NewHandler(registry *usecases.BotRegistry, ledger *usecases.SubscriptionLedger, responder *usecases.Responder, runtime *infrastructure.BotRuntime, knowledge interfaces.KnowledgeRepo, conversations interfaces.ConversationRepo, maxKnowledgeSize int) *Handler {
	return &Handler{
		registry:         registry,
		ledger:           ledger,
		responder:        responder,
		runtime:          runtime,
		knowledge:        knowledge,
		conversations:    conversations,
		maxKnowledgeSize: maxKnowledgeSize,
	}
}

func SetupRoutes(r *gin.Engine, auth *usecases.AuthUsecase, registry *usecases.BotRegistry, ledger *usecases.SubscriptionLedger, responder *usecases.Responder, broadcaster *usecases.Broadcaster, runtime *infrastructure.BotRuntime, knowledge interfaces.KnowledgeRepo, conversations interfaces.ConversationRepo, userRepo interfaces.UserRepo, botRepo interfaces.BotRepo, middleware *Middleware, maxKnowledgeSize int) {
	h := NewHandler(registry, ledger, responder, runtime, knowledge, conversations, maxKnowledgeSize)
	adminHandler := NewAdminHandler(userRepo, botRepo, ledger, runtime, broadcaster)

	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(2 << 20)) // 2MB max request size
	r.Use(middleware.CORSMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public Auth Routes
	authGroup := r.Group("/api/auth")
	{
		authGroup.POST("/register", func(c *gin.Context) {
			var regReq struct {
				Username  string `json:"username"`
				Email     string `json:"email"`
				Password  string `json:"password"`
				FirstName string `json:"first_name"`
				LastName  string `json:"last_name"`
			}
			if err := c.ShouldBindJSON(&regReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if !ValidSlug(regReq.Username) || len(regReq.Password) < 6 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid username or password (min 6 chars)"})
				return
			}
			user, err := auth.Register(c.Request.Context(), regReq.Username, regReq.Email, regReq.Password, SanitizeString(regReq.FirstName), SanitizeString(regReq.LastName))
			if err != nil {
				if errors.Is(err, usecases.ErrUsernameTaken) || errors.Is(err, usecases.ErrEmailTaken) {
					c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
					return
				}
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusCreated, gin.H{"status": "registered", "user": user})
		})

		authGroup.POST("/login", func(c *gin.Context) {
			var loginReq struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&loginReq); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			token, err := auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
			if err != nil {
				if errors.Is(err, usecases.ErrAccountLocked) {
					c.JSON(http.StatusForbidden, gin.H{"error": "Account disabled"})
					return
				}
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	// Protected Routes
	api := r.Group("/api")
	api.Use(middleware.AuthRequired())
	api.Use(middleware.RateLimitPerUser(5, 10))
	{
		api.GET("/subscription", h.GetSubscription)
		api.POST("/subscription/upgrade", h.UpgradeSubscription)

		api.GET("/bots", h.ListBots)
		api.POST("/bots", h.CreateBot)
		api.GET("/bots/:id", h.GetBot)
		api.PUT("/bots/:id", h.UpdateBot)
		api.DELETE("/bots/:id", h.DeleteBot)
		api.POST("/bots/:id/activate", h.ActivateBot)
		api.POST("/bots/:id/deactivate", h.DeactivateBot)
		api.GET("/bots/:id/status", h.GetBotStatus)
		api.GET("/bots/:id/stats", h.GetBotStats)
		api.GET("/bots/:id/qr", h.GetBotQR)
		api.POST("/bots/:id/test", h.TestBot)

		api.GET("/bots/:id/knowledge", h.ListKnowledge)
		api.POST("/bots/:id/knowledge", h.AddKnowledge)
		api.DELETE("/bots/:id/knowledge/:entryID", h.DeleteKnowledge)

		api.GET("/bots/:id/conversations", h.ListConversations)
		api.GET("/bots/:id/conversations/:convID/messages", h.ListMessages)
	}

	// Admin-only Routes
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthRequired())
	admin.Use(middleware.AdminRequired())
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.GET("/users", adminHandler.GetAllUsers)
		admin.PUT("/users/:id/status", adminHandler.UpdateUserStatus)
		admin.PUT("/users/:id/plan", adminHandler.UpdateUserPlan)
		admin.POST("/users/:id/reset-usage", adminHandler.ResetUserUsage)
		admin.POST("/broadcasts", adminHandler.CreateBroadcast)
		admin.GET("/broadcasts", adminHandler.ListBroadcasts)
		admin.GET("/broadcasts/:id", adminHandler.GetBroadcast)
	}
}

// errStatus maps service errors to HTTP status codes
func errStatus(err error) int {
	switch {
	case errors.Is(err, usecases.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecases.ErrValidation), errors.Is(err, usecases.ErrInvalidCredential):
		return http.StatusBadRequest
	case errors.Is(err, usecases.ErrLimitExceeded), errors.Is(err, usecases.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, usecases.ErrBotActive), errors.Is(err, usecases.ErrBotInactive):
		return http.StatusConflict
	case errors.Is(err, usecases.ErrPlatform), errors.Is(err, usecases.ErrAIService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
