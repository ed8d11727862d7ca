package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"botfactory/internal/entities"
	"botfactory/internal/infrastructure"
	"botfactory/internal/interfaces"
	"botfactory/internal/usecases"
)

type AdminHandler struct {
	userRepo    interfaces.UserRepo
	botRepo     interfaces.BotRepo
	ledger      *usecases.SubscriptionLedger
	runtime     *infrastructure.BotRuntime
	broadcaster *usecases.Broadcaster
}

func NewAdminHandler(userRepo interfaces.UserRepo, botRepo interfaces.BotRepo, ledger *usecases.SubscriptionLedger, runtime *infrastructure.BotRuntime, broadcaster *usecases.Broadcaster) *AdminHandler {
	return &AdminHandler{
		userRepo:    userRepo,
		botRepo:     botRepo,
		ledger:      ledger,
		runtime:     runtime,
		broadcaster: broadcaster,
	}
}

// GetStats returns platform statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	total, active, admins, err := h.userRepo.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}

	activeBots, err := h.botRepo.ListByStatus(c.Request.Context(), entities.BotStatusActive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	running := 0
	for _, b := range activeBots {
		if h.runtime.Running(b.ID) {
			running++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_users":  total,
		"active_users": active,
		"admin_count":  admins,
		"active_bots":  len(activeBots),
		"running_bots": running,
	})
}

// GetAllUsers returns list of all users with their subscription plans
func (h *AdminHandler) GetAllUsers(c *gin.Context) {
	users, err := h.userRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	result := make([]gin.H, len(users))
	for i, u := range users {
		entry := gin.H{
			"id":         u.ID,
			"username":   u.Username,
			"email":      u.Email,
			"role":       u.Role,
			"active":     u.Active,
			"created_at": u.CreatedAt,
		}
		if sub, err := h.ledger.Status(c.Request.Context(), u.ID); err == nil {
			entry["tier"] = sub.Tier
			entry["messages_used"] = sub.MessagesUsed
			entry["max_messages_per_month"] = sub.MaxMessagesPerMonth
		}
		result[i] = entry
	}

	c.JSON(http.StatusOK, result)
}

// UpdateUserStatus enables/disables a user account
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var payload struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Don't allow disabling self
	if getUserID(c) == userID && !payload.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot disable your own account"})
		return
	}

	if err := h.userRepo.SetActive(c.Request.Context(), userID, payload.Active); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	// Disabling an owner stops their running bots
	if !payload.Active {
		bots, err := h.botRepo.ListByUser(c.Request.Context(), userID)
		if err == nil {
			for _, b := range bots {
				if h.runtime.Running(b.ID) {
					h.runtime.Stop(b.ID)
					_ = h.botRepo.UpdateStatus(c.Request.Context(), b.ID, entities.BotStatusStopped)
				}
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated", "active": payload.Active})
}

// UpdateUserPlan changes a user's subscription tier
func (h *AdminHandler) UpdateUserPlan(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var payload struct {
		Tier string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sub, err := h.ledger.ChangePlan(c.Request.Context(), userID, payload.Tier)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": "Invalid tier"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                 "updated",
		"tier":                   sub.Tier,
		"max_bots":               sub.MaxBots,
		"max_messages_per_month": sub.MaxMessagesPerMonth,
	})
}

// ResetUserUsage starts a fresh billing period for a user
func (h *AdminHandler) ResetUserUsage(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if err := h.ledger.ResetPeriod(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// CreateBroadcast sends an announcement through all running bots of the
// targeted tiers
func (h *AdminHandler) CreateBroadcast(c *gin.Context) {
	var payload struct {
		Title       string   `json:"title"`
		Message     string   `json:"message"`
		TargetTiers []string `json:"target_tiers"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidateLength(payload.Title, 0, MaxTitleLength) || !ValidateLength(payload.Message, 0, MaxMessageLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title or message too long"})
		return
	}

	bc, err := h.broadcaster.Announce(c.Request.Context(), getUserID(c),
		SanitizeString(payload.Title), SanitizeString(payload.Message), payload.TargetTiers)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":     "sent",
		"id":         bc.ID,
		"total_bots": bc.TotalBots,
		"delivered":  bc.Delivered,
		"failed":     bc.Failed,
	})
}

// ListBroadcasts returns recent broadcast history
func (h *AdminHandler) ListBroadcasts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	broadcasts, err := h.broadcaster.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch broadcasts"})
		return
	}
	c.JSON(http.StatusOK, broadcasts)
}

// GetBroadcast returns one broadcast with its per-bot delivery log
func (h *AdminHandler) GetBroadcast(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid broadcast ID"})
		return
	}

	bc, deliveries, err := h.broadcaster.Stats(c.Request.Context(), id)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"broadcast":  bc,
		"deliveries": deliveries,
	})
}
