package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetSubscription(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	sub, err := h.ledger.Status(c.Request.Context(), userID)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":                   sub.Tier,
		"max_bots":               sub.MaxBots,
		"max_messages_per_month": sub.MaxMessagesPerMonth,
		"messages_used":          sub.MessagesUsed,
		"messages_remaining":     sub.Remaining(),
		"period_start":           sub.PeriodStart,
		"end_date":               sub.EndDate,
		"expired":                sub.Expired(),
	})
}

// UpgradeSubscription switches the caller's plan. There is no payment
// integration; the endpoint trusts the request the way a billing webhook
// would be trusted.
func (h *Handler) UpgradeSubscription(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Tier string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sub, err := h.ledger.ChangePlan(c.Request.Context(), userID, req.Tier)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": "Invalid tier"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":                 "upgraded",
		"tier":                   sub.Tier,
		"max_bots":               sub.MaxBots,
		"max_messages_per_month": sub.MaxMessagesPerMonth,
	})
}
