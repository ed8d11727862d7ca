package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"botfactory/internal/entities"
	"botfactory/internal/usecases"
)

// botParam resolves the :id path parameter and checks ownership.
func (h *Handler) botParam(c *gin.Context) (*entities.Bot, bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, false
	}
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return nil, false
	}
	bot, err := h.registry.Get(c.Request.Context(), userID, botID)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return bot, true
}

func (h *Handler) ListBots(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	bots, err := h.registry.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bots"})
		return
	}

	result := make([]gin.H, len(bots))
	for i, b := range bots {
		state, _ := h.runtime.Status(b.ID)
		result[i] = gin.H{
			"bot":     b,
			"running": h.runtime.Running(b.ID),
			"state":   string(state),
		}
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateBot(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		TelegramToken string `json:"telegram_token"`
		SystemPrompt  string `json:"system_prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidateLength(req.Name, 1, MaxBotNameLength) || !ValidateLength(req.Description, 0, MaxDescLength) || !ValidateLength(req.SystemPrompt, 0, MaxPromptLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Field length out of bounds"})
		return
	}

	bot, err := h.registry.Create(c.Request.Context(), userID, usecases.BotConfig{
		Name:          SanitizeString(req.Name),
		Description:   SanitizeString(req.Description),
		TelegramToken: req.TelegramToken,
		SystemPrompt:  SanitizeString(req.SystemPrompt),
	})
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *Handler) GetBot(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	state, username := h.runtime.Status(bot.ID)
	c.JSON(http.StatusOK, gin.H{
		"bot":      bot,
		"running":  h.runtime.Running(bot.ID),
		"state":    string(state),
		"username": username,
	})
}

func (h *Handler) UpdateBot(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}

	var req struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		TelegramToken string `json:"telegram_token"`
		SystemPrompt  string `json:"system_prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidateLength(req.Name, 0, MaxBotNameLength) || !ValidateLength(req.Description, 0, MaxDescLength) || !ValidateLength(req.SystemPrompt, 0, MaxPromptLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Field length out of bounds"})
		return
	}

	bot, err := h.registry.Update(c.Request.Context(), userID, botID, usecases.BotConfig{
		Name:          SanitizeString(req.Name),
		Description:   SanitizeString(req.Description),
		TelegramToken: req.TelegramToken,
		SystemPrompt:  SanitizeString(req.SystemPrompt),
	})
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *Handler) DeleteBot(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}

	if err := h.registry.Delete(c.Request.Context(), userID, botID); err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) ActivateBot(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}

	bot, err := h.registry.Activate(c.Request.Context(), userID, botID)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "active",
		"bot_name": "@" + bot.TelegramUsername,
	})
}

func (h *Handler) DeactivateBot(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	botID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bot ID"})
		return
	}

	if _, err := h.registry.Deactivate(c.Request.Context(), userID, botID); err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *Handler) GetBotStatus(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	state, username := h.runtime.Status(bot.ID)
	c.JSON(http.StatusOK, gin.H{
		"status":   bot.Status,
		"running":  h.runtime.Running(bot.ID),
		"state":    string(state),
		"username": username,
	})
}

func (h *Handler) GetBotStats(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	conversations, messages, err := h.conversations.CountByBot(c.Request.Context(), bot.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_messages": bot.TotalMessages,
		"total_users":    bot.TotalUsers,
		"conversations":  conversations,
		"messages":       messages,
		"last_activity":  bot.LastActivity,
	})
}

// GetBotQR returns a QR code PNG linking to the bot's Telegram profile
func (h *Handler) GetBotQR(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	if bot.TelegramUsername == "" {
		c.String(http.StatusConflict, "Bot has not been activated yet")
		return
	}

	png, err := qrcode.Encode("https://t.me/"+bot.TelegramUsername, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// TestBot runs a message through the response pipeline without Telegram.
// It consumes quota like a real message.
func (h *Handler) TestBot(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message required"})
		return
	}
	if !ValidateLength(req.Message, 1, MaxMessageLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message too long"})
		return
	}

	reply, err := h.responder.Respond(c.Request.Context(), entities.InboundEvent{
		BotID:            bot.ID,
		ExternalUserID:   "web:" + strconv.Itoa(bot.UserID),
		ExternalUsername: "web-test",
		Text:             SanitizeString(req.Message),
	})
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *Handler) ListKnowledge(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	entries, err := h.knowledge.ListByBot(c.Request.Context(), bot.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch knowledge entries"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) AddKnowledge(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}

	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidateLength(req.Title, 1, MaxTitleLength) || req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and content required"})
		return
	}
	if len(req.Content) > h.maxKnowledgeSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content too large"})
		return
	}

	count, err := h.knowledge.CountByBot(c.Request.Context(), bot.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count entries"})
		return
	}
	allowed, err := h.ledger.CanAddKnowledge(c.Request.Context(), bot.UserID, count)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Knowledge entry limit reached for your plan"})
		return
	}

	entry := &entities.KnowledgeEntry{
		BotID:   bot.ID,
		Title:   SanitizeString(req.Title),
		Content: SanitizeString(req.Content),
	}
	if err := h.knowledge.Create(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save entry"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) DeleteKnowledge(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	entryID, err := strconv.Atoi(c.Param("entryID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry ID"})
		return
	}
	if err := h.knowledge.Delete(c.Request.Context(), bot.ID, entryID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete entry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) ListConversations(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	convs, err := h.conversations.ListByBot(c.Request.Context(), bot.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversations"})
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) ListMessages(c *gin.Context) {
	bot, ok := h.botParam(c)
	if !ok {
		return
	}
	convID, err := strconv.Atoi(c.Param("convID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	conv, err := h.conversations.GetByID(c.Request.Context(), convID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch conversation"})
		return
	}
	if conv == nil || conv.BotID != bot.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	messages, err := h.conversations.ListMessages(c.Request.Context(), convID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}
