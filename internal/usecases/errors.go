package usecases

import "errors"

var (
	// Account errors
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
	ErrInvalidLogin  = errors.New("invalid credentials")
	ErrAccountLocked = errors.New("account is disabled")

	// Validation and limit errors
	ErrValidation        = errors.New("invalid input")
	ErrInvalidCredential = errors.New("platform credential has invalid format")
	ErrLimitExceeded     = errors.New("plan limit exceeded")
	ErrQuotaExceeded     = errors.New("monthly message quota exceeded")

	// Lookup errors
	ErrNotFound    = errors.New("not found")
	ErrBotInactive = errors.New("bot is not active")
	ErrBotActive   = errors.New("bot is still active")

	// Collaborator errors
	ErrAIService = errors.New("AI service failure")
	ErrPlatform  = errors.New("messaging platform failure")
)
