package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"botfactory/internal/entities"
	"botfactory/internal/interfaces"
)

type AuthUsecase struct {
	userRepo  interfaces.UserRepo
	ledger    *SubscriptionLedger
	jwtSecret []byte
}

func NewAuthUsecase(userRepo interfaces.UserRepo, ledger *SubscriptionLedger, secret string) *AuthUsecase {
	return &AuthUsecase{
		userRepo:  userRepo,
		ledger:    ledger,
		jwtSecret: []byte(secret),
	}
}

// Register creates the account and its free-tier subscription.
func (uc *AuthUsecase) Register(ctx context.Context, username, email, password, firstName, lastName string) (*entities.User, error) {
	existing, err := uc.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	existing, err = uc.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &entities.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		FirstName:    firstName,
		LastName:     lastName,
		Role:         "user",
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := uc.ledger.CreateDefault(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("create default subscription: %w", err)
	}

	return user, nil
}

func (uc *AuthUsecase) Login(ctx context.Context, username, password string) (string, error) {
	user, err := uc.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrInvalidLogin
	}
	if !user.Active {
		return "", ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidLogin
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     time.Now().Add(time.Hour * 24).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}

	return tokenString, nil
}

// EnsureAdmin creates an admin user if none exists (called on startup)
func (uc *AuthUsecase) EnsureAdmin(ctx context.Context, username, password string) error {
	user, err := uc.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user != nil {
		return nil
	}

	hashed, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	admin := &entities.User{
		Username:     username,
		Email:        username + "@localhost",
		PasswordHash: string(hashed),
		Role:         "admin",
	}
	if err := uc.userRepo.Create(ctx, admin); err != nil {
		return err
	}
	return uc.ledger.CreateDefault(ctx, admin.ID)
}
