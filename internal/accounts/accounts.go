// Package accounts manages users, their passwords and linked external provider accounts.
package accounts

import (
	"chatcore/backend/internal/config"
	"chatcore/backend/internal/models"
	"chatcore/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccountInput links an external provider identity to a user.
type AccountInput struct {
	UserID            string     `json:"-"`
	Type              string     `json:"type" binding:"required"`
	Provider          string     `json:"provider" binding:"required"`
	ProviderAccountID string     `json:"provider_account_id" binding:"required"`
	Tokens            TokenSet   `json:"tokens"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// TokenSet holds the OAuth tokens of a provider account.
type TokenSet struct {
	AccessToken  *string    `json:"access_token,omitempty"`
	RefreshToken *string    `json:"refresh_token,omitempty"`
	IDToken      *string    `json:"id_token,omitempty"`
	Scope        *string    `json:"scope,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

type Service struct {
	Storage *storage.Service
	// Cost is the bcrypt cost used for new password hashes.
	Cost int
}

func NewService(s *storage.Service) *Service {
	return &Service{Storage: s, Cost: bcrypt.DefaultCost}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, name, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", models.ErrInvalidInput)
	}
	if len(password) < config.MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, config.MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return nil, err
	}
	hashed := string(hash)
	user := &models.User{Email: email, PasswordHash: &hashed}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = &name
	}

	err = s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if errors.Is(err, models.ErrUniqueViolation) {
		return nil, fmt.Errorf("%w: email %s is already registered", models.ErrConflict, email)
	}
	if err != nil {
		log.Printf("ERROR: [Accounts] Failed to register %s: %v", email, err)
		return nil, err
	}
	log.Printf("INFO: [Accounts] User %s registered", user.ID)
	return user, nil
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	if err := s.Storage.Reader(ctx).First(&user, "email = ?", NormalizeEmail(email)).Error; err != nil {
		return nil, storage.TranslateError(err)
	}
	if user.PasswordHash == nil {
		return nil, fmt.Errorf("%w: user %s has no password", models.ErrForbidden, user.ID)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: wrong password", models.ErrForbidden)
	}
	return &user, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.Storage.Reader(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, storage.TranslateError(err)
	}
	return &user, nil
}

// LinkAccount attaches a provider account to a user. Linking the same identity to the same
// user again returns the existing row; linking it to another user is a conflict.
func (s *Service) LinkAccount(ctx context.Context, in AccountInput) (*models.Account, error) {
	if in.UserID == "" || in.Provider == "" || in.ProviderAccountID == "" || in.Type == "" {
		return nil, fmt.Errorf("%w: user, type, provider and provider account id are required", models.ErrInvalidInput)
	}

	var acc models.Account
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		var users int64
		if err := tx.Model(&models.User{}).Where("id = ?", in.UserID).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			return fmt.Errorf("%w: user %s", models.ErrNotFound, in.UserID)
		}

		err := tx.Where("provider = ? AND provider_account_id = ?", in.Provider, in.ProviderAccountID).
			Take(&acc).Error
		switch {
		case err == nil:
			if acc.UserID != in.UserID {
				return fmt.Errorf("%w: %s account is linked to another user", models.ErrConflict, in.Provider)
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		expires := in.ExpiresAt
		if expires == nil {
			expires = in.Tokens.ExpiresAt
		}
		acc = models.Account{
			UserID:            in.UserID,
			Type:              in.Type,
			Provider:          in.Provider,
			ProviderAccountID: in.ProviderAccountID,
			AccessToken:       in.Tokens.AccessToken,
			RefreshToken:      in.Tokens.RefreshToken,
			IDToken:           in.Tokens.IDToken,
			Scope:             in.Tokens.Scope,
			ExpiresAt:         expires,
		}
		return tx.Create(&acc).Error
	})
	if errors.Is(err, models.ErrUniqueViolation) {
		return nil, fmt.Errorf("%w: %s account is already linked", models.ErrConflict, in.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// RefreshTokens replaces the stored tokens of a provider account. Nil fields are left unchanged.
func (s *Service) RefreshTokens(ctx context.Context, provider, providerAccountID string, tokens TokenSet) (*models.Account, error) {
	var acc models.Account
	err := s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
			Take(&acc).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{"updated_at": time.Now().UTC()}
		if tokens.AccessToken != nil {
			updates["access_token"] = *tokens.AccessToken
			acc.AccessToken = tokens.AccessToken
		}
		if tokens.RefreshToken != nil {
			updates["refresh_token"] = *tokens.RefreshToken
			acc.RefreshToken = tokens.RefreshToken
		}
		if tokens.IDToken != nil {
			updates["id_token"] = *tokens.IDToken
			acc.IDToken = tokens.IDToken
		}
		if tokens.Scope != nil {
			updates["scope"] = *tokens.Scope
			acc.Scope = tokens.Scope
		}
		if tokens.ExpiresAt != nil {
			updates["expires_at"] = tokens.ExpiresAt.UTC()
			acc.ExpiresAt = tokens.ExpiresAt
		}
		return tx.Model(&models.Account{}).Where("id = ?", acc.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// UnlinkAccount removes a provider account of the user. Unlinking twice is a no-op.
func (s *Service) UnlinkAccount(ctx context.Context, userID, provider, providerAccountID string) error {
	return s.Storage.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Where("user_id = ? AND provider = ? AND provider_account_id = ?", userID, provider, providerAccountID).
			Delete(&models.Account{}).Error
	})
}

func (s *Service) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	var accounts []models.Account
	err := s.Storage.Reader(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}
