package models

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/Daskott/tandem/utils"
	"gorm.io/gorm"
)

const (
	SHARE_CODE_LENGTH       = 8
	maxShareCodeGenerations = 10
)

var (
	ErrUsernameTaken             = errors.New("username is already taken")
	ErrShareCodeUnavailable      = errors.New("unable to generate a unique share code")
	ErrNoActiveCard              = errors.New("no active contact card")
	ErrUnknownVisibilityField    = errors.New("unknown public_visibility field")
	publicVisibilityFields       = []string{"email", "phone", "company", "industry", "services", "linkedin", "facebook", "whatsapp", "websites"}
	allowedPublicVisibilityField = toSet(publicVisibilityFields)

	updatableCardFields = []string{"name", "email", "phone", "company", "industry", "services",
		"linked_in", "facebook", "whats_app", "websites", "username", "public_visibility"}
)

// ContactCard is a user's own publishable identity, addressed by its share code.
// Only one card per user may be active at a time.
type ContactCard struct {
	BaseModel
	UserID           uint            `json:"user_id" gorm:"not null;uniqueIndex:idx_one_active_card_per_user,where:is_active = true"`
	Name             string          `json:"name" gorm:"not null"`
	Email            string          `json:"email" gorm:"not null"`
	Phone            string          `json:"phone,omitempty"`
	Company          string          `json:"company,omitempty"`
	Industry         string          `json:"industry,omitempty"`
	Services         []string        `json:"services" gorm:"serializer:json"`
	LinkedIn         string          `json:"linkedin,omitempty"`
	Facebook         string          `json:"facebook,omitempty"`
	WhatsApp         string          `json:"whatsapp,omitempty"`
	Websites         []string        `json:"websites" gorm:"serializer:json"`
	ShareCode        string          `json:"share_code" gorm:"size:8;not null;uniqueIndex"`
	Username         *string         `json:"username,omitempty" gorm:"uniqueIndex"`
	IsActive         bool            `json:"is_active" gorm:"not null"`
	PublicVisibility map[string]bool `json:"public_visibility" gorm:"serializer:json"`
}

// CardDetails holds the fields copied from a card into a contact row.
type CardDetails struct {
	UserID   uint     `json:"user_id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Phone    string   `json:"phone,omitempty"`
	Company  string   `json:"company,omitempty"`
	Industry string   `json:"industry,omitempty"`
	Services []string `json:"services,omitempty"`
	LinkedIn string   `json:"linkedin,omitempty"`
	Facebook string   `json:"facebook,omitempty"`
	WhatsApp string   `json:"whatsapp,omitempty"`
	Websites []string `json:"websites,omitempty"`
}

// CardInput is what an owner may set on their own card.
type CardInput struct {
	Name             string          `json:"name" validate:"required"`
	Email            string          `json:"email" validate:"required,email"`
	Phone            string          `json:"phone"`
	Company          string          `json:"company"`
	Industry         string          `json:"industry"`
	Services         []string        `json:"services"`
	LinkedIn         string          `json:"linkedin"`
	Facebook         string          `json:"facebook"`
	WhatsApp         string          `json:"whatsapp"`
	Websites         []string        `json:"websites"`
	Username         string          `json:"username" validate:"omitempty,username"`
	PublicVisibility map[string]bool `json:"public_visibility"`
}

// PublicCard is the view of a card served to anyone holding its code.
type PublicCard struct {
	Name      string   `json:"name"`
	ShareCode string   `json:"share_code"`
	Username  string   `json:"username,omitempty"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Company   string   `json:"company,omitempty"`
	Industry  string   `json:"industry,omitempty"`
	Services  []string `json:"services,omitempty"`
	LinkedIn  string   `json:"linkedin,omitempty"`
	Facebook  string   `json:"facebook,omitempty"`
	WhatsApp  string   `json:"whatsapp,omitempty"`
	Websites  []string `json:"websites,omitempty"`
}

func (card *ContactCard) Details() CardDetails {
	return CardDetails{
		UserID:   card.UserID,
		Name:     card.Name,
		Email:    card.Email,
		Phone:    card.Phone,
		Company:  card.Company,
		Industry: card.Industry,
		Services: card.Services,
		LinkedIn: card.LinkedIn,
		Facebook: card.Facebook,
		WhatsApp: card.WhatsApp,
		Websites: card.Websites,
	}
}

// IsVisible reports whether field may be shown publicly, fields default to visible
func (card *ContactCard) IsVisible(field string) bool {
	visible, ok := card.PublicVisibility[field]
	return !ok || visible
}

func (card *ContactCard) PublicView() PublicCard {
	view := PublicCard{
		Name:      card.Name,
		ShareCode: card.ShareCode,
		Username:  utils.Deref(card.Username),
	}

	if card.IsVisible("email") {
		view.Email = card.Email
	}
	if card.IsVisible("phone") {
		view.Phone = card.Phone
	}
	if card.IsVisible("company") {
		view.Company = card.Company
	}
	if card.IsVisible("industry") {
		view.Industry = card.Industry
	}
	if card.IsVisible("services") {
		view.Services = card.Services
	}
	if card.IsVisible("linkedin") {
		view.LinkedIn = card.LinkedIn
	}
	if card.IsVisible("facebook") {
		view.Facebook = card.Facebook
	}
	if card.IsVisible("whatsapp") {
		view.WhatsApp = card.WhatsApp
	}
	if card.IsVisible("websites") {
		view.Websites = card.Websites
	}

	return view
}

func FindActiveCardByShareCode(ctx context.Context, code string) (*ContactCard, error) {
	return findActiveCard(ctx, "share_code = ?", code)
}

// FindActiveCardByUsername matches username exactly, case included
func FindActiveCardByUsername(ctx context.Context, username string) (*ContactCard, error) {
	return findActiveCard(ctx, "username = ?", username)
}

func FindActiveCardByOwner(ctx context.Context, userID uint) (*ContactCard, error) {
	return findActiveCard(ctx, "user_id = ?", userID)
}

// UpsertOwnCard creates the owner's active card, or updates it when one exists.
func UpsertOwnCard(ctx context.Context, userID uint, input CardInput) (*ContactCard, error) {
	if err := validateVisibility(input.PublicVisibility); err != nil {
		return nil, err
	}

	card := ContactCard{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Scopes(activeOnly).First(&card, "user_id = ?", userID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		username := utils.NilIfEmpty(input.Username)
		if err := ensureUsernameAvailable(tx, username, card.ID); err != nil {
			return err
		}

		if card.ID == 0 {
			code, err := newUniqueShareCode(tx)
			if err != nil {
				return err
			}

			card = ContactCard{UserID: userID, ShareCode: code, IsActive: true}
			applyCardInput(&card, input, username)
			return tx.Create(&card).Error
		}

		applyCardInput(&card, input, username)
		return tx.Model(&card).Select(updatableCardFields).Updates(&card).Error
	})
	if err != nil {
		return nil, err
	}

	return &card, nil
}

// RegenerateShareCode retires the owner's active card & replaces it with a copy
// under a fresh share code. The old code stops resolving once this commits.
func RegenerateShareCode(ctx context.Context, userID uint) (*ContactCard, error) {
	newCard := ContactCard{}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current := ContactCard{}
		err := tx.Scopes(activeOnly).First(&current, "user_id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoActiveCard
		}
		if err != nil {
			return err
		}

		err = tx.Model(&ContactCard{}).Where("id = ?", current.ID).
			Updates(map[string]interface{}{"is_active": false, "username": nil}).Error
		if err != nil {
			return err
		}

		code, err := newUniqueShareCode(tx)
		if err != nil {
			return err
		}

		newCard = current
		newCard.BaseModel = BaseModel{}
		newCard.ShareCode = code
		newCard.IsActive = true
		return tx.Create(&newCard).Error
	})
	if err != nil {
		return nil, err
	}

	return &newCard, nil
}

// DeactivateCard hides the owner's active card from every lookup & releases its username
func DeactivateCard(ctx context.Context, userID uint) error {
	res := db.WithContext(ctx).Model(&ContactCard{}).Scopes(activeOnly).Where("user_id = ?", userID).
		Updates(map[string]interface{}{"is_active": false, "username": nil})
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrNoActiveCard
	}

	return nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func findActiveCard(ctx context.Context, query string, args ...interface{}) (*ContactCard, error) {
	card := ContactCard{}
	err := db.WithContext(ctx).Scopes(activeOnly).Where(query, args...).First(&card).Error
	if err != nil {
		return nil, err
	}

	return &card, nil
}

func applyCardInput(card *ContactCard, input CardInput, username *string) {
	card.Name = strings.TrimSpace(input.Name)
	card.Email = NormalizeEmail(input.Email)
	card.Phone = input.Phone
	card.Company = input.Company
	card.Industry = input.Industry
	card.Services = input.Services
	card.LinkedIn = input.LinkedIn
	card.Facebook = input.Facebook
	card.WhatsApp = input.WhatsApp
	card.Websites = input.Websites
	card.Username = username
	card.PublicVisibility = input.PublicVisibility
}

func ensureUsernameAvailable(tx *gorm.DB, username *string, ownCardID uint) error {
	if username == nil {
		return nil
	}

	var count int64
	err := tx.Model(&ContactCard{}).Where("username = ? AND id <> ?", *username, ownCardID).Count(&count).Error
	if err != nil {
		return err
	}

	if count > 0 {
		return ErrUsernameTaken
	}

	return nil
}

func validateVisibility(visibility map[string]bool) error {
	for field := range visibility {
		if !allowedPublicVisibilityField[field] {
			return fmt.Errorf("%w: %q", ErrUnknownVisibilityField, field)
		}
	}
	return nil
}

func newUniqueShareCode(tx *gorm.DB) (string, error) {
	for i := 0; i < maxShareCodeGenerations; i++ {
		code, err := GenerateShareCode()
		if err != nil {
			return "", err
		}

		var count int64
		err = tx.Model(&ContactCard{}).Where("share_code = ?", code).Count(&count).Error
		if err != nil {
			return "", err
		}

		if count == 0 {
			return code, nil
		}
	}

	return "", ErrShareCodeUnavailable
}

// GenerateShareCode returns 8 random lowercase hex characters
func GenerateShareCode() (string, error) {
	buf := make([]byte, SHARE_CODE_LENGTH/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, value := range values {
		set[value] = true
	}
	return set
}
