package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	TIER_A_PLAYER     = "A-player"
	TIER_ACQUAINTANCE = "Acquaintance"

	ADDED_VIA_SHARE_CODE     = "share_code"
	ADDED_VIA_QR_CODE        = "qr_code"
	ADDED_VIA_MUTUAL_CONTACT = "mutual_contact"
)

var (
	// ErrWriteFailed wraps every storage error raised while writing a contact row
	ErrWriteFailed = errors.New("unable to save contact")

	tiers        = map[string]bool{TIER_A_PLAYER: true, TIER_ACQUAINTANCE: true}
	addedViaKind = map[string]bool{ADDED_VIA_SHARE_CODE: true, ADDED_VIA_QR_CODE: true, ADDED_VIA_MUTUAL_CONTACT: true}

	updatableContactFields = []string{"tier", "notes"}
)

// Contact is one owner's private record of a counterpart. The counterpart's own
// copy, if any, is an unrelated row owned by them.
type Contact struct {
	BaseModel
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_contacts_owner_email"`
	Name      string    `json:"name" gorm:"not null"`
	Email     string    `json:"email" gorm:"not null;uniqueIndex:idx_contacts_owner_email"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	Services  []string  `json:"services,omitempty" gorm:"serializer:json"`
	LinkedIn  string    `json:"linkedin,omitempty"`
	Facebook  string    `json:"facebook,omitempty"`
	WhatsApp  string    `json:"whatsapp,omitempty"`
	Websites  []string  `json:"websites,omitempty" gorm:"serializer:json"`
	Notes     string    `json:"notes,omitempty"`
	Tier      string    `json:"tier" gorm:"not null"`
	AddedVia  string    `json:"added_via" gorm:"not null"`
	AddedDate time.Time `json:"added_date"`
}

func IsValidTier(tier string) bool {
	return tiers[tier]
}

func IsValidAddedVia(addedVia string) bool {
	return addedViaKind[addedVia]
}

// UpsertContact inserts a contact for ownerID describing counterpart. When the owner already
// holds a contact with the counterpart's email nothing is written and created is false.
func UpsertContact(ctx context.Context, ownerID uint, counterpart CardDetails, tier, addedVia string) (created bool, err error) {
	if !IsValidTier(tier) {
		return false, fmt.Errorf("%w: unknown tier %q", ErrWriteFailed, tier)
	}

	if !IsValidAddedVia(addedVia) {
		return false, fmt.Errorf("%w: unknown added_via %q", ErrWriteFailed, addedVia)
	}

	contact := newContact(ownerID, counterpart, tier, addedVia)
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "email"}},
		DoNothing: true,
	}).Create(&contact)

	if res.Error != nil {
		return false, fmt.Errorf("%w: %w", ErrWriteFailed, res.Error)
	}

	return res.RowsAffected > 0, nil
}

// FindContactByEmail returns ownerID's contact for email or gorm.ErrRecordNotFound
func FindContactByEmail(ctx context.Context, ownerID uint, email string) (*Contact, error) {
	contact := Contact{}
	err := db.WithContext(ctx).Where("user_id = ? AND email = ?", ownerID, NormalizeEmail(email)).First(&contact).Error
	if err != nil {
		return nil, err
	}

	return &contact, nil
}

func FetchContacts(ownerID uint, page int) ([]Contact, *Paging, error) {
	var total int64
	contacts := []Contact{}

	err := db.Model(&Contact{}).Where("user_id = ?", ownerID).Count(&total).Error
	if err != nil {
		return nil, nil, err
	}

	err = db.Scopes(paginate(page, DEFAULT_PAGE_SIZE)).
		Where("user_id = ?", ownerID).Order("contacts.id desc").Find(&contacts).Error
	if err != nil {
		return nil, nil, err
	}

	return contacts, newPaging(int64(page), DEFAULT_PAGE_SIZE, total), nil
}

// UpdateContact edits tier/notes on one of the owner's contacts
func UpdateContact(ownerID uint, contactID interface{}, data map[string]interface{}) error {
	if tier, ok := data["tier"]; ok && !IsValidTier(fmt.Sprint(tier)) {
		return fmt.Errorf("unknown tier %q", tier)
	}

	res := db.Model(&Contact{}).Where("id = ? AND user_id = ?", contactID, ownerID).
		Select(updatableContactFields).Updates(data)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// DeleteContact removes the owner's row only, the counterpart keeps theirs
func DeleteContact(ownerID uint, contactID interface{}) error {
	res := db.Where("user_id = ?", ownerID).Delete(&Contact{}, contactID)
	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func CountContacts(ownerID uint) (int64, error) {
	var total int64
	err := db.Model(&Contact{}).Where("user_id = ?", ownerID).Count(&total).Error
	return total, err
}

func newContact(ownerID uint, counterpart CardDetails, tier, addedVia string) Contact {
	return Contact{
		UserID:    ownerID,
		Name:      counterpart.Name,
		Email:     NormalizeEmail(counterpart.Email),
		Phone:     counterpart.Phone,
		Company:   counterpart.Company,
		Industry:  counterpart.Industry,
		Services:  counterpart.Services,
		LinkedIn:  counterpart.LinkedIn,
		Facebook:  counterpart.Facebook,
		WhatsApp:  counterpart.WhatsApp,
		Websites:  counterpart.Websites,
		Tier:      tier,
		AddedVia:  addedVia,
		AddedDate: time.Now().UTC(),
	}
}
