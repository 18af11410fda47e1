// Package elevated is the only code path allowed to write into a user's
// contact list on another user's behalf. Every write must carry a link grant
// minted for that exact requester & target.
package elevated

import (
	"context"
	"errors"
	"fmt"

	"github.com/Daskott/tandem/server/auth/key"
	"github.com/Daskott/tandem/server/logger"
	"github.com/Daskott/tandem/server/models"
	"gorm.io/gorm"
)

type Status string

const (
	StatusCreated       Status = "created"
	StatusAlreadyExists Status = "already_exists"
)

var (
	ErrWriteFailed = models.ErrWriteFailed

	logg = logger.Named("elevated")
)

type contactStore interface {
	FindContactByEmail(ctx context.Context, ownerID uint, email string) (*models.Contact, error)
	UpsertContact(ctx context.Context, ownerID uint, counterpart models.CardDetails, tier, addedVia string) (bool, error)
}

type modelsContactStore struct{}

func (modelsContactStore) FindContactByEmail(ctx context.Context, ownerID uint, email string) (*models.Contact, error) {
	return models.FindContactByEmail(ctx, ownerID, email)
}

func (modelsContactStore) UpsertContact(ctx context.Context, ownerID uint, counterpart models.CardDetails, tier, addedVia string) (bool, error) {
	return models.UpsertContact(ctx, ownerID, counterpart, tier, addedVia)
}

type Executor struct {
	keyPair  *key.KeyPair
	contacts contactStore
}

func NewExecutor(keyPair *key.KeyPair) *Executor {
	return &Executor{keyPair: keyPair, contacts: modelsContactStore{}}
}

// WriteReciprocal adds the requester described by source to targetOwnerID's contacts
// as an Acquaintance added via mutual_contact. It never panics past this call.
func (e *Executor) WriteReciprocal(ctx context.Context, grant string, targetOwnerID uint, source models.CardDetails) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			logg.Errorf("recovered while writing reciprocal contact for user %v: %v", targetOwnerID, r)
			status, err = "", fmt.Errorf("%w: %v", ErrWriteFailed, r)
		}
	}()

	sourceCard, err := e.authorize(ctx, grant, targetOwnerID, source)
	if err != nil {
		return "", err
	}

	_, err = e.contacts.FindContactByEmail(ctx, targetOwnerID, sourceCard.Email)
	if err == nil {
		return StatusAlreadyExists, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		logg.Errorf("unable to look up contact for user %v: %v", targetOwnerID, err)
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	created, err := e.contacts.UpsertContact(ctx, targetOwnerID, sourceCard.Details(),
		models.TIER_ACQUAINTANCE, models.ADDED_VIA_MUTUAL_CONTACT)
	if err != nil {
		logg.Errorf("unable to write reciprocal contact for user %v: %v", targetOwnerID, err)
		return "", err
	}

	// lost a race with a concurrent link between the same pair
	if !created {
		return StatusAlreadyExists, nil
	}

	return StatusCreated, nil
}

// authorize checks the grant against the request & returns the requester's
// active card, which is what gets written.
func (e *Executor) authorize(ctx context.Context, grant string, targetOwnerID uint, source models.CardDetails) (*models.ContactCard, error) {
	claims, err := verifyGrant(grant, e.keyPair)
	if err != nil {
		return nil, err
	}

	if claims.TargetID != targetOwnerID || claims.RequesterID != source.UserID {
		return nil, fmt.Errorf("%w: grant does not match request", ErrUnauthorizedCaller)
	}

	if targetOwnerID == source.UserID {
		return nil, fmt.Errorf("%w: requester and target are the same user", ErrUnauthorizedCaller)
	}

	card, err := models.FindActiveCardByOwner(ctx, source.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: requester has no active card", ErrUnauthorizedCaller)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	if card.Email != models.NormalizeEmail(source.Email) {
		return nil, fmt.Errorf("%w: source card does not belong to requester", ErrUnauthorizedCaller)
	}

	exists, err := models.UserExists(ctx, targetOwnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: unknown target", ErrUnauthorizedCaller)
	}

	return card, nil
}
