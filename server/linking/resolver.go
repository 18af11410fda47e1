package linking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Daskott/tandem/server/identifier"
	"github.com/Daskott/tandem/server/metrics"
	"github.com/Daskott/tandem/server/models"
	"gorm.io/gorm"
)

var lowercaseShareCode = regexp.MustCompile(`^[a-f0-9]{8}$`)

// Resolver looks up active cards. Inactive cards are never returned.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveByCode expects a normalized, lowercase code
func (r *Resolver) ResolveByCode(ctx context.Context, code string) (*models.ContactCard, error) {
	if !lowercaseShareCode.MatchString(code) {
		metrics.CardLookups.WithLabelValues("share_code", "invalid_format").Inc()
		return nil, invalidFormat(code)
	}

	card, err := models.FindActiveCardByShareCode(ctx, code)
	return lookupResult("share_code", card, err)
}

// ResolveByUsername matches username exactly, case included
func (r *Resolver) ResolveByUsername(ctx context.Context, username string) (*models.ContactCard, error) {
	if strings.TrimSpace(username) == "" {
		metrics.CardLookups.WithLabelValues("username", "invalid_format").Inc()
		return nil, invalidFormat(username)
	}

	card, err := models.FindActiveCardByUsername(ctx, username)
	return lookupResult("username", card, err)
}

// Resolve dispatches a parsed identifier to the matching lookup
func (r *Resolver) Resolve(ctx context.Context, target identifier.Result) (*models.ContactCard, error) {
	switch target.Kind {
	case identifier.ShareCode:
		return r.ResolveByCode(ctx, target.Value)
	case identifier.Username:
		return r.ResolveByUsername(ctx, target.Value)
	default:
		return nil, invalidFormat(target.Value)
	}
}

func lookupResult(by string, card *models.ContactCard, err error) (*models.ContactCard, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.CardLookups.WithLabelValues(by, "not_found").Inc()
		return nil, ErrNotFound
	}

	if err != nil {
		metrics.CardLookups.WithLabelValues(by, "error").Inc()
		logg.Errorf("card lookup by %s failed: %v", by, err)
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	metrics.CardLookups.WithLabelValues(by, "found").Inc()
	return card, nil
}
