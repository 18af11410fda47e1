// Package linking adds two users to each other's contacts. The requester's
// side is written directly; the counterpart's side goes through the elevated
// boundary with a grant scoped to this one attempt. The two writes are not
// transactional: a failed counterpart write leaves the requester's row in
// place & is reported as a partial success.
package linking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Daskott/tandem/server/elevated"
	"github.com/Daskott/tandem/server/events"
	"github.com/Daskott/tandem/server/identifier"
	"github.com/Daskott/tandem/server/logger"
	"github.com/Daskott/tandem/server/metrics"
	"github.com/Daskott/tandem/server/models"
	"gorm.io/gorm"
)

var logg = logger.Named("linking")

// ContactWriter writes a contact into the acting user's own list
type ContactWriter interface {
	UpsertContact(ctx context.Context, ownerID uint, counterpart models.CardDetails, tier, addedVia string) (bool, error)
}

// ReciprocalWriter writes into the target's list, see elevated.Executor & elevated.Client
type ReciprocalWriter interface {
	WriteReciprocal(ctx context.Context, grant string, targetOwnerID uint, source models.CardDetails) (elevated.Status, error)
}

type GrantIssuer interface {
	Issue(requesterID, targetID uint) (string, error)
}

// Notifier tells a target they were added. Failures are logged & ignored.
type Notifier interface {
	NotifyNewContact(ctx context.Context, targetOwnerID uint, requester models.CardDetails) error
}

type LinkRequest struct {
	RequesterID uint
	Target      identifier.Result
	// Tier for the requester's own row, defaults to Acquaintance
	Tier string
	// AddedVia for the requester's own row, defaults to share_code
	AddedVia string
}

type Orchestrator struct {
	resolver   *Resolver
	contacts   ContactWriter
	reciprocal ReciprocalWriter
	grants     GrantIssuer
	events     events.Publisher
	notifier   Notifier
}

// ModelsContactWriter writes through the models package
type ModelsContactWriter struct{}

func (ModelsContactWriter) UpsertContact(ctx context.Context, ownerID uint, counterpart models.CardDetails, tier, addedVia string) (bool, error) {
	return models.UpsertContact(ctx, ownerID, counterpart, tier, addedVia)
}

// NewOrchestrator wires a link orchestrator. publisher & notifier may be nil.
func NewOrchestrator(contacts ContactWriter, reciprocal ReciprocalWriter, grants GrantIssuer,
	publisher events.Publisher, notifier Notifier) *Orchestrator {
	if contacts == nil {
		contacts = ModelsContactWriter{}
	}

	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &Orchestrator{
		resolver:   NewResolver(),
		contacts:   contacts,
		reciprocal: reciprocal,
		grants:     grants,
		events:     publisher,
		notifier:   notifier,
	}
}

// Resolver exposes the read-only card lookups used for public card views
func (o *Orchestrator) Resolver() *Resolver {
	return o.resolver
}

func (o *Orchestrator) LinkByCode(ctx context.Context, requesterID uint, code, tier string) (*LinkOutcome, error) {
	return o.Link(ctx, LinkRequest{
		RequesterID: requesterID,
		Target:      identifier.Result{Kind: identifier.ShareCode, Value: code},
		Tier:        tier,
		AddedVia:    models.ADDED_VIA_SHARE_CODE,
	})
}

func (o *Orchestrator) LinkByUsername(ctx context.Context, requesterID uint, username, tier string) (*LinkOutcome, error) {
	return o.Link(ctx, LinkRequest{
		RequesterID: requesterID,
		Target:      identifier.Result{Kind: identifier.Username, Value: username},
		Tier:        tier,
		AddedVia:    models.ADDED_VIA_SHARE_CODE,
	})
}

// LinkByScan parses raw QR/camera text before linking
func (o *Orchestrator) LinkByScan(ctx context.Context, requesterID uint, text, tier string) (*LinkOutcome, error) {
	target := identifier.Parse(text)
	if !target.IsValid() {
		o.recordFailure(ErrInvalidFormat)
		return nil, invalidFormat(text)
	}

	return o.Link(ctx, LinkRequest{
		RequesterID: requesterID,
		Target:      target,
		Tier:        tier,
		AddedVia:    models.ADDED_VIA_QR_CODE,
	})
}

// Link resolves the target, writes the requester's row, then asks the elevated
// boundary for the reciprocal row. Nothing is written when resolution or the
// guards fail.
func (o *Orchestrator) Link(ctx context.Context, req LinkRequest) (*LinkOutcome, error) {
	tier, addedVia := withDefaults(req)

	target, err := o.resolver.Resolve(ctx, req.Target)
	if err != nil {
		o.recordFailure(err)
		return nil, err
	}

	if target.UserID == req.RequesterID {
		o.recordFailure(ErrSelfLinkRejected)
		return nil, ErrSelfLinkRejected
	}

	// The reciprocal row is built from the requester's published card, not the session
	requesterCard, err := models.FindActiveCardByOwner(ctx, req.RequesterID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		o.recordFailure(ErrRequesterCardMissing)
		return nil, ErrRequesterCardMissing
	}
	if err != nil {
		logg.Errorf("unable to load card for requester %v: %v", req.RequesterID, err)
		o.recordFailure(ErrLookupFailed)
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}

	targetView := target.PublicView()
	outcome := &LinkOutcome{Target: &targetView}

	created, err := o.contacts.UpsertContact(ctx, req.RequesterID, target.Details(), tier, addedVia)
	if err != nil {
		logg.Errorf("requester %v: unable to add user %v: %v", req.RequesterID, target.UserID, err)
		outcome.OwnSide, outcome.CounterpartSide = Failed, Skipped
		outcome.State = aggregate(outcome.OwnSide, outcome.CounterpartSide)
		o.record(outcome)

		if !errors.Is(err, ErrWriteFailed) {
			err = fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}
		return outcome, err
	}

	outcome.OwnSide = sideStatus(created)
	outcome.CounterpartSide = o.writeCounterpart(ctx, req.RequesterID, target.UserID, requesterCard.Details())
	outcome.State = aggregate(outcome.OwnSide, outcome.CounterpartSide)
	if outcome.State == CounterpartSideFailed {
		outcome.Warning = PARTIAL_LINK_WARNING
	}

	o.record(outcome)
	o.afterLink(ctx, req.RequesterID, target.UserID, requesterCard.Details(), outcome)

	return outcome, nil
}

func (o *Orchestrator) writeCounterpart(ctx context.Context, requesterID, targetID uint, source models.CardDetails) SideStatus {
	grant, err := o.grants.Issue(requesterID, targetID)
	if err != nil {
		logg.Errorf("unable to issue link grant for %v -> %v: %v", requesterID, targetID, err)
		return Failed
	}

	status, err := o.reciprocal.WriteReciprocal(ctx, grant, targetID, source)
	if err != nil {
		logg.Errorf("reciprocal write for %v -> %v failed: %v", requesterID, targetID, err)
		return Failed
	}

	if status == elevated.StatusAlreadyExists {
		return AlreadyExisted
	}
	return Created
}

func (o *Orchestrator) afterLink(ctx context.Context, requesterID, targetID uint, source models.CardDetails, outcome *LinkOutcome) {
	err := o.events.Publish(ctx, events.Event{
		Type:            events.CONTACT_LINKED,
		RequesterID:     requesterID,
		TargetOwnerID:   targetID,
		State:           string(outcome.State),
		OwnSide:         string(outcome.OwnSide),
		CounterpartSide: string(outcome.CounterpartSide),
		OccurredAt:      time.Now().UTC(),
	})
	if err != nil {
		logg.Warnf("unable to publish %s event: %v", events.CONTACT_LINKED, err)
	}

	if o.notifier == nil || outcome.CounterpartSide != Created {
		return
	}

	if err := o.notifier.NotifyNewContact(ctx, targetID, source); err != nil {
		logg.Warnf("unable to notify user %v of new contact: %v", targetID, err)
	}
}

func (o *Orchestrator) record(outcome *LinkOutcome) {
	metrics.LinkAttempts.WithLabelValues(string(outcome.State)).Inc()
	metrics.LinkSideWrites.WithLabelValues("own", string(outcome.OwnSide)).Inc()
	metrics.LinkSideWrites.WithLabelValues("counterpart", string(outcome.CounterpartSide)).Inc()
}

func (o *Orchestrator) recordFailure(err error) {
	state := "lookup_failed"
	switch {
	case errors.Is(err, ErrInvalidFormat):
		state = "invalid_format"
	case errors.Is(err, ErrNotFound):
		state = "not_found"
	case errors.Is(err, ErrSelfLinkRejected):
		state = "self_link_rejected"
	case errors.Is(err, ErrRequesterCardMissing):
		state = "requester_card_missing"
	}
	metrics.LinkAttempts.WithLabelValues(state).Inc()
}

func withDefaults(req LinkRequest) (tier, addedVia string) {
	tier, addedVia = req.Tier, req.AddedVia
	if tier == "" {
		tier = models.TIER_ACQUAINTANCE
	}
	if addedVia == "" {
		addedVia = models.ADDED_VIA_SHARE_CODE
	}
	return tier, addedVia
}
