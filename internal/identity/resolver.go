// Package identity resolves and remembers who is bidding in a browser session.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/utils"
)

// ContactFinder looks up a previous bidder by contact details.
type ContactFinder interface {
	FindBidderByContact(ctx context.Context, itemID, email, phone string) (model.BidderIdentity, error)
}

// Resolver maps contact details to a previously used bidder identity.
type Resolver struct {
	finder ContactFinder
}

// NewResolver creates a Resolver backed by finder.
func NewResolver(finder ContactFinder) *Resolver {
	return &Resolver{finder: finder}
}

// Resolve returns the identity of the latest bid on itemID carrying email, or
// phone when email is empty. Every failure wraps ErrBidderNotFound so callers
// can treat it as not found; backend failures are logged separately.
func (r *Resolver) Resolve(ctx context.Context, itemID, email, phone string) (model.BidderIdentity, error) {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return model.BidderIdentity{}, fmt.Errorf("identity: empty contact: %w", biddingerrors.ErrBidderNotFound)
	}

	identity, err := r.finder.FindBidderByContact(ctx, itemID, email, phone)
	if err == nil {
		return identity, nil
	}

	if errors.Is(err, biddingerrors.ErrBidderNotFound) {
		utils.Info("identity: bidder not found", map[string]any{
			"component": "identity",
			"item_id":   itemID,
			"by_email":  email != "",
		})
		return model.BidderIdentity{}, err
	}

	utils.Warn("identity: bidder lookup failed", map[string]any{
		"component":     "identity",
		"item_id":       itemID,
		"lookup_failed": true,
		"error":         err.Error(),
	})
	return model.BidderIdentity{}, fmt.Errorf("identity: %w: %w", biddingerrors.ErrBidderNotFound,
		&biddingerrors.NetworkError{Op: "find bidder", Err: err})
}
