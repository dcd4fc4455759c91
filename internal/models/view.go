package models

import "time"

// Tab is the bidder panel currently shown by a view.
type Tab string

const (
	TabNew       Tab = "new"
	TabReturning Tab = "returning"
	TabYourBids  Tab = "your-bids"
)

// Valid reports whether t names a known tab.
func (t Tab) Valid() bool {
	switch t {
	case TabNew, TabReturning, TabYourBids:
		return true
	}
	return false
}

// BidderMode selects where the identity of a submitted bid comes from.
type BidderMode string

const (
	// ModeNew takes name, email and phone from the submitted form.
	ModeNew BidderMode = "new"
	// ModeReturning uses the identity found by a returning-bidder search.
	ModeReturning BidderMode = "returning"
	// ModePersonal uses the identity already established for the session.
	ModePersonal BidderMode = "personal"
)

// BidForm is the raw, unsanitized bid form as typed by the visitor.
type BidForm struct {
	Mode   BidderMode `json:"mode"`
	Amount string     `json:"bid_amount"`
	Name   string     `json:"bidder_name"`
	Email  string     `json:"bidder_email"`
	Phone  string     `json:"bidder_phone"`
}

// Countdown is the time remaining until the auction end.
type Countdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// CountdownUntil breaks the duration between now and end into days, hours,
// minutes and seconds. A past end yields the zero countdown.
func CountdownUntil(now, end time.Time) Countdown {
	d := end.Sub(now)
	if d <= 0 {
		return Countdown{}
	}
	secs := int(d / time.Second)
	return Countdown{
		Days:    secs / 86400,
		Hours:   (secs % 86400) / 3600,
		Minutes: (secs % 3600) / 60,
		Seconds: secs % 60,
	}
}

// AuctionState is the reconciled, non-authoritative display cache of an item.
type AuctionState struct {
	Item       Item      `json:"item"`
	Loaded     bool      `json:"loaded"`
	CurrentBid int64     `json:"current_bid"`
	History    []Bid     `json:"bid_history"`
	Ended      bool      `json:"auction_ended"`
	TimeLeft   Countdown `json:"time_left"`
	Notice     string    `json:"notice,omitempty"`
	LastSynced time.Time `json:"last_synced"`
	Version    uint64    `json:"version"`
}

// LookupStatus is the state of a returning-bidder search.
type LookupStatus string

const (
	LookupIdle      LookupStatus = "idle"
	LookupSearching LookupStatus = "searching"
	LookupFound     LookupStatus = "found"
	LookupNotFound  LookupStatus = "not_found"
)

// FormState is the submission side of a view.
type FormState struct {
	Submitting  bool              `json:"submitting"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	Error       string            `json:"error,omitempty"`
	Success     string            `json:"success,omitempty"`
}

// IdentityState is the bidder side of a view.
type IdentityState struct {
	Tab           Tab             `json:"tab"`
	CurrentBidder *BidderIdentity `json:"current_bidder,omitempty"`
	Returning     *BidderIdentity `json:"returning_bidder,omitempty"`
	Lookup        LookupStatus    `json:"lookup_status"`
	WelcomeBack   *BidderIdentity `json:"welcome_back,omitempty"`
	PersonalBids  []Bid           `json:"personal_bids,omitempty"`
}

// RateLimitState reports whether the session may currently submit.
type RateLimitState struct {
	Limited           bool `json:"limited"`
	RetryAfterSeconds int  `json:"retry_after_seconds,omitempty"`
}

// ViewState is everything a front-end needs to render one mounted view.
type ViewState struct {
	Auction   AuctionState   `json:"auction"`
	Form      FormState      `json:"form"`
	Identity  IdentityState  `json:"identity"`
	RateLimit RateLimitState `json:"rate_limit"`
	CanBid    bool           `json:"can_bid"`
}
