package models

import "time"

// Item represents an auction item. Items are edited by the admin tooling and
// are read-only to the bidding core.
type Item struct {
	ItemID      string     `json:"item_id"`
	Title       string     `json:"title"`
	Artist      string     `json:"artist,omitempty"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	StartingBid int64      `json:"starting_bid"`
	AuctionEnd  *time.Time `json:"auction_end,omitempty"`
}

// HasEnded reports whether the auction end time is at or before now.
func (i Item) HasEnded(now time.Time) bool {
	return i.AuctionEnd != nil && !now.Before(*i.AuctionEnd)
}

// Bid represents an immutable offer on an item. Email and phone are empty
// when the bidder did not supply them.
type Bid struct {
	BidID       string    `json:"bid_id"`
	ItemID      string    `json:"item_id"`
	BidderName  string    `json:"bidder_name"`
	BidderEmail string    `json:"bidder_email,omitempty"`
	BidderPhone string    `json:"bidder_phone,omitempty"`
	Amount      int64     `json:"bid_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identity returns the bidder triple that placed the bid.
func (b Bid) Identity() BidderIdentity {
	return BidderIdentity{Name: b.BidderName, Email: b.BidderEmail, Phone: b.BidderPhone}
}

// BidderIdentity is who is bidding right now in a browsing session.
// It is always replaced wholesale, never patched field by field.
type BidderIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsZero reports whether no identity is set.
func (b BidderIdentity) IsZero() bool {
	return b.Name == "" && b.Email == "" && b.Phone == ""
}
