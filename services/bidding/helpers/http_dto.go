package helpers

import (
	"time"

	model "charity-auction/internal/models"
	"charity-auction/utils"
)

// Request/Response DTOs

// PlaceBidRequest is the bid form as typed. The amount stays a string so the
// validator sees exactly what the visitor entered.
type PlaceBidRequest struct {
	Mode   string `json:"mode" binding:"omitempty,oneof=new returning personal"`
	Amount string `json:"bid_amount" binding:"required,max=32"`
	Name   string `json:"bidder_name" binding:"max=200"`
	Email  string `json:"bidder_email" binding:"max=320"`
	Phone  string `json:"bidder_phone" binding:"max=40"`
}

// Form converts the request to the service form. An empty mode means new.
func (r PlaceBidRequest) Form() model.BidForm {
	mode := model.BidderMode(r.Mode)
	if mode == "" {
		mode = model.ModeNew
	}
	return model.BidForm{Mode: mode, Amount: r.Amount, Name: r.Name, Email: r.Email, Phone: r.Phone}
}

// ContactRequest carries the contact details used to find a returning bidder.
type ContactRequest struct {
	Email string `json:"bidder_email" binding:"max=320"`
	Phone string `json:"bidder_phone" binding:"max=40"`
}

type SwitchTabRequest struct {
	Tab string `json:"tab" binding:"required,oneof=new returning your-bids"`
}

type BidResponse struct {
	BidID         string `json:"bid_id"`
	ItemID        string `json:"item_id"`
	BidderName    string `json:"bidder_name"`
	Amount        int64  `json:"bid_amount"`
	AmountDisplay string `json:"bid_amount_display"`
	CreatedAt     string `json:"created_at"`
	TimeAgo       string `json:"time_ago"`
}

// AuctionResponse is the auction part of a view with the bid history
// rendered for display, so other bidders' contact details stay private.
type AuctionResponse struct {
	Item       model.Item      `json:"item"`
	Loaded     bool            `json:"loaded"`
	CurrentBid int64           `json:"current_bid"`
	History    []BidResponse   `json:"bid_history"`
	Ended      bool            `json:"auction_ended"`
	TimeLeft   model.Countdown `json:"time_left"`
	Notice     string          `json:"notice,omitempty"`
	LastSynced time.Time       `json:"last_synced"`
	Version    uint64          `json:"version"`
}

// ViewResponse is the view state plus the strings a page renders directly.
// Auction shadows the embedded ViewState.Auction.
type ViewResponse struct {
	model.ViewState
	Auction           AuctionResponse `json:"auction"`
	CurrentBidDisplay string          `json:"current_bid_display"`
	PersonalBids      []BidResponse   `json:"personal_bids"`
}

type PlaceBidResponse struct {
	Bid  BidResponse  `json:"bid"`
	View ViewResponse `json:"view"`
}

// NewBidResponse renders a bid for display. Contact details are never echoed.
func NewBidResponse(bid model.Bid, currency string, now time.Time) BidResponse {
	return BidResponse{
		BidID:         bid.BidID,
		ItemID:        bid.ItemID,
		BidderName:    bid.BidderName,
		Amount:        bid.Amount,
		AmountDisplay: utils.FormatCurrency(bid.Amount, currency),
		CreatedAt:     bid.CreatedAt.UTC().Format(time.RFC3339),
		TimeAgo:       utils.TimeAgo(now, bid.CreatedAt),
	}
}

func NewBidResponses(bids []model.Bid, currency string, now time.Time) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, NewBidResponse(b, currency, now))
	}
	return out
}

func NewViewResponse(state model.ViewState, currency string, now time.Time) ViewResponse {
	auction := state.Auction
	return ViewResponse{
		ViewState: state,
		Auction: AuctionResponse{
			Item:       auction.Item,
			Loaded:     auction.Loaded,
			CurrentBid: auction.CurrentBid,
			History:    NewBidResponses(auction.History, currency, now),
			Ended:      auction.Ended,
			TimeLeft:   auction.TimeLeft,
			Notice:     auction.Notice,
			LastSynced: auction.LastSynced,
			Version:    auction.Version,
		},
		CurrentBidDisplay: utils.FormatCurrency(auction.CurrentBid, currency),
		PersonalBids:      NewBidResponses(state.Identity.PersonalBids, currency, now),
	}
}
