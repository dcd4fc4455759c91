package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/services/bidding/helpers"
	"charity-auction/utils"

	"github.com/gin-gonic/gin"
)

type BiddingServiceInterface interface {
	State(ctx context.Context, sessionID, itemID string) (model.ViewState, error)
	Watch(ctx context.Context, sessionID, itemID string) (<-chan model.ViewState, func(), error)
	Unmount(sessionID, itemID string) bool
	PlaceBid(ctx context.Context, sessionID, itemID string, form model.BidForm) (model.Bid, model.ViewState, error)
	PersonalBids(ctx context.Context, sessionID, itemID string) ([]model.Bid, error)
	SearchBidder(ctx context.Context, sessionID, itemID, email, phone string) (model.BidderIdentity, error)
	ContactChanged(ctx context.Context, sessionID, itemID, email, phone string) error
	AcceptWelcomeBack(ctx context.Context, sessionID, itemID string) (model.ViewState, error)
	SwitchTab(ctx context.Context, sessionID, itemID string, tab model.Tab) (model.ViewState, error)
	Logout(ctx context.Context, sessionID string) error
}

type BiddingHandler struct {
	service  BiddingServiceInterface
	currency string
	now      func() time.Time
}

func NewBiddingHandler(service BiddingServiceInterface, currency string) *BiddingHandler {
	return &BiddingHandler{service: service, currency: currency, now: time.Now}
}

func (h *BiddingHandler) view(state model.ViewState) helpers.ViewResponse {
	return helpers.NewViewResponse(state, h.currency, h.now())
}

// fail writes the mapped error. When the service returned a view state it is
// sent along so the client can render field errors and banners.
func (h *BiddingHandler) fail(c *gin.Context, handlerName string, err error, state *model.ViewState) {
	status, message := helpers.MapErrorToHTTP(err)
	helpers.SetRetryAfter(c, err)

	var data any
	if state != nil {
		data = h.view(*state)
	}
	var verr *biddingerrors.ValidationError
	if errors.As(err, &verr) && data == nil {
		data = gin.H{"field_errors": verr.Fields}
	}

	if data != nil {
		utils.JSONErrorWithData(c, status, fmt.Errorf("%s: %w", message, err), message, data)
	} else {
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	}

	fields := map[string]any{
		"component": "http",
		"handler":   handlerName,
		"item_id":   c.Param("item_id"),
		"status":    status,
		"error":     err.Error(),
	}
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
	} else {
		utils.Warn(handlerName+": request refused", fields)
	}
}

// GetAuctionHandler handles GET /items/:item_id/auction
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	state, err := h.service.State(c.Request.Context(), sessionID, itemID)
	if err != nil {
		h.fail(c, "GetAuctionHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, h.view(state), "auction retrieved successfully")
}

// StreamAuctionHandler handles GET /items/:item_id/auction/stream as
// server-sent events, one "state" event per change.
func (h *BiddingHandler) StreamAuctionHandler(c *gin.Context) {
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	updates, cancel, err := h.service.Watch(c.Request.Context(), sessionID, itemID)
	if err != nil {
		h.fail(c, "StreamAuctionHandler", err, nil)
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	done := c.Request.Context().Done()
	c.Stream(func(_ io.Writer) bool {
		select {
		case state, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("state", h.view(state))
			return true
		case <-done:
			return false
		}
	})
}

// UnmountHandler handles DELETE /items/:item_id/auction
func (h *BiddingHandler) UnmountHandler(c *gin.Context) {
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	unmounted := h.service.Unmount(sessionID, itemID)
	utils.JSONResponse(c, http.StatusOK, gin.H{"unmounted": unmounted}, "view closed")
}

// PlaceBidHandler handles POST /items/:item_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	bid, state, err := h.service.PlaceBid(c.Request.Context(), sessionID, itemID, req.Form())
	if err != nil {
		var st *model.ViewState
		if state.Auction.Loaded {
			st = &state
		}
		h.fail(c, "PlaceBidHandler", err, st)
		return
	}

	resp := helpers.PlaceBidResponse{
		Bid:  helpers.NewBidResponse(bid, h.currency, h.now()),
		View: h.view(state),
	}
	utils.JSONResponse(c, http.StatusCreated, resp, "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":  bid.BidID,
		"item_id": bid.ItemID,
		"amount":  bid.Amount,
	})
}

// PersonalBidsHandler handles GET /items/:item_id/bids/mine
func (h *BiddingHandler) PersonalBidsHandler(c *gin.Context) {
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	bids, err := h.service.PersonalBids(c.Request.Context(), sessionID, itemID)
	if err != nil {
		h.fail(c, "PersonalBidsHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewBidResponses(bids, h.currency, h.now()), "bids retrieved successfully")
}

// SearchBidderHandler handles POST /items/:item_id/bidders/search
func (h *BiddingHandler) SearchBidderHandler(c *gin.Context) {
	var req helpers.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SearchBidderHandler", err)
		return
	}
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	bidder, err := h.service.SearchBidder(c.Request.Context(), sessionID, itemID, req.Email, req.Phone)
	if err != nil {
		h.fail(c, "SearchBidderHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, bidder, "bidder found")
}

// ContactChangedHandler handles POST /items/:item_id/bidders/contact. The
// lookup runs in the background; its result shows up in the view state.
func (h *BiddingHandler) ContactChangedHandler(c *gin.Context) {
	var req helpers.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ContactChangedHandler", err)
		return
	}
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	if err := h.service.ContactChanged(c.Request.Context(), sessionID, itemID, req.Email, req.Phone); err != nil {
		h.fail(c, "ContactChangedHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusAccepted, nil, "lookup scheduled")
}

// AcceptWelcomeBackHandler handles POST /items/:item_id/bidders/welcome-back
func (h *BiddingHandler) AcceptWelcomeBackHandler(c *gin.Context) {
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	state, err := h.service.AcceptWelcomeBack(c.Request.Context(), sessionID, itemID)
	if err != nil {
		h.fail(c, "AcceptWelcomeBackHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, h.view(state), "welcome back")
}

// SwitchTabHandler handles PUT /items/:item_id/tab
func (h *BiddingHandler) SwitchTabHandler(c *gin.Context) {
	var req helpers.SwitchTabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SwitchTabHandler", err)
		return
	}
	sessionID := helpers.SessionID(c)
	itemID := c.Param("item_id")

	state, err := h.service.SwitchTab(c.Request.Context(), sessionID, itemID, model.Tab(req.Tab))
	if err != nil {
		h.fail(c, "SwitchTabHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, h.view(state), "tab switched")
}

// LogoutHandler handles DELETE /items/:item_id/bidders/me
func (h *BiddingHandler) LogoutHandler(c *gin.Context) {
	sessionID := helpers.SessionID(c)

	if err := h.service.Logout(c.Request.Context(), sessionID); err != nil {
		h.fail(c, "LogoutHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, nil, "logged out")
	helpers.LogSuccess("LogoutHandler", "bidder logged out", map[string]any{"item_id": c.Param("item_id")})
}
