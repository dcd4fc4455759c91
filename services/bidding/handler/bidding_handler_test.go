package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	"charity-auction/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *MockBiddingServiceInterface) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := NewMockBiddingServiceInterface(ctrl)
	h := NewBiddingHandler(mockService, "MWK")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	items := router.Group("/items/:item_id")
	items.GET("/auction", h.GetAuctionHandler)
	items.GET("/auction/stream", h.StreamAuctionHandler)
	items.DELETE("/auction", h.UnmountHandler)
	items.POST("/bids", h.PlaceBidHandler)
	items.GET("/bids/mine", h.PersonalBidsHandler)
	items.POST("/bidders/search", h.SearchBidderHandler)
	items.POST("/bidders/contact", h.ContactChangedHandler)
	items.POST("/bidders/welcome-back", h.AcceptWelcomeBackHandler)
	items.PUT("/tab", h.SwitchTabHandler)
	items.DELETE("/bidders/me", h.LogoutHandler)
	return router, mockService
}

func loadedState(current int64) model.ViewState {
	return model.ViewState{
		Auction: model.AuctionState{
			Item:       model.Item{ItemID: "item1", Title: "Lake Malawi at Dusk", StartingBid: 500},
			Loaded:     true,
			CurrentBid: current,
		},
		Identity: model.IdentityState{Tab: model.TabNew, Lookup: model.LookupIdle},
		CanBid:   true,
	}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// Test PlaceBidHandler
func TestPlaceBidHandler(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	validReq := helpers.PlaceBidRequest{Amount: "1050", Name: "Bob Banda", Email: "bob@example.mw"}
	wantForm := model.BidForm{Mode: model.ModeNew, Amount: "1050", Name: "Bob Banda", Email: "bob@example.mw"}

	tests := []struct {
		name           string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
		retryAfter     string
		validateData   func(t *testing.T, data map[string]any)
	}{
		{
			name:        "success_valid_bid",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				bid := model.Bid{BidID: uuid.NewString(), ItemID: "item1", BidderName: "Bob Banda", BidderEmail: "bob@example.mw", Amount: 1050, CreatedAt: now}
				state := loadedState(1050)
				state.Auction.History = []model.Bid{bid}
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).Return(bid, state, nil)
			},
			expectedStatus: http.StatusCreated,
			expectedMsg:    "bid recorded successfully",
			validateData: func(t *testing.T, data map[string]any) {
				bid := data["bid"].(map[string]any)
				_, err := uuid.Parse(bid["bid_id"].(string))
				require.NoError(t, err)
				require.Equal(t, 1050.0, bid["bid_amount"])
				require.Equal(t, "MWK 1,050", bid["bid_amount_display"])
				require.Equal(t, "Just now", bid["time_ago"])
				require.NotContains(t, bid, "bidder_email")

				view := data["view"].(map[string]any)
				require.Equal(t, "MWK 1,050", view["current_bid_display"])
				require.Len(t, view["auction"].(map[string]any)["bid_history"], 1)
			},
		},
		{
			name:           "invalid_json",
			requestBody:    `{invalid json}`,
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "missing_amount",
			requestBody:    helpers.PlaceBidRequest{Name: "Bob Banda"},
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:           "unknown_mode",
			requestBody:    helpers.PlaceBidRequest{Mode: "anonymous", Amount: "1050"},
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:        "validation_failed",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				state := loadedState(1000)
				state.Form.FieldErrors = map[string]string{"bid_amount": "Minimum bid increment is MWK 50"}
				state.Form.Error = "Please correct the errors below and try again."
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, state, &biddingerrors.ValidationError{Fields: state.Form.FieldErrors})
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "invalid bid details",
			validateData: func(t *testing.T, data map[string]any) {
				form := data["form"].(map[string]any)
				fields := form["field_errors"].(map[string]any)
				require.Equal(t, "Minimum bid increment is MWK 50", fields["bid_amount"])
			},
		},
		{
			name:        "rate_limited",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, loadedState(1000), &biddingerrors.RateLimitError{RetryAfter: 41500 * time.Millisecond})
			},
			expectedStatus: http.StatusTooManyRequests,
			expectedMsg:    "rate limit exceeded",
			retryAfter:     "42",
		},
		{
			name:        "outbid_before_insert",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, loadedState(1100), &biddingerrors.ConflictError{Reason: biddingerrors.ReasonNotHigher, CurrentBid: 1100})
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "bid amount too low",
			validateData: func(t *testing.T, data map[string]any) {
				require.Equal(t, "MWK 1,100", data["current_bid_display"])
			},
		},
		{
			name:        "submission_in_progress",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, loadedState(1000), biddingerrors.ErrSubmissionInProgress)
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "already being submitted",
		},
		{
			name:        "auction_ended",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, loadedState(1000), biddingerrors.ErrAuctionEnded)
			},
			expectedStatus: http.StatusGone,
			expectedMsg:    "auction has ended",
		},
		{
			name:        "backend_unavailable",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, loadedState(1000), &biddingerrors.NetworkError{Op: "create bid", Err: errors.New("connection refused")})
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "auction backend unavailable",
		},
		{
			name:        "item_not_found",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, model.ViewState{}, biddingerrors.ErrItemNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "item not found",
		},
		{
			name:        "service_generic_error",
			requestBody: validReq,
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", wantForm).
					Return(model.Bid{}, model.ViewState{}, errors.New("boom"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedMsg:    "internal server error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			w, resp := doJSON(t, router, http.MethodPost, "/items/item1/bids", tc.requestBody)

			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)
			require.Equal(t, tc.retryAfter, w.Header().Get("Retry-After"))

			if tc.validateData != nil {
				data := resp["data"].(map[string]any)
				tc.validateData(t, data)
			}
		})
	}
}

func TestSessionCookie(t *testing.T) {
	t.Parallel()

	t.Run("issued_when_missing", func(t *testing.T) {
		t.Parallel()
		router, mockService := newTestRouter(t)

		var seen string
		mockService.EXPECT().State(gomock.Any(), gomock.Any(), "item1").
			DoAndReturn(func(_ any, sessionID, _ string) (model.ViewState, error) {
				seen = sessionID
				return loadedState(1000), nil
			})

		w, _ := doJSON(t, router, http.MethodGet, "/items/item1/auction", nil)
		require.Equal(t, http.StatusOK, w.Code)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, helpers.SessionCookie, cookies[0].Name)
		require.Equal(t, seen, cookies[0].Value)
		require.True(t, cookies[0].HttpOnly)
	})

	t.Run("reused_when_valid", func(t *testing.T) {
		t.Parallel()
		router, mockService := newTestRouter(t)

		sessionID := uuid.NewString()
		mockService.EXPECT().State(gomock.Any(), sessionID, "item1").Return(loadedState(1000), nil)

		w, _ := doJSON(t, router, http.MethodGet, "/items/item1/auction", nil, &http.Cookie{Name: helpers.SessionCookie, Value: sessionID})
		require.Equal(t, http.StatusOK, w.Code)
		require.Empty(t, w.Result().Cookies())
	})

	t.Run("replaced_when_malformed", func(t *testing.T) {
		t.Parallel()
		router, mockService := newTestRouter(t)

		mockService.EXPECT().State(gomock.Any(), gomock.Not("forged"), "item1").Return(loadedState(1000), nil)

		w, _ := doJSON(t, router, http.MethodGet, "/items/item1/auction", nil, &http.Cookie{Name: helpers.SessionCookie, Value: "forged"})
		require.Equal(t, http.StatusOK, w.Code)
		require.Len(t, w.Result().Cookies(), 1)
	})
}

// Test GetAuctionHandler
func TestGetAuctionHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name: "success",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().State(gomock.Any(), gomock.Any(), "item1").Return(loadedState(1000), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "auction retrieved successfully",
		},
		{
			name: "item_not_found",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().State(gomock.Any(), gomock.Any(), "item1").Return(model.ViewState{}, biddingerrors.ErrItemNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "item not found",
		},
		{
			name: "backend_down",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().State(gomock.Any(), gomock.Any(), "item1").
					Return(model.ViewState{}, &biddingerrors.NetworkError{Op: "load item", Err: errors.New("timeout")})
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedMsg:    "auction backend unavailable",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			w, resp := doJSON(t, router, http.MethodGet, "/items/item1/auction", nil)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}

func TestViewHidesOtherBiddersContact(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	history := []model.Bid{
		{BidID: uuid.NewString(), ItemID: "item1", BidderName: "Chifundo Mwale", BidderEmail: "chifundo@example.mw", BidderPhone: "0888123456", Amount: 1200, CreatedAt: now},
		{BidID: uuid.NewString(), ItemID: "item1", BidderName: "Bob Banda", BidderEmail: "bob@example.mw", Amount: 1050, CreatedAt: now.Add(-time.Minute)},
	}
	viewWithHistory := func() model.ViewState {
		state := loadedState(1200)
		state.Auction.History = history
		return state
	}

	tests := []struct {
		name      string
		method    string
		path      string
		body      any
		mockSetup func(m *MockBiddingServiceInterface)
		viewOf    func(data map[string]any) map[string]any
	}{
		{
			name:   "get_auction",
			method: http.MethodGet,
			path:   "/items/item1/auction",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().State(gomock.Any(), gomock.Any(), "item1").Return(viewWithHistory(), nil)
			},
			viewOf: func(data map[string]any) map[string]any { return data },
		},
		{
			name:   "place_bid",
			method: http.MethodPost,
			path:   "/items/item1/bids",
			body:   helpers.PlaceBidRequest{Amount: "1300", Name: "Alice Phiri", Email: "alice@example.mw"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				bid := model.Bid{BidID: uuid.NewString(), ItemID: "item1", BidderName: "Alice Phiri", BidderEmail: "alice@example.mw", Amount: 1300, CreatedAt: now}
				m.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), "item1", gomock.Any()).Return(bid, viewWithHistory(), nil)
			},
			viewOf: func(data map[string]any) map[string]any { return data["view"].(map[string]any) },
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			w, resp := doJSON(t, router, tc.method, tc.path, tc.body)
			require.Less(t, w.Code, 300)

			raw := w.Body.String()
			require.NotContains(t, raw, "chifundo@example.mw")
			require.NotContains(t, raw, "0888123456")
			require.NotContains(t, raw, "bob@example.mw")

			view := tc.viewOf(resp["data"].(map[string]any))
			rows := view["auction"].(map[string]any)["bid_history"].([]any)
			require.Len(t, rows, 2)
			for _, row := range rows {
				require.NotContains(t, row, "bidder_email")
				require.NotContains(t, row, "bidder_phone")
			}
			require.Equal(t, "Chifundo Mwale", rows[0].(map[string]any)["bidder_name"])
		})
	}
}

// streamRecorder adds the close notification gin's Stream waits on.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestStreamAuctionHandler(t *testing.T) {
	t.Parallel()

	router, mockService := newTestRouter(t)

	updates := make(chan model.ViewState, 2)
	updates <- loadedState(1000)
	updates <- loadedState(1100)
	close(updates)

	cancelled := false
	mockService.EXPECT().Watch(gomock.Any(), gomock.Any(), "item1").
		Return((<-chan model.ViewState)(updates), func() { cancelled = true }, nil)

	req := httptest.NewRequest(http.MethodGet, "/items/item1/auction/stream", nil)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	router.ServeHTTP(w, req)

	require.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	require.Equal(t, 2, strings.Count(body, "event:state"))
	require.Contains(t, body, `"current_bid_display":"MWK 1,100"`)
	require.True(t, cancelled)
}

func TestUnmountHandler(t *testing.T) {
	t.Parallel()

	router, mockService := newTestRouter(t)
	mockService.EXPECT().Unmount(gomock.Any(), "item1").Return(true)

	w, resp := doJSON(t, router, http.MethodDelete, "/items/item1/auction", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, resp["data"].(map[string]any)["unmounted"])
}

// Test bidder identity endpoints
func TestBidderHandlers(t *testing.T) {
	t.Parallel()

	alice := model.BidderIdentity{Name: "Alice Phiri", Email: "alice@example.mw"}

	tests := []struct {
		name           string
		method         string
		path           string
		requestBody    any
		mockSetup      func(m *MockBiddingServiceInterface)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:        "search_found",
			method:      http.MethodPost,
			path:        "/items/item1/bidders/search",
			requestBody: helpers.ContactRequest{Email: "alice@example.mw"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SearchBidder(gomock.Any(), gomock.Any(), "item1", "alice@example.mw", "").Return(alice, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bidder found",
		},
		{
			name:        "search_not_found",
			method:      http.MethodPost,
			path:        "/items/item1/bidders/search",
			requestBody: helpers.ContactRequest{Phone: "0999111222"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SearchBidder(gomock.Any(), gomock.Any(), "item1", "", "0999111222").
					Return(model.BidderIdentity{}, biddingerrors.ErrBidderNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no previous bids found",
		},
		{
			name:        "search_backend_down",
			method:      http.MethodPost,
			path:        "/items/item1/bidders/search",
			requestBody: helpers.ContactRequest{Email: "alice@example.mw"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				err := fmt.Errorf("identity: %w: %w", biddingerrors.ErrBidderNotFound,
					&biddingerrors.NetworkError{Op: "find bidder", Err: errors.New("connection refused")})
				m.EXPECT().SearchBidder(gomock.Any(), gomock.Any(), "item1", "alice@example.mw", "").
					Return(model.BidderIdentity{}, err)
			},
			expectedStatus: http.StatusNotFound,
			expectedMsg:    "no previous bids found",
		},
		{
			name:        "contact_changed",
			method:      http.MethodPost,
			path:        "/items/item1/bidders/contact",
			requestBody: helpers.ContactRequest{Email: "ali"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().ContactChanged(gomock.Any(), gomock.Any(), "item1", "ali", "").Return(nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedMsg:    "lookup scheduled",
		},
		{
			name:   "welcome_back_without_detection",
			method: http.MethodPost,
			path:   "/items/item1/bidders/welcome-back",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().AcceptWelcomeBack(gomock.Any(), gomock.Any(), "item1").
					Return(model.ViewState{}, biddingerrors.ErrNoIdentity)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "bidder identity required",
		},
		{
			name:        "switch_tab",
			method:      http.MethodPut,
			path:        "/items/item1/tab",
			requestBody: helpers.SwitchTabRequest{Tab: "your-bids"},
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().SwitchTab(gomock.Any(), gomock.Any(), "item1", model.TabYourBids).Return(loadedState(1000), nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "tab switched",
		},
		{
			name:           "switch_tab_unknown",
			method:         http.MethodPut,
			path:           "/items/item1/tab",
			requestBody:    helpers.SwitchTabRequest{Tab: "settings"},
			mockSetup:      func(m *MockBiddingServiceInterface) {},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "invalid request payload",
		},
		{
			name:   "personal_bids",
			method: http.MethodGet,
			path:   "/items/item1/bids/mine",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PersonalBids(gomock.Any(), gomock.Any(), "item1").
					Return([]model.Bid{{BidID: uuid.NewString(), ItemID: "item1", BidderName: "Alice Phiri", Amount: 1200}}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "bids retrieved successfully",
		},
		{
			name:   "personal_bids_without_identity",
			method: http.MethodGet,
			path:   "/items/item1/bids/mine",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().PersonalBids(gomock.Any(), gomock.Any(), "item1").Return(nil, biddingerrors.ErrNoIdentity)
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedMsg:    "bidder identity required",
		},
		{
			name:   "logout",
			method: http.MethodDelete,
			path:   "/items/item1/bidders/me",
			mockSetup: func(m *MockBiddingServiceInterface) {
				m.EXPECT().Logout(gomock.Any(), gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "logged out",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, mockService := newTestRouter(t)
			tc.mockSetup(mockService)

			w, resp := doJSON(t, router, tc.method, tc.path, tc.requestBody)
			require.Equal(t, tc.expectedStatus, w.Code)
			require.Contains(t, resp["message"], tc.expectedMsg)
		})
	}
}
