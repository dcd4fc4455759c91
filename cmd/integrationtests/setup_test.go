package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bidding "charity-auction/internal/biddingService"
	model "charity-auction/internal/models"
	"charity-auction/internal/reconciler"
	"charity-auction/internal/repository"
	"charity-auction/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// testStore is any backend the server can run on.
type testStore interface {
	repository.AuctionDB
	repository.ItemWriter
}

func testServiceConfig() bidding.Config {
	cfg := bidding.DefaultConfig()
	cfg.LookupDebounce = 10 * time.Millisecond
	cfg.ViewIdleTTL = 0
	cfg.Reconciler = reconciler.Options{
		HistoryLimit: 10,
		PollInterval: time.Hour,
		TickInterval: time.Hour,
		NoticeTTL:    time.Minute,
	}
	return cfg
}

// SetupTestRouterWithItems initializes the router on store and seeds it with items.
func SetupTestRouterWithItems(t *testing.T, store testStore, items ...model.Item) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	for _, item := range items {
		require.NoError(t, store.UpsertItem(context.Background(), item))
	}

	ctx, cancel := context.WithCancel(context.Background())
	service := bidding.NewBiddingService(store, nil, testServiceConfig())
	t.Cleanup(func() {
		service.Close()
		cancel()
	})

	return server.SetupRouter(ctx, service, server.Options{
		Currency:      "MWK",
		HTTPRateRPS:   1000,
		HTTPRateBurst: 1000,
	})
}

// SetupTestRouter initializes the router with an in-memory repository and one open item.
func SetupTestRouter(t *testing.T) (*gin.Engine, *repository.MemoryRepo) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	return SetupTestRouterWithItems(t, repo, openItem("item1", 500)), repo
}

func openItem(itemID string, startingBid int64) model.Item {
	end := time.Now().Add(24 * time.Hour).UTC()
	return model.Item{ItemID: itemID, Title: "Lake Malawi at Dusk", Artist: "Chisomo Banda", StartingBid: startingBid, AuctionEnd: &end}
}

// Browser keeps the session cookie between requests like a real browser would.
type Browser struct {
	t       *testing.T
	router  *gin.Engine
	cookies map[string]*http.Cookie
}

func NewBrowser(t *testing.T, router *gin.Engine) *Browser {
	return &Browser{t: t, router: router, cookies: map[string]*http.Cookie{}}
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func (b *Browser) ExecuteRequest(method, url string, body any) *httptest.ResponseRecorder {
	b.t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(b.t, err)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	b.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return w
}

// ExecuteRequestAndParse executes an HTTP request and parses the response envelope.
func (b *Browser) ExecuteRequestAndParse(method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	b.t.Helper()

	w := b.ExecuteRequest(method, url, body)
	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(b.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return resp, w
}

// Auction returns the view state data of item.
func (b *Browser) Auction(itemID string) map[string]any {
	b.t.Helper()
	resp, w := b.ExecuteRequestAndParse(http.MethodGet, "/items/"+itemID+"/auction", nil)
	require.Equal(b.t, http.StatusOK, w.Code, w.Body.String())
	return resp["data"].(map[string]any)
}

func currentBid(view map[string]any) int64 {
	return int64(view["auction"].(map[string]any)["current_bid"].(float64))
}

func identityOf(view map[string]any) map[string]any {
	return view["identity"].(map[string]any)
}
