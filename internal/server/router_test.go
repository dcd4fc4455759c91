package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"charity-auction/internal/biddingerrors"
	model "charity-auction/internal/models"
	handler "charity-auction/services/bidding/handler"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, opts Options) (*gin.Engine, *handler.MockBiddingServiceInterface) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mockService := handler.NewMockBiddingServiceInterface(gomock.NewController(t))
	if opts.HTTPRateRPS == 0 {
		opts.HTTPRateRPS = 100
		opts.HTTPRateBurst = 100
	}
	opts.Currency = "MWK"
	return SetupRouter(ctx, mockService, opts), mockService
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		check          func(ctx context.Context) error
		expectedStatus int
	}{
		{name: "no_check", expectedStatus: http.StatusOK},
		{name: "store_up", check: func(context.Context) error { return nil }, expectedStatus: http.StatusOK},
		{name: "store_down", check: func(context.Context) error { return errors.New("dial tcp: refused") }, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router, _ := newRouter(t, Options{HealthCheck: tc.check})
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	router, mockService := newRouter(t, Options{})
	mockService.EXPECT().State(gomock.Any(), gomock.Any(), "item1").Return(model.ViewState{}, biddingerrors.ErrItemNotFound)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/item1/auction", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `auction_http_requests_total{method="GET",route="/items/:item_id/auction",status="404"}`))
}

func TestThrottle(t *testing.T) {
	t.Parallel()

	router, mockService := newRouter(t, Options{HTTPRateRPS: 0.001, HTTPRateBurst: 2})
	mockService.EXPECT().State(gomock.Any(), gomock.Any(), "item1").Return(model.ViewState{}, nil).Times(2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/item1/auction", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			require.Equal(t, "1", w.Header().Get("Retry-After"))
			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.Equal(t, "rate limit exceeded", resp["message"])
		}
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// health checks are not throttled
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}
