package server

import (
	"context"
	"net/http"

	handler "charity-auction/services/bidding/handler"
	"charity-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configure the router.
type Options struct {
	Currency      string
	HTTPRateRPS   float64
	HTTPRateBurst int
	// HealthCheck backs /healthz. Nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// SetupRouter configures all Gin routes for the application. ctx bounds the
// background work of the middleware.
func SetupRouter(ctx context.Context, biddingService handler.BiddingServiceInterface, opts Options) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	router.GET("/healthz", healthHandler(opts.HealthCheck))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	biddingHandler := handler.NewBiddingHandler(biddingService, opts.Currency)

	items := router.Group("/items/:item_id")
	items.Use(ThrottleMiddleware(ctx, opts.HTTPRateRPS, opts.HTTPRateBurst))
	{
		items.GET("/auction", biddingHandler.GetAuctionHandler)
		items.GET("/auction/stream", biddingHandler.StreamAuctionHandler)
		items.DELETE("/auction", biddingHandler.UnmountHandler)

		items.POST("/bids", biddingHandler.PlaceBidHandler)
		items.GET("/bids/mine", biddingHandler.PersonalBidsHandler)

		items.POST("/bidders/search", biddingHandler.SearchBidderHandler)
		items.POST("/bidders/contact", biddingHandler.ContactChangedHandler)
		items.POST("/bidders/welcome-back", biddingHandler.AcceptWelcomeBackHandler)
		items.DELETE("/bidders/me", biddingHandler.LogoutHandler)

		items.PUT("/tab", biddingHandler.SwitchTabHandler)
	}

	return router
}

func healthHandler(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			if err := check(c.Request.Context()); err != nil {
				utils.JSONError(c, http.StatusServiceUnavailable, err, "unhealthy")
				utils.Warn("health check failed", map[string]any{"component": "http", "error": err.Error()})
				return
			}
		}
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	}
}
