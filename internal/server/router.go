package server

import (
	"net/http"

	handler "auction-engine/services/bidding/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the collaborators the HTTP surface routes to
type Dependencies struct {
	Service       handler.AuctionService
	Scheduler     handler.SchedulerController
	Websocket     handler.WebsocketServer
	ExposeMetrics bool
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(TracingMiddleware)       // one span per request
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(deps.Service)

	auctions := router.Group("/auctions")
	{
		auctions.POST("", biddingHandler.CreateAuctionHandler)
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.PATCH("/:auction_id", biddingHandler.UpdateAuctionHandler)
		auctions.DELETE("/:auction_id", biddingHandler.DeleteAuctionHandler)
		auctions.POST("/:auction_id/cancel", biddingHandler.CancelAuctionHandler)
		auctions.POST("/:auction_id/join", biddingHandler.JoinAuctionHandler)
		auctions.POST("/:auction_id/bids", biddingHandler.PlaceBidHandler)
		auctions.GET("/:auction_id/stakes", biddingHandler.GetStakesHandler)
	}

	users := router.Group("/users")
	{
		users.POST("", biddingHandler.CreateUserHandler)
		users.GET("/:user_id", biddingHandler.GetUserHandler)
		users.POST("/:user_id/deposits", biddingHandler.DepositHandler)
		users.GET("/:user_id/ledger", biddingHandler.GetLedgerHandler)
	}

	if deps.Scheduler != nil {
		schedulerHandler := handler.NewSchedulerHandler(deps.Scheduler)
		sched := router.Group("/scheduler")
		{
			sched.POST("/trigger", schedulerHandler.TriggerSweepHandler)
			sched.GET("/status", schedulerHandler.StatusHandler)
		}
	}

	if deps.Websocket != nil {
		router.GET("/ws", handler.NewWebsocketHandler(deps.Websocket).ServeWSHandler)
	}

	if deps.ExposeMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
