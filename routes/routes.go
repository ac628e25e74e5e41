package routes

import (
	"net/http"
	"time"

	"carelink/handlers"
	"carelink/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterBookingRoutes sets up the endpoints for the booking lifecycle and
// its schedule-change requests.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api")
	api.Use(middleware.RequireParty())
	{
		api.POST("/quotes", hb.Bookings.Quote)

		bookings := api.Group("/bookings")
		bookings.POST("", hb.Bookings.CreateBooking)
		bookings.GET("/:id", hb.Bookings.GetBooking)
		bookings.POST("/:id/confirm", hb.Bookings.Confirm)
		bookings.POST("/:id/reject", hb.Bookings.Reject)
		bookings.POST("/:id/start", hb.Bookings.Start)
		bookings.POST("/:id/complete", hb.Bookings.Complete)
		bookings.POST("/:id/cancel", hb.Bookings.Cancel)
		bookings.POST("/:id/schedule-changes", hb.ScheduleChanges.Propose)
		bookings.GET("/:id/schedule-changes", hb.ScheduleChanges.ListForBooking)

		changes := api.Group("/schedule-changes")
		changes.GET("/:id", hb.ScheduleChanges.Get)
		changes.POST("/:id/respond", hb.ScheduleChanges.Respond)
		changes.POST("/:id/withdraw", hb.ScheduleChanges.Withdraw)
	}
}

// RegisterPaymentRoutes sets up the qr payment attempt endpoints.
func RegisterPaymentRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	attempts := r.Group("/api/payments/attempts")
	{
		attempts.Use(middleware.RequireParty())
		attempts.POST("", hb.Payments.OpenAttempt)
		attempts.GET("/:id", hb.Payments.GetAttempt)
		attempts.POST("/:id/confirm", hb.Payments.ConfirmPayment)
		attempts.POST("/:id/retry", hb.Payments.RetryPayment)
		attempts.DELETE("/:id", hb.Payments.AbandonAttempt)
	}
}

// RegisterDirectoryRoutes sets up listings and the caregiver rate directory.
func RegisterDirectoryRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	dir := r.Group("/api/directory")
	{
		dir.GET("/bookings", hb.Directory.ListBookings)
		dir.GET("/caregivers", hb.Directory.ListCaregivers)
		dir.GET("/caregivers/:id", hb.Directory.GetCaregiver)
		dir.PUT("/caregivers/:id", hb.Directory.PutCaregiver)

		dir.Use(middleware.RequireParty())
		dir.GET("/schedule-changes/pending", hb.Directory.PendingScheduleChanges)
		dir.GET("/notifications", hb.Directory.Inbox)
	}
}

// RegisterSessionRoutes sets up the in-call control channel.
func RegisterSessionRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	sessions := r.Group("/api/sessions")
	{
		sessions.Use(middleware.RequireParty())
		sessions.POST("/:id/controls", hb.Controls.Apply)
		sessions.GET("/:id/controls", hb.Controls.State)
		sessions.GET("/:id/controls/stream", hb.Controls.Stream)
	}
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, check func() (bool, any)) {
	r.GET("/health", func(c *gin.Context) {
		if check == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		healthy, details := check()
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "details": details})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "details": details})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, perMin int, health func() (bool, any)) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.PartyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestLogger())
	r.Use(middleware.RateLimitMiddleware(perMin))

	RegisterHealthRoute(r, health)
	RegisterBookingRoutes(r, hb)
	RegisterPaymentRoutes(r, hb)
	RegisterDirectoryRoutes(r, hb)
	RegisterSessionRoutes(r, hb)
}
