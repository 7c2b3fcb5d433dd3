// server/internal/api/routes/routes.go
package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"upcycle-api-server/internal/api/handlers"
	"upcycle-api-server/internal/api/middleware"
	"upcycle-api-server/internal/auth"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/marketplace"
	"upcycle-api-server/internal/models"
)

// Deps is everything the router needs to build its handlers.
type Deps struct {
	Engine         *marketplace.Engine
	Feedback       *marketplace.FeedbackService
	Reports        *marketplace.ReportService
	Tokens         *auth.Service
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
}

// SetupRouter wires middleware and routes.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if d.ServiceName != "" {
		router.Use(otelgin.Middleware(d.ServiceName))
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(d.Log))
	corsConfig := cors.Config{
		AllowOrigins:     d.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(d.AllowedOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	requestHandler := &handlers.RequestHandler{Engine: d.Engine}
	feedbackHandler := &handlers.FeedbackHandler{Feedback: d.Feedback}
	reportHandler := &handlers.ReportHandler{Reports: d.Reports}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.Authenticate(d.Tokens))
	{
		buyerOnly := middleware.Authorize(models.ActorBuyer)
		orgOnly := middleware.Authorize(models.ActorOrganization)
		orgOrAdmin := middleware.Authorize(models.ActorOrganization, models.ActorAdmin)

		materials := apiV1.Group("/materials/:id")
		{
			materials.POST("/requests", buyerOnly, requestHandler.CreateRequest)
			materials.GET("/requests", orgOrAdmin, requestHandler.GetRequestsForMaterial)
			materials.POST("/transfer", orgOnly, requestHandler.MarkTransferred)
		}

		requests := apiV1.Group("/requests/:id")
		{
			// visibility is decided per request by the engine
			requests.GET("", requestHandler.GetRequest)
			requests.PUT("/status", orgOnly, requestHandler.UpdateStatus)
			requests.POST("/feedback", buyerOnly, feedbackHandler.CreateFeedback)
			requests.GET("/feedback", feedbackHandler.GetFeedback)
			requests.POST("/reports", orgOnly, reportHandler.CreateReport)
		}

		org := apiV1.Group("/org")
		org.Use(orgOnly)
		{
			org.GET("/requests", requestHandler.GetOrganizationRequests)
			org.GET("/reports", reportHandler.GetOrganizationReports)
		}

		apiV1.POST("/reports/:id/evidence", orgOnly, reportHandler.UploadEvidence)
	}

	return router
}
