package routes

import (
	"pln-staging-api/config"
	"pln-staging-api/controllers"
	"pln-staging-api/middleware"
	"pln-staging-api/models"
	"pln-staging-api/monitor"
	"pln-staging-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies are shared by every route group.
type Dependencies struct {
	DB        *gorm.DB
	Sword     config.SwordConfig
	Terms     *services.TermsService
	Originals services.OriginalStore
	Health    *services.JournalHealthService
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.DB == nil {
		deps.DB = config.DB
	}

	sword := controllers.NewSwordController(deps.DB, deps.Sword, deps.Terms, deps.Originals)
	auth := controllers.NewAuthController(deps.DB)
	admin := controllers.NewDepositAdminController(deps.DB, deps.Sword, deps.Health)

	// SWORD v2 endpoint used by journals
	sw := router.Group(controllers.SwordBasePath)
	sw.Use(middleware.OptionalAuth())
	{
		sw.GET("/sd-iri", sword.ServiceDocument)
		sw.GET("/sd-iri.xml", sword.ServiceDocument)
		sw.POST("/col-iri/:uuid", sword.CreateDeposit)
		sw.GET("/cont-iri/:journal_uuid/:deposit_uuid/state", sword.Statement)
		sw.PUT("/cont-iri/:journal_uuid/:deposit_uuid/edit", sword.EditDeposit)
		sw.GET("/original/:journal_uuid/:deposit_uuid", sword.OriginalDeposit)
	}

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", auth.Login)

			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "PLN staging server is running",
				})
			})
		}

		// Protected routes (operators only)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(deps.DB), middleware.RequireRole(models.RoleOperator, models.RoleAdmin))
		{
			protected.GET("/profile", auth.GetProfile)

			deposits := protected.Group("/deposits")
			{
				deposits.GET("/:uuid", admin.GetDeposit)
				deposits.POST("/:uuid/state", admin.UpdateState)
				deposits.POST("/:uuid/harvest-attempts", admin.RecordHarvestAttempt)
				deposits.POST("/:uuid/package", admin.RecordPackage)
				deposits.POST("/:uuid/sent", admin.RecordSent)
				deposits.POST("/:uuid/pln-state", admin.SetPlnState)
				deposits.POST("/:uuid/errors", admin.RecordError)
			}

			journals := protected.Group("/journals")
			{
				journals.GET("/:uuid", admin.GetJournal)
				journals.GET("/:uuid/deposits", admin.ListJournalDeposits)
				journals.POST("/:uuid/ping", admin.PingJournal)
			}
		}
	}

	monitor.RegisterMonitorPage(router, deps.DB)
	monitor.RegisterLogsRoute(router)
}
