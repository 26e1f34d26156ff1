package router

import (
	"database/sql"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/docvaulthq/docvault/authz"
	"github.com/docvaulthq/docvault/handlers"
	"github.com/docvaulthq/docvault/internal/config"
	"github.com/docvaulthq/docvault/services"
)

func NewGinRouter(pg *sql.DB, redisClient *redis.Client) *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Initialize services
	auditService := services.NewAuditService(pg)
	authService := services.NewAuthService(config.App.JWTSecret, redisClient)
	userService := services.NewUserService(pg, auditService, authService)
	orgService := services.NewOrganizationService(pg, auditService, authService)
	analysisService := services.NewAnalysisService(pg)
	if err := analysisService.CreateQueueIfNotExists(); err != nil {
		log.Printf("Warning: failed to create analysis queue: %v", err)
	}
	documentService := services.NewDocumentService(pg, auditService, analysisService)
	projectService := services.NewProjectService(pg, auditService)
	storageService := services.NewStorageService(config.App.DataDir)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, userService)
	orgHandler := handlers.NewOrgHandler(orgService)
	userHandler := handlers.NewUserHandler(userService)
	documentHandler := handlers.NewDocumentHandler(documentService, storageService)
	projectHandler := handlers.NewProjectHandler(projectService)
	auditHandler := handlers.NewAuditHandler(auditService)

	// Initialize middleware
	authMiddleware := handlers.NewAuthMiddleware(authService, userService)

	// PUBLIC ENDPOINTS (no authentication required)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	// PROTECTED ENDPOINTS (require a valid token)
	protected := r.Group("/")
	protected.Use(authMiddleware.RequireAuth())
	{
		protected.GET("/auth/me", authHandler.Me)

		// ORGANIZATION MANAGEMENT
		orgRoutes := protected.Group("/orgs")
		{
			// Setup is the onboarding exit: reachable without an
			// organization, so no permission gate here.
			orgRoutes.POST("/setup", orgHandler.Setup)
			orgRoutes.GET("/current", orgHandler.Current)
		}

		// DOCUMENT MANAGEMENT
		documentRoutes := protected.Group("/documents")
		{
			documentRoutes.GET("", authz.RequirePermission(authz.PermDocumentsRead), documentHandler.List)
			documentRoutes.POST("", authz.RequirePermission(authz.PermDocumentsWrite), documentHandler.Create)
			documentRoutes.POST("/upload", authz.RequirePermission(authz.PermDocumentsWrite), documentHandler.Upload)
			documentRoutes.GET("/:id", authz.RequirePermission(authz.PermDocumentsRead), documentHandler.Get)
			documentRoutes.GET("/:id/download", authz.RequirePermission(authz.PermDocumentsRead), documentHandler.Download)
			documentRoutes.PUT("/:id", authz.RequirePermission(authz.PermDocumentsWrite), documentHandler.Update)
			documentRoutes.DELETE("/:id", authz.RequirePermission(authz.PermDocumentsDelete), documentHandler.Delete)
		}

		// FULL-TEXT SEARCH
		protected.GET("/search", authz.RequirePermission(authz.PermSearchRead), documentHandler.Search)

		// CHAT MENTION PICKER
		// Reachable with either permission: the picker is a document
		// title lookup, so document readers get it without chat access.
		protected.GET("/chat/mentions",
			authz.RequireAnyPermission(authz.PermChatRead, authz.PermDocumentsRead),
			documentHandler.Mentions)

		// PROJECT MANAGEMENT
		projectRoutes := protected.Group("/projects")
		{
			projectRoutes.GET("", authz.RequirePermission(authz.PermProjectsRead), projectHandler.List)
			projectRoutes.POST("", authz.RequirePermission(authz.PermProjectsWrite), projectHandler.Create)
			projectRoutes.GET("/:id", authz.RequirePermission(authz.PermProjectsRead), projectHandler.Get)
			projectRoutes.PUT("/:id", authz.RequirePermission(authz.PermProjectsWrite), projectHandler.Update)
			projectRoutes.DELETE("/:id", authz.RequirePermission(authz.PermProjectsDelete), projectHandler.Delete)
		}

		// USER MANAGEMENT
		userRoutes := protected.Group("/users")
		{
			userRoutes.GET("", authz.RequirePermission(authz.PermUsersRead), userHandler.List)
			// Per-record ownership is checked in the handler so a member
			// can still fetch their own record.
			userRoutes.GET("/:id", userHandler.Get)
			userRoutes.PUT("/:id", authz.RequirePermission(authz.PermUsersWrite), userHandler.Update)
			userRoutes.DELETE("/:id", authz.RequirePermission(authz.PermUsersManage), userHandler.Delete)
			userRoutes.PUT("/:id/organization", authz.RequirePermission(authz.PermUsersManage), userHandler.UpdateOrganization)
		}

		// AUDIT TRAIL
		auditRoutes := protected.Group("/audit")
		{
			auditRoutes.GET("/logs", authz.RequirePermission(authz.PermAuditRead), auditHandler.Logs)
			auditRoutes.GET("/stats", authz.RequirePermission(authz.PermAuditRead), auditHandler.Stats)
			auditRoutes.GET("/export", authz.RequirePermission(authz.PermAuditExport), auditHandler.Export)
		}

		// SYSTEM ENDPOINTS (cross-organization, audited bypass)
		systemRoutes := protected.Group("/system")
		systemRoutes.Use(authz.RequirePermission(authz.PermOrganizationsManage))
		{
			systemRoutes.GET("/orgs", orgHandler.GetAllForSystem)
			systemRoutes.GET("/documents", documentHandler.GetAllForSystem)
			systemRoutes.GET("/projects", projectHandler.GetAllForSystem)
			systemRoutes.GET("/audit/logs", auditHandler.SystemLogs)
		}
	}

	return r
}
