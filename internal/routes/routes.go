// Package routes defines HTTP routes for the lobby service.
package routes

import (
	"net/http"

	"gamelobby/backend/internal/auth"
	"gamelobby/backend/internal/config"
	"gamelobby/backend/internal/handler"
	"gamelobby/backend/internal/hub"
	"gamelobby/backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Setup configures all HTTP routes for the application.
func Setup(router *gin.Engine, svc *service.Service, events *hub.Hub, cfg *config.Config) {
	userHandler := handler.NewUserHandler(svc, cfg.JWTSecret, cfg.JWTTTL)
	presenceHandler := handler.NewPresenceHandler(svc)
	lobbyHandler := handler.NewLobbyHandler(svc, events)
	gameHandler := handler.NewGameHandler(svc)
	adminHandler := handler.NewAdminHandler(svc)

	// Health check
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	requireAuth := auth.AuthMiddleware(cfg.JWTSecret)

	apiV1 := router.Group("/api/v1")
	{
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", userHandler.Register)
			authRoutes.POST("/login", userHandler.Login)
		}

		userRoutes := apiV1.Group("/users")
		userRoutes.Use(requireAuth)
		{
			userRoutes.GET("/me", userHandler.GetMe)
		}

		presenceRoutes := apiV1.Group("/presence")
		presenceRoutes.Use(requireAuth)
		{
			presenceRoutes.POST("/online", presenceHandler.Online)
			presenceRoutes.POST("/offline", presenceHandler.Offline)
			presenceRoutes.POST("/heartbeat", presenceHandler.Heartbeat)
		}

		// Lobby reads are public; a token is honoured when present.
		lobbyReads := apiV1.Group("/lobbies")
		lobbyReads.Use(auth.OptionalAuthMiddleware(cfg.JWTSecret))
		{
			lobbyReads.GET("", lobbyHandler.SearchLobbies)
			lobbyReads.GET("/:id", lobbyHandler.GetLobbyByID)
			lobbyReads.GET("/:id/events", lobbyHandler.StreamEvents)
			lobbyReads.GET("/:id/games", lobbyHandler.GetLobbyGames)
		}

		lobbyRoutes := apiV1.Group("/lobbies")
		lobbyRoutes.Use(requireAuth)
		{
			lobbyRoutes.POST("", lobbyHandler.CreateLobby)
			lobbyRoutes.POST("/leave", lobbyHandler.LeaveLobby) // No ID needed, user leaves their own lobby
			lobbyRoutes.POST("/ready", lobbyHandler.SetReady)
			lobbyRoutes.POST("/:id/join", lobbyHandler.JoinLobby)
			lobbyRoutes.POST("/:id/transfer", lobbyHandler.TransferCreator)
			lobbyRoutes.POST("/:id/start", lobbyHandler.StartGame)
		}

		gameRoutes := apiV1.Group("/games")
		gameRoutes.Use(auth.OptionalAuthMiddleware(cfg.JWTSecret))
		{
			gameRoutes.GET("/:id", gameHandler.GetGameByID)
		}

		gameActions := apiV1.Group("/games")
		gameActions.Use(requireAuth)
		{
			gameActions.POST("/:id/turn", gameHandler.AdvanceTurn)
			gameActions.POST("/:id/finish", gameHandler.FinishGame)
		}

		adminRoutes := apiV1.Group("/admin")
		adminRoutes.Use(requireAuth, auth.AdminMiddleware(svc))
		{
			adminRoutes.GET("/consistency", adminHandler.CheckConsistency)
			adminRoutes.DELETE("/lobbies/:id", adminHandler.DeleteLobby)
			adminRoutes.DELETE("/users/:id", adminHandler.DeleteUser)
		}
	}
}
