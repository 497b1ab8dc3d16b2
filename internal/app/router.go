package app

import (
	"log"
	"time"

	"chatsync/internal/config"
	"chatsync/internal/feed"
	"chatsync/internal/identity"
	"chatsync/internal/middleware"
	"chatsync/internal/model"
	"chatsync/internal/repository"
	"chatsync/internal/service"
	"chatsync/internal/util"
	"chatsync/internal/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewRouter(cfg *config.Config) *gin.Engine {
	// Set Gin mode
	if cfg.ServerPort == "5000" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware(cfg.ClientURL))

	// Rate limiting middleware (if enabled)
	if cfg.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		r.Use(rateLimiter.Middleware())
		log.Printf("Rate limiting enabled: %d req/sec, burst: %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		panic("Failed to connect to database: " + err.Error())
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&model.User{},
		&model.FriendRequest{},
		&model.FriendEdge{},
		&model.Chat{},
		&model.ChatMember{},
		&model.Message{},
		&model.MessageRead{},
		&model.Notification{},
	); err != nil {
		panic("Failed to migrate database: " + err.Error())
	}

	// Initialize Redis with retry logic
	redisClient := initRedisWithRetry(cfg)

	// Change bus: repositories publish on it, live sessions subscribe
	bus := feed.NewBus()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, redisClient, bus)
	requestRepo := repository.NewFriendRequestRepository(db, redisClient, bus)
	edgeRepo := repository.NewFriendEdgeRepository(db, redisClient, bus)
	chatRepo := repository.NewChatRepository(db, redisClient, bus)
	messageRepo := repository.NewMessageRepository(db, bus)
	notificationRepo := repository.NewNotificationRepository(db, redisClient)

	// Initialize RabbitMQ with retry logic
	rabbitMQ := initRabbitMQWithRetry(cfg)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("WebSocket hub started")

	// Initialize Cloudinary client
	var cloudinaryClient *util.CloudinaryClient
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cloudinaryClient, err = util.NewCloudinaryClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v. Image uploads will be disabled.", err)
		} else {
			log.Println("Cloudinary initialized successfully")
		}
	} else {
		log.Println("Cloudinary credentials not configured. Image uploads will be disabled.")
	}

	// Initialize services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	notificationService := service.NewNotificationService(notificationRepo, rabbitMQ)
	notificationService.SetWSHub(wsHub)
	friendshipService := service.NewFriendshipService(requestRepo, edgeRepo, chatRepo, userRepo, notificationService)
	chatService := service.NewChatService(chatRepo, messageRepo, userRepo, notificationService, bus)

	// Session broadcaster: the hub announces presence changes, and a
	// sign-in triggers an edge reconciliation sweep for that user.
	sessions := identity.NewBroadcaster()
	wsHub.SetPresenceCallback(func(userID string, online bool) {
		sessions.Announce(identity.Event{UserID: userID, SignedIn: online})
	})
	go func() {
		events, cancel := sessions.Listen()
		defer cancel()
		for ev := range events {
			if !ev.SignedIn {
				continue
			}
			if err := friendshipService.ReconcileUser(ev.UserID); err != nil {
				log.Printf("Edge reconciliation failed for user %s: %v", ev.UserID, err)
			}
		}
	}()

	// Initialize notification worker if RabbitMQ is available
	if rabbitMQ != nil {
		notificationWorker := service.NewNotificationWorker(rabbitMQ, wsHub)
		if err := notificationWorker.Start(); err != nil {
			log.Printf("Warning: Failed to start notification worker: %v", err)
		} else {
			log.Println("Notification worker started successfully")
		}
	}

	// Initialize handlers
	authHandler := NewAuthHandler(authService, cfg.JWTSecret)
	userHandler := NewUserHandler(userRepo, cloudinaryClient)
	friendshipHandler := NewFriendshipHandler(friendshipService)
	chatHandler := NewChatHandler(chatService)
	notificationHandler := NewNotificationHandler(notificationService)
	syncSessions := NewSyncSessionManager(userRepo, requestRepo, edgeRepo, chatService, bus)

	// API routes
	api := r.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)

			// Protected routes
			auth.GET("/me", authHandler.AuthMiddleware(), authHandler.GetMe)
		}

		// User routes
		users := api.Group("/users")
		{
			users.Use(authHandler.AuthMiddleware())
			{
				users.GET("", userHandler.ListUsers)
				users.GET("/search", userHandler.SearchUsers)
				users.POST("/avatar", userHandler.UploadAvatar)
			}
		}

		// Friendship routes
		friends := api.Group("/friends")
		{
			friends.Use(authHandler.AuthMiddleware())
			{
				friends.GET("", friendshipHandler.GetFriends)
				friends.POST("/requests", friendshipHandler.SendFriendRequest)
				friends.GET("/requests", friendshipHandler.GetPendingRequests)
				friends.POST("/requests/:id/accept", friendshipHandler.AcceptFriendRequest)
				friends.POST("/requests/:id/reject", friendshipHandler.RejectFriendRequest)
				friends.GET("/:peerId/status", friendshipHandler.GetFriendshipStatus)
				friends.DELETE("/:peerId", friendshipHandler.RemoveFriend)
			}
		}

		// Chat routes
		chats := api.Group("/chats")
		{
			chats.Use(authHandler.AuthMiddleware())
			{
				chats.GET("", chatHandler.ListChats)
				chats.POST("/private", chatHandler.OpenPrivateChat)
				chats.POST("/group", chatHandler.CreateGroupChat)
				chats.GET("/:id", chatHandler.GetChat)
				chats.POST("/:id/messages", chatHandler.SendMessage)
				chats.GET("/:id/messages", chatHandler.ListMessages)
				chats.POST("/:id/read", chatHandler.MarkRead)
				chats.GET("/:id/unread", chatHandler.UnreadCount)
			}
		}

		// Notification routes
		notifications := api.Group("/notifications")
		{
			notifications.Use(authHandler.AuthMiddleware())
			{
				notifications.GET("", notificationHandler.GetNotifications)
				notifications.GET("/unread/count", notificationHandler.GetUnreadCount)
				notifications.POST("/:id/read", notificationHandler.MarkAsRead)
				notifications.POST("/read-all", notificationHandler.MarkAllAsRead)
			}
		}
	}

	// WebSocket route
	wsHandler := websocket.ServeWS(wsHub, cfg.JWTSecret, syncSessions)
	r.GET("/ws", func(c *gin.Context) {
		wsHandler.ServeHTTP(c.Writer, c.Request)
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = "host=" + cfg.PostgresHost +
			" port=" + cfg.PostgresPort +
			" user=" + cfg.PostgresUser +
			" password=" + cfg.PostgresPassword +
			" dbname=" + cfg.PostgresDB +
			" sslmode=" + cfg.PostgresSSLMode
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}

// initRedisWithRetry attempts to connect to Redis with exponential backoff retry
func initRedisWithRetry(cfg *config.Config) *util.RedisClient {
	maxRetries := 10
	initialDelay := 2 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		redisClient, err := util.NewRedisClient(cfg)
		if err == nil {
			log.Printf("Redis connected successfully on attempt %d", attempt)
			return redisClient
		}

		if attempt < maxRetries {
			delay := initialDelay * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay {
				delay = maxDelay
			}

			log.Printf("Failed to connect to Redis (attempt %d/%d): %v. Retrying in %v...", attempt, maxRetries, err, delay)
			time.Sleep(delay)
		} else {
			log.Printf("Warning: Failed to connect to Redis after %d attempts: %v. Caching will be disabled.", maxRetries, err)
		}
	}

	return nil
}

// initRabbitMQWithRetry attempts to connect to RabbitMQ with exponential backoff retry
func initRabbitMQWithRetry(cfg *config.Config) *util.RabbitMQClient {
	maxRetries := 10
	initialDelay := 2 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		rabbitMQ, err := util.NewRabbitMQClient(cfg)
		if err == nil {
			log.Printf("RabbitMQ connected successfully on attempt %d", attempt)
			return rabbitMQ
		}

		if attempt < maxRetries {
			delay := initialDelay * time.Duration(1<<uint(attempt-1))
			if delay > maxDelay {
				delay = maxDelay
			}

			log.Printf("Failed to connect to RabbitMQ (attempt %d/%d): %v. Retrying in %v...", attempt, maxRetries, err, delay)
			time.Sleep(delay)
		} else {
			log.Printf("Warning: Failed to connect to RabbitMQ after %d attempts: %v. Notifications fall back to direct WebSocket push.", maxRetries, err)
		}
	}

	return nil
}

func corsMiddleware(clientURL string) gin.HandlerFunc {
	allowedOrigins := []string{
		clientURL,
		"http://localhost:3000",
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", clientURL)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
