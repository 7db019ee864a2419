package main

import (
	"log"
	"os"
	"strconv"
	"time"

	_ "opsconsole/api/swagger" // swagger docs
	"opsconsole/internal/database"
	"opsconsole/internal/erp"
	"opsconsole/internal/handler"
	"opsconsole/internal/middleware"
	"opsconsole/internal/repository"
	"opsconsole/internal/service"
	"opsconsole/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Operator Console API
// @version         1.0
// @description     Backend for the order settlement and fulfillment operator console.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSslMode := os.Getenv("DB_SSLMODE")

	if dbHost == "" {
		dbHost = "localhost"
	}
	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		dbPassword = "postgres"
	}
	if dbName == "" {
		dbName = "postgres"
	}
	if dbSslMode == "" {
		dbSslMode = "disable"
	}

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Upstream ERP client
	erpBaseURL := os.Getenv("ERP_BASE_URL")
	if erpBaseURL == "" {
		erpBaseURL = "http://localhost:9000"
	}
	erpTimeout := 10 * time.Second
	if raw := os.Getenv("ERP_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			erpTimeout = time.Duration(secs) * time.Second
		}
	}
	erpClient := erp.NewClient(erpBaseURL, os.Getenv("ERP_API_KEY"), erpTimeout)

	// Viewer tokens for shared document links
	docTokenTTL := 60 * time.Minute
	if raw := os.Getenv("DOC_TOKEN_TTL_MINUTES"); raw != "" {
		if mins, err := strconv.Atoi(raw); err == nil && mins > 0 {
			docTokenTTL = time.Duration(mins) * time.Minute
		}
	}
	docTokens := middleware.NewDocTokenIssuer(middleware.GetJWTSecret(), docTokenTTL)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	shareLogRepo := repository.NewShareLogRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	userService := service.NewUserService(userRepo, tokenRepo, txManager)
	orderService := service.NewOrderService(erpClient)
	paymentService := service.NewPaymentService(erpClient, orderService, auditRepo, wsHub, os.Getenv("CHECKOUT_KEY_ID"))
	fulfillmentService := service.NewFulfillmentService(erpClient, orderService, auditRepo, wsHub)
	shareService := service.NewShareService(erpClient, orderService, shareLogRepo, docTokens, os.Getenv("MESSAGING_COUNTRY_CODE"))
	ledgerService := service.NewLedgerService(erpClient, shareLogRepo)
	auditService := service.NewAuditService(auditRepo)

	// Initialize Handlers
	userHandler := handler.NewUserHandler(userService)
	orderHandler := handler.NewOrderHandler(orderService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	fulfillmentHandler := handler.NewFulfillmentHandler(fulfillmentService)
	shareHandler := handler.NewShareHandler(shareService)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	auditHandler := handler.NewAuditHandler(auditService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	// Register API Routes
	userHandler.RegisterRoutes(router.Group(""))
	orderHandler.RegisterRoutes(router.Group(""))
	paymentHandler.RegisterRoutes(router.Group(""))
	fulfillmentHandler.RegisterRoutes(router.Group(""))
	shareHandler.RegisterRoutes(router.Group(""))
	ledgerHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
