package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"tradetalk/internal/adapter/api"
	"tradetalk/internal/adapter/api/handler"
	apimiddleware "tradetalk/internal/adapter/api/middleware"
	"tradetalk/internal/adapter/api/router"
	"tradetalk/internal/adapter/repository"
	"tradetalk/internal/infrastructure/firebase"
	"tradetalk/internal/infrastructure/livefeed"
	"tradetalk/internal/infrastructure/ratelimit"
	"tradetalk/internal/infrastructure/websocket"
	"tradetalk/internal/usecase"
	"tradetalk/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption

	// Service account from env (production) or file path (local development);
	// application default credentials otherwise.
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}
		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	discussionRepo := repository.NewFirestoreDiscussionRepository(firestoreClient)
	profileProvider := repository.NewFirestoreProfileProvider(firestoreClient)
	productCatalog := repository.NewFirestoreProductCatalog(firestoreClient)

	firebaseAuthClient := firebase.NewAuthClient(authClient)
	handler.SetupHealthHandler(firebaseAuthClient)
	handler.SetupDevTokenHandler(firebaseAuthClient)

	broker := livefeed.NewBroker()

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine(ctx)

	discussionUseCase := usecase.NewDiscussionUseCase(
		discussionRepo,
		profileProvider,
		productCatalog,
		broker,
		limiter,
	)

	wsManager := websocket.NewManager(discussionUseCase, cfg.FeedBufferSize)
	wsManager.Start(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(apimiddleware.NewIPRateLimiter(120, time.Minute).Middleware())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	discussionHandler := handler.NewDiscussionHandler(discussionUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware)

	router.Setup(e, discussionHandler, wsHandler, authMiddleware, authClient)
	router.SetupDevRouter(e, cfg.Environment)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
