package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloonapi/controllers"
	"cloonapi/dbhelper"
	"cloonapi/services"
	"cloonapi/studio"
	"cloonapi/telegram"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

// opsNotifier fans generation outcomes out to a push for the user and a
// telegram line for the ops chat.
type opsNotifier struct {
	fbApp *firebase.App
	db    *gorm.DB
}

func (n *opsNotifier) LookReady(userId uint, lookId string) {
	services.SendNotification(n.fbApp, n.db, userId, "Your look is ready 🔥", "Open the studio to see your new look!", map[string]string{"look_id": lookId})
}

func (n *opsNotifier) GenerationFailed(userId uint, taskId string, err error) {
	telegram.AlertGenerationFailure(userId, taskId, err)
}

func main() {
	rcToken := os.Getenv("RC_WEBHOOK_TOKEN")
	if rcToken == "" {
		log.Fatal("RC_WEBHOOK_TOKEN environment variable is not set!")
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv("SENTRY_DSN"),
		Environment:      services.GetEnv("ENV", "local"),
		Release:          "cloonapi@1.0.0",
		Debug:            false,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	db := dbhelper.SetupDB()

	app, err := firebase.NewApp(context.Background(), nil)
	if err != nil {
		log.Fatalf("error initializing firebase app: %v\n", err)
		return
	}
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")})
	asynqInspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: os.Getenv("ASYNC_BROKER_ADDRESS")})
	bucketName := services.GetEnv("R2_BUCKET_NAME", "")
	awsService := &services.AWSService{}
	urlCache, err := services.NewURLCacheService(awsService, bucketName)
	if err != nil {
		log.Fatal("Failed to initialize URL cache service")
	}

	processor := services.GoogleImageProcessor{}
	invoker := services.NewTieredInvoker(processor)
	compositor := &services.GenerationCompositor{
		Invoker:    invoker,
		Classifier: &services.ItemClassifier{Processor: processor},
		Analyzer:   processor,
	}
	manager := studio.NewManager(studio.Deps{
		Compositor: compositor,
		Store:      &services.DBLookStore{DB: db},
		AWS:        awsService,
		URLCache:   urlCache,
		Notifier:   &opsNotifier{fbApp: app, db: db},
		BucketName: bucketName,
	})

	e := controllers.SetupServer(
		db, services.GoogleService{}, awsService, app,
		asynqClient, asynqInspector, manager, urlCache,
	)
	e.Debug = true

	go telegram.RunOpsBot(db)

	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(3)))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	e.Logger.Fatal(e.Start(":8083"))
}
