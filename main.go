package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nijaru/videoverse/auth"
	"github.com/nijaru/videoverse/config"
	"github.com/nijaru/videoverse/drive"
	"github.com/nijaru/videoverse/handlers/api"
	"github.com/nijaru/videoverse/logger"
	"github.com/nijaru/videoverse/repository"
	"github.com/nijaru/videoverse/repository/mongo"
	"github.com/nijaru/videoverse/repository/sqlite"
	"github.com/nijaru/videoverse/services/playback"
	"github.com/nijaru/videoverse/services/upload"
	"github.com/nijaru/videoverse/services/video"
	"github.com/nijaru/videoverse/thumbnail"
	"github.com/nijaru/videoverse/validation"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	repo, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open metadata store")
	}
	defer repo.Close()

	// Auth
	provider := auth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL, cfg.Google.Scopes)
	sessions, err := auth.NewMemoryStore(cfg.Session.MaxSessions, cfg.Session.TTL)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create session store")
	}
	manager := auth.NewManager(provider, cfg.Session.RefreshMargin,
		auth.WithSignOut(func(s auth.Session) { sessions.Delete(s.ID) }),
		auth.WithManagerLogger(appLogger),
	)
	tokens := auth.NewTokens(sessions, manager)
	codec := auth.NewCookieCodec(cfg.Session.Secret, cfg.Session.TTL)

	// Drive
	uploaderOpts := []drive.UploaderOption{drive.WithUploaderLogger(appLogger)}
	if cfg.Drive.UploadBaseURL != "" {
		uploaderOpts = append(uploaderOpts, drive.WithEndpoint(cfg.Drive.UploadBaseURL))
	}
	uploader := drive.NewUploader(cfg.Drive.FolderName, uploaderOpts...)
	files := drive.NewManager(cfg.Drive.APIBaseURL, cfg.RequestTimeout, appLogger)

	// Playback
	resolver := playback.NewResolver(repo, newPlaybackCache(ctx, cfg, appLogger),
		cfg.Cache.PlaybackTTL, cfg.Drive.EmbedURLTemplate, cfg.PublicBaseURL)

	// Services
	thumbnails := thumbnail.NewGenerator(
		thumbnail.NewFFmpegExtractor(cfg.Upload.FFmpegPath),
		thumbnail.Encoder{MaxWidth: cfg.Upload.ThumbnailWidth},
		cfg.Upload.ThumbnailAt,
	)
	tracker := upload.NewTracker(cfg.Upload.ClearDelay)
	defer tracker.Close()

	uploadService := upload.NewService(uploader, thumbnails, repo, validation.NewValidator(cfg), tracker, appLogger)
	videoService := video.NewService(repo, files, resolver, appLogger)

	server := api.NewServer(cfg,
		api.WithLogger(appLogger),
		api.WithAuth(api.NewAuthHandler(provider, sessions, codec, tokens, cfg.Session, appLogger)),
		api.WithServices(api.Services{
			Videos:   videoService,
			Uploads:  uploadService,
			Drive:    uploader,
			Playback: resolver,
		}),
	)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-shutdownChan:
		appLogger.WithField("signal", sig.String()).Info("Shutdown requested")
	case err := <-serverErr:
		if err != nil {
			appLogger.WithError(err).Error("Server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server shutdown error")
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (repository.VideoRepository, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		dbConfig := sqlite.DefaultDBConfig()
		dbConfig.QueryTimeout = cfg.Store.QueryTimeout
		db, err := sqlite.Open(cfg.Store.SQLitePath, dbConfig)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", cfg.Store.SQLitePath).Info("Using sqlite metadata store")
		return sqlite.NewRepository(db), nil
	default:
		repo, err := mongo.Connect(ctx, mongo.Options{
			URI:        cfg.Store.MongoURI,
			Database:   cfg.Store.MongoDatabase,
			Collection: cfg.Store.MongoCollection,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		logger.WithField("database", cfg.Store.MongoDatabase).Info("Using mongo metadata store")
		return repo, nil
	}
}

// newPlaybackCache prefers Redis when configured and reachable.
func newPlaybackCache(ctx context.Context, cfg *config.Config, logger *logrus.Logger) playback.Cache {
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err == nil {
			logger.WithField("addr", cfg.Cache.RedisAddr).Info("Using redis playback cache")
			return playback.NewRedisCache(client, logger)
		}
		logger.WithError(err).Warn("Redis unavailable, falling back to in-memory playback cache")
		client.Close()
	}

	cache, err := playback.NewLRUCache(cfg.Cache.PlaybackSize)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create playback cache")
	}
	return cache
}
