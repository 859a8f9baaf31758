package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"classattend/internal/attendance"
	"classattend/internal/classifier"
	"classattend/internal/config"
	"classattend/internal/console"
	"classattend/internal/faceclient"
	"classattend/internal/media"
	"classattend/internal/qr"
	"classattend/internal/store"
)

// App holds the collaborators shared by the CLI and the console.
type App struct {
	Config  config.App
	DB      *store.DB
	Redis   *store.Redis
	Face    *faceclient.Client
	Models  *classifier.Holder
	Media   media.Store
	Service *attendance.Service
}

// New opens the database, migrates it and builds the attendance service from cfg.
func New(ctx context.Context, cfg config.App) (*App, error) {
	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{Config: cfg, DB: db}

	var modelStore classifier.Store
	switch cfg.ModelBackend {
	case "redis":
		a.Redis = store.NewRedis(cfg.RedisAddr)
		modelStore = classifier.NewRedisStore(a.Redis.Client, cfg.ModelRedisKey)
		log.Info().Str("addr", cfg.RedisAddr).Str("key", cfg.ModelRedisKey).Msg("classifier model stored in redis")
	case "file", "":
		modelStore = classifier.NewFileStore(cfg.ModelPath)
	default:
		_ = db.Close()
		return nil, fmt.Errorf("unsupported MODEL_BACKEND %q", cfg.ModelBackend)
	}
	a.Models = classifier.NewHolder(modelStore)

	switch cfg.MediaBackend {
	case "cloudinary":
		if !cfg.CloudinaryConfigured() {
			_ = a.Close()
			return nil, fmt.Errorf("MEDIA_BACKEND=cloudinary needs CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
		}
		a.Media = media.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("media stored in cloudinary")
	case "local", "":
		a.Media = media.NewLocal(cfg.MediaDir)
	default:
		_ = a.Close()
		return nil, fmt.Errorf("unsupported MEDIA_BACKEND %q", cfg.MediaBackend)
	}

	a.Face = faceclient.New(cfg.FaceServiceURL, cfg.FaceThreshold, cfg.FaceImageSize)
	a.Service = attendance.NewService(attendance.Deps{
		Repo:         attendance.NewRepository(db),
		Detector:     a.Face,
		Recognizer:   a.Face,
		Models:       a.Models,
		QR:           qr.New(256),
		Media:        a.Media,
		PhotoMaxSize: cfg.PhotoMaxSize,
	})
	return a, nil
}

// Health reports the reachability of each backing service.
func (a *App) Health(ctx context.Context) map[string]bool {
	h := map[string]bool{
		"db":   a.DB.Healthy(ctx),
		"face": a.Face.Health(ctx) == nil,
	}
	if a.Redis != nil {
		h["redis"] = a.Redis.Healthy(ctx)
	}
	return h
}

// Close releases the database and redis connections.
func (a *App) Close() error {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	return a.DB.Close()
}

// ConsoleOptions returns the console settings for this app.
func (a *App) ConsoleOptions() console.Options {
	return console.Options{
		Service:          a.Service,
		Media:            a.Media,
		School:           a.Config.School,
		OperatorPassword: a.Config.OperatorPassword,
		JWTIssuer:        a.Config.JWTIssuer,
		JWTSigningKey:    a.Config.JWTSigningKey,
		SessionTTL:       a.Config.SessionTTL,
		RateLimitPerMin:  a.Config.RateLimitPerMin,
		Health:           a.Health,
	}
}

// Serve runs the operator console until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.Config.OperatorPassword == "" {
		log.Warn().Msg("OPERATOR_PASSWORD not set, console is open to anyone who can reach it")
	}
	if err := a.Face.Health(ctx); err != nil {
		log.Warn().Err(err).Str("url", a.Config.FaceServiceURL).Msg("face service not reachable, passes will fail until it is up")
	}
	srv, err := console.New(a.ConsoleOptions())
	if err != nil {
		return err
	}
	return console.Serve(ctx, ":"+a.Config.HTTPPort, srv.Handler())
}
