package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moradia/api/internal/cache"
	"moradia/api/internal/config"
	"moradia/api/internal/database"
	"moradia/api/internal/geo"
	"moradia/api/internal/handlers"
	"moradia/api/internal/log"
	"moradia/api/internal/repository"
	"moradia/api/internal/server"
	"moradia/api/internal/service"
	"moradia/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, cfg.Postgres.DSN); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("object store init failed")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Fatal().Err(err).Msg("object store bucket check failed")
	}

	userRepo := repository.NewUserRepository(pool)
	listingRepo := repository.NewListingRepository(pool)
	rentalRepo := repository.NewRentalRepository(pool)
	favoriteRepo := repository.NewFavoriteRepository(pool)

	geocoder := geo.NewGeocoder(cfg.Geocode, redisClient, logger)

	userSvc := service.NewUserService(userRepo, favoriteRepo, listingRepo, objectStore, cfg.Security, logger)
	listingSvc := service.NewListingService(listingRepo, favoriteRepo, geocoder, objectStore, cfg.Campus, logger)
	rentalSvc := service.NewRentalService(listingRepo, rentalRepo, userRepo, logger)

	handlerSet := handlers.NewHandlerSet(cfg, logger, pool, redisClient, userRepo, userSvc, listingSvc, rentalSvc, geocoder)

	srv := server.New(cfg, logger, handlerSet)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}
