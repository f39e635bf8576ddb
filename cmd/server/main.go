package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"yorumi-backend/lib/cache"
	"yorumi-backend/lib/configuration"
	"yorumi-backend/lib/fetch"
	"yorumi-backend/lib/osutil"
	"yorumi-backend/lib/providers/anilist"
	"yorumi-backend/lib/providers/asura"
	"yorumi-backend/lib/providers/hianime"
	"yorumi-backend/lib/providers/jikan"
	"yorumi-backend/lib/providers/mangakatana"
	"yorumi-backend/lib/telemetry"
	"yorumi-backend/services/catalog"
)

func fatalerr(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}

type Config struct {
	Addr  string             `json:"addr"`
	Debug bool               `json:"debug"`
	Redis cache.RedisOptions `json:"redis"`
	Asura struct {
		BlockAssets bool `json:"block_assets"`
	} `json:"asura"`
}

func main() {
	config, err := configuration.ReadConfig[Config]("server.json5")
	if err != nil {
		fatalerr("failed to read config", err)
	}
	if config.Addr == "" {
		config.Addr = "0.0.0.0:8222"
	}

	ctx := osutil.SignalContext()

	telemetry.SetupFromEnv(ctx, "cmd/server")
	telemetry.InitSlog(config.Debug)

	var durable cache.Durable
	if config.Redis.Addr != "" {
		store := cache.NewRedisStore(config.Redis)
		if err := store.Ping(ctx); err != nil {
			fatalerr("failed to reach redis", err)
		}
		defer store.Close()
		durable = store
	} else {
		slog.Info("no redis address configured, caching in process only")
		durable = cache.NewMemoryStore()
	}

	svc := catalog.NewService(catalog.Options{
		HiAnime: hianime.NewClient(hianime.ClientOptions{}),
		AniList: anilist.NewClient(anilist.ClientOptions{}),
		Jikan:   jikan.NewClient(jikan.ClientOptions{}),
		MangaKatana: mangakatana.NewClient(mangakatana.ClientOptions{}),
		Asura: asura.NewClient(asura.ClientOptions{
			Renderer: fetch.NewRenderer(fetch.RendererOptions{
				BlockAssets: config.Asura.BlockAssets,
			}),
		}),
		Cache: cache.New(durable),
	})

	server := &http.Server{
		Addr:    config.Addr,
		Handler: newRouter(svc),
	}

	go func() {
		slog.Info("listening", "addr", config.Addr)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalerr("failed to listen", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "err", err)
	}
}
