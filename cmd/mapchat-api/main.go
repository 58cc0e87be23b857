// README: Entry point; loads config, wires the agents and the
// conversation engine, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"mapchat/internal/ai"
	"mapchat/internal/config"
	"mapchat/internal/geocode"
	httptransport "mapchat/internal/http"
	"mapchat/internal/infra"
	"mapchat/internal/maps"
	"mapchat/internal/modules/clarify"
	"mapchat/internal/modules/conversation"
	"mapchat/internal/modules/enrichment"
	"mapchat/internal/modules/intent"
	"mapchat/internal/modules/route"
	"mapchat/internal/modules/turnlog"
	"mapchat/internal/modules/waypoint"
	"mapchat/internal/overpass"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("llm init: %v", err)
	}
	defer provider.Close()

	var dbPool *pgxpool.Pool
	if cfg.DB.DSN != "" {
		dbPool, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatal(err)
		}
		defer dbPool.Close()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = infra.NewRedis(cfg.Redis.Addr)
	}

	routeService, err := maps.NewRouteService(cfg.Maps.APIKey)
	if err != nil {
		log.Fatalf("maps init: %v", err)
	}

	geocoder := geocode.NewClient(cfg.Nominatim.BaseURL, cfg.Nominatim.Insecure, redisClient)
	overpassClient := overpass.NewClient(cfg.Overpass.Endpoints)

	classifier := intent.NewClassifier(provider)
	clarifier := clarify.NewHandler(provider)
	routeAgent := route.NewAgent(provider, geocoder, routeService)
	waypointAgent := waypoint.NewAgent(geocoder, routeAgent)
	enrichAgent := enrichment.NewAgent(provider, overpassClient,
		cfg.Sampling.IntervalKm, cfg.Overpass.PlacesRadiusM, cfg.Overpass.FeaturesRadiusM)

	var recorder conversation.Recorder
	if dbPool != nil {
		recorder = turnlog.NewService(turnlog.NewStore(dbPool))
	}

	chat := conversation.NewService(provider, classifier, clarifier, routeAgent, waypointAgent, enrichAgent, recorder)

	handler := httptransport.NewServer(httptransport.ServerDeps{Chat: chat})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("[mapchat] listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func newProvider(ctx context.Context, cfg config.Config) (ai.Provider, error) {
	if cfg.LLM.Backend == "ollama" {
		return ai.NewOllamaProvider(cfg.LLM.OllamaURL, cfg.LLM.OllamaModel), nil
	}
	return ai.NewGeminiProvider(ctx, cfg.LLM.GeminiKey)
}
