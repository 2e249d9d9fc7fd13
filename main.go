package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/raushankrgupta/fitview-tryon/api"
	"github.com/raushankrgupta/fitview-tryon/assets"
	"github.com/raushankrgupta/fitview-tryon/cache"
	"github.com/raushankrgupta/fitview-tryon/config"
	"github.com/raushankrgupta/fitview-tryon/imageproc"
	"github.com/raushankrgupta/fitview-tryon/providers"
	"github.com/raushankrgupta/fitview-tryon/storage"
	"github.com/raushankrgupta/fitview-tryon/store"
	"github.com/raushankrgupta/fitview-tryon/tryon"
	"github.com/raushankrgupta/fitview-tryon/utils"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := storage.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatal("connect mongodb", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.MongoDB)

	s3Store, err := storage.NewS3(ctx, cfg.AWSRegion, cfg.AWSBucketName)
	if err != nil {
		log.Fatal("init s3", zap.Error(err))
	}

	provs := buildProviders(ctx, cfg, log)

	var segmenter imageproc.Segmenter
	if cfg.EnableSegmenter {
		segmenter = &imageproc.ChromaKeySegmenter{}
	}
	var enhancer imageproc.Enhancer
	if cfg.EnableEnhancer {
		enhancer = &imageproc.SigmoidEnhancer{}
	}

	orchestrator := tryon.NewOrchestrator(
		store.NewCatalog(db),
		store.NewSessions(db),
		assets.NewLoader(cfg.AssetRoot),
		s3Store,
		imageproc.NewStage(segmenter, enhancer),
		imageproc.NewCompositor(),
		cache.NewInMemory(),
		provs,
		cfg.CacheTTL,
		log,
	)

	handler := api.NewHandler(orchestrator, utils.NewEmailer(cfg.SendGridAPIKey), cfg.JWTSecret, log)
	mux := http.NewServeMux()
	handler.Register(mux)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.CORSMiddleware(utils.LatencyMiddleware(log, mux)),
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	for _, p := range provs {
		if closer, ok := p.(interface{ Close() error }); ok {
			closer.Close()
		}
	}
}

// buildProviders assembles the provider priority list from configuration.
// Gemini first when configured, Bedrock second. An empty list is valid:
// every request then takes the fallback compositor.
func buildProviders(ctx context.Context, cfg *config.Config, log *zap.Logger) []providers.Provider {
	var provs []providers.Provider

	if cfg.GeminiAPIKey != "" {
		gemini, err := providers.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ProviderTimeout, cfg.ProviderRetries)
		if err != nil {
			log.Warn("gemini provider unavailable", zap.Error(err))
		} else {
			provs = append(provs, gemini)
		}
	}

	if cfg.BedrockEnabled {
		bedrock, err := providers.NewBedrock(ctx, cfg.BedrockRegion, cfg.BedrockModelID, cfg.ProviderTimeout, cfg.ProviderRetries)
		if err != nil {
			log.Warn("bedrock provider unavailable", zap.Error(err))
		} else {
			provs = append(provs, bedrock)
		}
	}

	if len(provs) == 0 {
		log.Warn("no AI providers configured, all requests will use the fallback compositor")
	}
	return provs
}
