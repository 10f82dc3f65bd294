package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/linerelay/internal/ai"
	cfgpkg "github.com/local/linerelay/internal/config"
	"github.com/local/linerelay/internal/dispatcher"
	"github.com/local/linerelay/internal/fallback"
	"github.com/local/linerelay/internal/line"
	logpkg "github.com/local/linerelay/internal/logger"
	mpkg "github.com/local/linerelay/internal/metrics"
	"github.com/local/linerelay/internal/relay"
	"github.com/local/linerelay/internal/statuscheck"
	"github.com/local/linerelay/internal/store"
	"github.com/local/linerelay/internal/web"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	mpkg.Init()

	// Backend
	client, err := ai.NewClient(context.Background(), ai.Options{
		Provider: cfg.Backend.Provider,
		APIKey:   cfg.Backend.APIKey(),
		BaseURL:  cfg.Backend.BaseURL(),
		Model:    cfg.Backend.Model(),
	})
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Backend.Provider).Msg("failed to create backend client")
	}

	pool := dispatcher.NewPool(dispatcher.Config{Concurrency: cfg.Worker.Concurrency, QueueSize: cfg.Worker.QueueSize})
	pool.Start()
	invoker := dispatcher.NewInvoker(client, pool, ai.GenerationParams{
		SystemPrompt:    cfg.Backend.SystemPrompt,
		MaxOutputTokens: cfg.Backend.MaxOutputTokens,
		Temperature:     cfg.Backend.Temperature,
		TopP:            cfg.Backend.TopP,
		TopK:            cfg.Backend.TopK,
	})
	fb := fallback.New(fallbackTable(cfg.Messages), cfg.Relay.MaxInputLength)

	// State store: Redis when configured, otherwise process memory
	var (
		state   store.State
		dedup   store.Deduper
		checkRD statuscheck.RedisPinger
		rdb     *redis.Client
	)
	if cfg.Store.RedisURL != "" {
		rs, err := store.NewRedisStore(cfg.Store.RedisURL, cfg.Store.KeyPrefix, cfg.Store.DedupTTL, cfg.Relay.DefaultTalking)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rs.Close()
		state, dedup, checkRD, rdb = rs, rs, rs, rs.Client()
	} else {
		log.Warn().Msg("REDIS_URL not set; talking state and webhook dedup kept in memory")
		state = store.NewMemoryState(cfg.Relay.DefaultTalking)
		dedup = store.NewMemoryDeduper(cfg.Store.DedupTTL)
	}
	if on, err := state.TalkingEnabled(context.Background()); err == nil {
		mpkg.SetTalking(on)
	}

	// LINE transport
	replier, err := line.NewReplier(cfg.Line.ChannelAccessToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create LINE client")
	}
	rl := relay.New(invoker, fb, state, replier, relay.Options{
		Timeout:         cfg.Relay.RequestTimeout,
		FarewellKeyword: cfg.Relay.FarewellKeyword,
		TalkOnKeyword:   cfg.Relay.TalkOnKeyword,
		TalkOffKeyword:  cfg.Relay.TalkOffKeyword,
		Replies: relay.Replies{
			NonText:    cfg.Messages.NonText,
			Farewell:   cfg.Messages.Farewell,
			EmptyInput: cfg.Messages.EmptyInput,
			TalkOn:     cfg.Messages.TalkOn,
			TalkOff:    cfg.Messages.TalkOff,
		},
	})
	hook := line.NewHandler(line.HandlerOptions{
		ChannelSecret: cfg.Line.ChannelSecret,
		EventTimeout:  cfg.Relay.RequestTimeout + 10*time.Second,
	}, dedup, rl)

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logging.Pretty {
		gin.SetMode(gin.DebugMode)
	}
	w := web.New(web.Deps{
		Backend: invoker,
		State:   state,
		Webhook: hook,
		Status: statuscheck.New(statuscheck.Options{
			Redis:          checkRD,
			Backend:        invoker,
			HasBackendKey:  cfg.Backend.HasCredential(),
			LineConfigured: cfg.Line.ChannelSecret != "" && cfg.Line.ChannelAccessToken != "",
		}),
		HasBackendKey: cfg.Backend.HasCredential(),
		AdminToken:    cfg.AdminToken,
		TestTimeout:   cfg.Relay.RequestTimeout,
		DiagLimit:     cfg.DiagRateLimit,
		RedisClient:   rdb,
		Metrics:       true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           w.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("provider", invoker.Provider()).
			Str("model", invoker.Model()).
			Int("workers", pool.Concurrency()).
			Int("max_input_length", fb.MaxInputLength()).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second+cfg.Relay.RequestTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := hook.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("webhook events still running at shutdown")
	}
	if err := pool.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("worker pool stop")
	}
	log.Info().Msg("shutdown complete")
}

// fallbackTable applies the configured reply overrides to the stock table.
func fallbackTable(m cfgpkg.MessagesConfig) fallback.Table {
	unknown := m.FallbackUnknown
	if unknown == "" {
		unknown = m.FallbackDefault
	}
	table := fallback.DefaultTable().With(map[dispatcher.ErrorKind]string{
		dispatcher.KindTimeout:           m.FallbackTimeout,
		dispatcher.KindQuotaExceeded:     m.FallbackQuotaExceeded,
		dispatcher.KindModelNotFound:     m.FallbackModelNotFound,
		dispatcher.KindPermissionDenied:  m.FallbackPermissionDenied,
		dispatcher.KindBadRequestPayload: m.FallbackBadRequest,
		dispatcher.KindEmptyResponse:     m.FallbackEmptyResponse,
		dispatcher.KindBackendError:      m.FallbackBackendError,
		dispatcher.KindUnknown:           unknown,
	})
	if m.FallbackDefault != "" {
		table.Default = m.FallbackDefault
	}
	return table
}
