// voicedesk is the hotel-reservation voice concierge server. It hosts
// the WebRTC signalling endpoint for browser callers, the telephony
// media-stream websocket for phone callers, and the operations
// dashboard.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/harborview/voicedesk/internal/config"
	"github.com/harborview/voicedesk/internal/log"
	"github.com/harborview/voicedesk/pkg/agent"
	"github.com/harborview/voicedesk/pkg/dashboard"
	"github.com/harborview/voicedesk/pkg/notify"
	"github.com/harborview/voicedesk/pkg/reasoning"
	"github.com/harborview/voicedesk/pkg/store"
	"github.com/harborview/voicedesk/pkg/stt"
	"github.com/harborview/voicedesk/pkg/tools"
	"github.com/harborview/voicedesk/pkg/transport"
	"github.com/harborview/voicedesk/pkg/tts"
)

func main() {
	log.Init(config.Env("LOG_LEVEL", "info"))
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := buildStore(ctx, logger)
	if err != nil {
		logger.Error("store initialization failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	notifier := buildNotifier()
	defer notifier.Close()

	sttProvider, err := stt.NewDeepgram(
		stt.WithAPIKey(os.Getenv("DEEPGRAM_API_KEY")),
		stt.WithLogger(logger),
	)
	if err != nil {
		logger.Error("stt provider init failed", "error", err)
		os.Exit(1)
	}
	defer sttProvider.Close()

	ttsProvider, err := buildTTS(logger)
	if err != nil {
		logger.Error("tts provider init failed", "error", err)
		os.Exit(1)
	}
	defer ttsProvider.Close()

	engine, err := reasoning.NewClient(
		reasoning.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
		reasoning.WithBaseURL(config.Env("OPENAI_BASE_URL", "https://api.openai.com/v1")),
		reasoning.WithModel(config.Env("OPENAI_MODEL", "gpt-4o")),
		reasoning.WithLogger(logger),
	)
	if err != nil {
		logger.Error("reasoning provider init failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gateway := tools.NewGateway(st, notifier, tools.WithLogger(logger))
	agentOpts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithMetrics(agent.NewMetrics(registry)),
	}
	if d := config.EnvDuration("TURN_END_SILENCE", 0); d > 0 {
		agentOpts = append(agentOpts, agent.WithTurnEndSilence(d))
	}
	if d := config.EnvDuration("REASONING_TIMEOUT", 0); d > 0 {
		agentOpts = append(agentOpts, agent.WithReasoningTimeout(d))
	}
	voiceAgent := agent.New(sttProvider, ttsProvider, engine, gateway, agentOpts...)

	dash := dashboard.NewServer(st, voiceAgent, notifier,
		dashboard.WithAddr(":"+config.Env("DASHBOARD_PORT", "8081")),
		dashboard.WithLogger(logger),
		dashboard.WithMetricsRegistry(registry),
	)
	dash.StartAsync()
	defer dash.Shutdown()

	app := mediaApp(ctx, voiceAgent, logger)
	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	addr := ":" + config.HTTPPort()
	logger.Info("voicedesk listening", "addr", addr)
	if err := app.Listen(addr); err != nil {
		logger.Error("server stopped", "error", err)
	}
}

// mediaApp builds the fiber app hosting the caller-facing endpoints.
func mediaApp(ctx context.Context, voiceAgent *agent.Agent, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "voicedesk",
		DisableStartupMessage: true,
	})

	// Browser callers post an SDP offer and get a complete answer back.
	app.Post("/webrtc/offer", func(c *fiber.Ctx) error {
		var req struct {
			SDP string `json:"sdp"`
		}
		if err := c.BodyParser(&req); err != nil || req.SDP == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "sdp required"})
		}

		conn, err := transport.NewWebRTC(logger)
		if err != nil {
			logger.Error("webrtc setup failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "setup failed"})
		}
		answer, err := conn.HandleOffer(req.SDP)
		if err != nil {
			conn.Close()
			logger.Error("webrtc offer rejected", "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad offer"})
		}

		go func() {
			if err := voiceAgent.Run(ctx, conn); err != nil {
				logger.Info("webrtc call ended", "error", err)
			}
		}()
		return c.JSON(fiber.Map{"sdp": answer})
	})

	app.Use("/telephony", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Carrier media streams connect here; the handler blocks for the
	// duration of the call.
	app.Get("/telephony/media", websocket.New(func(c *websocket.Conn) {
		conn := transport.NewTelephony(c, logger)
		if err := voiceAgent.Run(ctx, conn); err != nil {
			logger.Info("telephony call ended", "error", err)
		}
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app
}

// buildStore picks PostgreSQL when DATABASE_URL is set, otherwise the
// seeded in-memory store for local development.
func buildStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	if dsn := config.PostgresDSN(); dsn != "" {
		logger.Info("using postgres reservation store")
		return store.NewPostgres(ctx, dsn)
	}
	logger.Info("using seeded in-memory reservation store")
	return store.NewSeededMemory(), nil
}

// buildNotifier attaches the Kafka sink when brokers are configured.
func buildNotifier() *notify.Notifier {
	brokers := config.KafkaBrokers()
	if brokers == "" {
		return notify.New()
	}
	sink := notify.NewKafkaSink(notify.KafkaConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   config.Env("KAFKA_TOPIC", notify.DefaultKafkaTopic),
	})
	return notify.New(sink)
}

// buildTTS chains ElevenLabs (primary) with OpenAI (fallback) when both
// keys are present.
func buildTTS(logger *slog.Logger) (tts.Provider, error) {
	var providers []tts.Provider

	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		opts := []tts.Option{
			tts.WithAPIKey(key),
			tts.WithOutputFormat(tts.EncodingPCM16),
			tts.WithLogger(logger),
		}
		if voice := os.Getenv("ELEVENLABS_VOICE_ID"); voice != "" {
			opts = append(opts, tts.WithVoice(voice))
		}
		p, err := tts.NewElevenLabs(opts...)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(key),
			tts.WithOutputFormat(tts.EncodingPCM16),
			tts.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return tts.NewChainWithLogger(logger, providers...)
}
