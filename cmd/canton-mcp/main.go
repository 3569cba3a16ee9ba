// Command canton-mcp runs the Canton MCP tool server: an MCP JSON-RPC
// endpoint with SSE streaming, an x402 payment gate across the enabled
// rails and DCAP UDP telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/canton-mcp/canton-mcp-go/config"
	"github.com/canton-mcp/canton-mcp-go/content"
	"github.com/canton-mcp/canton-mcp-go/core"
	"github.com/canton-mcp/canton-mcp-go/dcap"
	"github.com/canton-mcp/canton-mcp-go/mcp"
	"github.com/canton-mcp/canton-mcp-go/tools"
	"github.com/canton-mcp/canton-mcp-go/x402"
)

const (
	serverName    = "canton-mcp"
	serverVersion = "1.0.0"
)

const shutdownGrace = 10 * time.Second

func main() {
	if len(os.Args) < 2 || os.Args[1] != "serve" {
		fmt.Fprintf(os.Stderr, "usage: %s serve\n", os.Args[0])
		os.Exit(2)
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger, level); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := core.NewRegistry()
	if err := tools.RegisterAll(registry); err != nil {
		return fmt.Errorf("tool registration: %w", err)
	}

	rails, err := buildRails(cfg, logger)
	if err != nil {
		return err
	}
	var gate *x402.Gate
	if !rails.Empty() {
		gate = x402.NewGate(rails, cfg.X402.InternalAPIKey, logger)
	}

	var telemetry dcap.Telemetry = dcap.Nop{}
	if cfg.DCAP.Enabled {
		emitter, err := dcap.NewEmitter(dcap.EmitterConfig{
			Addr:     cfg.DCAP.Addr(),
			ServerID: cfg.DCAP.ServerID,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer emitter.Close()
		telemetry = emitter
	}

	contentReg := content.NewRegistry(cfg.DocsPath, 0, logger)
	contentReg.StartRescan(ctx)

	announcer := dcap.NewAnnouncer(telemetry,
		func() []dcap.ToolAdvert { return catalog(registry) },
		connector(cfg, rails),
		time.Duration(cfg.DCAP.DiscoverInterval)*time.Second)
	announcer.Start(ctx)

	server := mcp.NewServer(mcp.ServerConfig{
		Info:      mcp.ServerInfo{Name: serverName, Version: serverVersion},
		Tools:     registry,
		Requests:  core.NewRequestManager(0),
		Content:   contentReg,
		Gate:      gate,
		Telemetry: telemetry,
		Logger:    logger,
		Level:     level,
		BaseURL:   cfg.ServerURL,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: server.Engine(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"port", cfg.Port, "tools", registry.Len(),
			"payments", gate != nil, "telemetry", cfg.DCAP.Enabled)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return nil
}

// buildRails constructs the enabled payment rails, EVM first so 402
// accepts lists stay deterministically ordered.
func buildRails(cfg *config.Config, logger *slog.Logger) (*x402.Rails, error) {
	var list []x402.Rail
	if cfg.X402.Enabled {
		facilitator := x402.NewHTTPFacilitator(x402.FacilitatorConfig{
			URL:           cfg.X402.FacilitatorURL,
			VerifyTimeout: time.Duration(cfg.X402.VerifyTimeoutSec) * time.Second,
			SettleTimeout: time.Duration(cfg.X402.SettleTimeoutSec) * time.Second,
		})
		rail, err := x402.NewEVMRail(cfg.X402.Network, cfg.X402.WalletAddress, facilitator)
		if err != nil {
			return nil, fmt.Errorf("EVM rail: %w", err)
		}
		list = append(list, rail)
		logger.Info("EVM payment rail enabled", "network", cfg.X402.Network, "facilitator", cfg.X402.FacilitatorURL)
	}
	if cfg.Canton.Enabled {
		facilitator := x402.NewHTTPFacilitator(x402.FacilitatorConfig{
			URL:           cfg.Canton.FacilitatorURL,
			VerifyTimeout: time.Duration(cfg.X402.VerifyTimeoutSec) * time.Second,
			SettleTimeout: time.Duration(cfg.X402.SettleTimeoutSec) * time.Second,
		})
		rail, err := x402.NewCantonRail(cfg.Canton.Network, cfg.Canton.PayeeParty, facilitator)
		if err != nil {
			return nil, fmt.Errorf("Canton rail: %w", err)
		}
		list = append(list, rail)
		logger.Info("Canton payment rail enabled", "network", cfg.Canton.Network, "facilitator", cfg.Canton.FacilitatorURL)
	}
	return x402.NewRails(list...)
}

// catalog renders the tool registry as discovery adverts. Pricing keys are
// snake_case on the DCAP wire.
func catalog(registry *core.Registry) []dcap.ToolAdvert {
	list := registry.List()
	adverts := make([]dcap.ToolAdvert, 0, len(list))
	for _, t := range list {
		adverts = append(adverts, dcap.ToolAdvert{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
			Pricing:     discoveryPricing(t.Pricing()),
		})
	}
	return adverts
}

func discoveryPricing(p core.Pricing) map[string]interface{} {
	switch p.Mode {
	case core.PricingFixed:
		return map[string]interface{}{"mode": "fixed", "price_usd": p.PriceUSD, "currency": "USD"}
	case core.PricingDynamic:
		return map[string]interface{}{"mode": "dynamic", "min_usd": p.MinUSD, "max_usd": p.MaxUSD, "currency": "USD"}
	default:
		return map[string]interface{}{"mode": "free"}
	}
}

func connector(cfg *config.Config, rails *x402.Rails) dcap.Connector {
	conn := dcap.Connector{
		Endpoint:        cfg.ServerURL + "/mcp",
		ProtocolVersion: mcp.ProtocolVersion,
		Methods:         mcp.Methods,
	}
	for _, rail := range rails.List() {
		req := rail.Requirement("", "", 0)
		conn.Rails = append(conn.Rails, dcap.RailAdvert{
			Scheme:  rail.Scheme(),
			Network: rail.Network(),
			Asset:   req.Asset,
			PayTo:   req.PayTo,
		})
	}
	return conn
}

func parseLogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
