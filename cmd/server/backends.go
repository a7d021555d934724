package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/ai/vertex"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/diagram"
	"github.com/fairyhunter13/ai-calculator/internal/config"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// closers collects resources released on shutdown.
type closers []func() error

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			slog.Warn("close failed", slog.Any("error", err))
		}
	}
}

// buildCandidates lists the primary backends in preference order. The hosted
// backend must answer a probe before it is chosen.
func buildCandidates(cfg config.Config, cl *closers) []ai.Candidate {
	var vertexOpen, geminiOpen func(context.Context) (domain.Provider, error)
	if cfg.VertexConfigured() {
		vertexOpen = func(ctx context.Context) (domain.Provider, error) {
			c, err := vertex.New(ctx, vertex.Config{
				ProjectID:       cfg.GoogleProjectID,
				Location:        cfg.GoogleLocation,
				Model:           cfg.VertexModel,
				CredentialsFile: cfg.GoogleCredentialsFile,
				Timeout:         cfg.AIRequestTimeout,
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		geminiOpen = func(ctx context.Context) (domain.Provider, error) {
			c, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			*cl = append(*cl, c.Close)
			return c, nil
		}
	}
	return []ai.Candidate{
		{Backend: domain.BackendVertex, Open: vertexOpen, Probe: true},
		{Backend: domain.BackendGemini, Open: geminiOpen},
	}
}

// buildGatewayOptions wires retry policy, model names and the optional
// OpenAI-compatible fallback.
func buildGatewayOptions(cfg config.Config) []ai.Option {
	opts := []ai.Option{
		ai.WithRetry(cfg.GetRetryConfig()),
		ai.WithModelNames(map[domain.Backend]string{
			domain.BackendVertex:     cfg.VertexModel,
			domain.BackendGemini:     cfg.GeminiModel,
			domain.BackendOpenRouter: cfg.OpenRouterModel,
		}),
	}
	// openrouter.New returns a nil *Client without a key; keep it out of the
	// interface so the gateway sees no fallback at all.
	if fb := openrouter.New(cfg); fb != nil {
		opts = append(opts, ai.WithFallback(fb))
		slog.Info("fallback backend configured", slog.String("model", fb.Model()))
	}
	return opts
}

// buildPlotExecutor picks the sandbox for plotting code. The second result is
// non-nil only for the Docker sandbox.
func buildPlotExecutor(cfg config.Config, cl *closers) (diagram.PlotExecutor, *diagram.DockerExecutor) {
	switch strings.ToLower(cfg.PlotSandbox) {
	case "disabled", "off", "none":
		slog.Warn("plot rendering disabled")
		return nil, nil
	case "local":
		slog.Warn("plot code runs as a local python process; use only for development",
			slog.String("python", cfg.PlotPythonBin))
		return diagram.NewLocalExecutor(cfg.PlotPythonBin), nil
	default:
		cli, err := diagram.NewDockerClient()
		if err != nil {
			slog.Error("docker client unavailable; plot rendering disabled", slog.Any("error", err))
			return nil, nil
		}
		*cl = append(*cl, cli.Close)
		ex := diagram.NewDockerExecutor(cli, cfg.PlotSandboxImage, diagram.DockerLimits{
			MemoryBytes: cfg.PlotMemoryMB << 20,
			PidsLimit:   64,
			NanoCPUs:    1_000_000_000,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ex.Ping(pingCtx); err != nil {
			slog.Warn("plot sandbox not ready; plots will fail until it is", slog.String("image", cfg.PlotSandboxImage), slog.Any("error", err))
		}
		return ex, ex
	}
}

// buildRenderer assembles the diagram pipeline writing into the generated
// output directory.
func buildRenderer(cfg config.Config, exec diagram.PlotExecutor) (*diagram.Renderer, error) {
	if err := os.MkdirAll(cfg.FigureDir(), 0o755); err != nil {
		return nil, err
	}
	scratch := filepath.Join(os.TempDir(), "ai-calculator")
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return nil, err
	}
	plots := diagram.NewPlotRenderer(exec, cfg.GeneratedDir(), scratch, cfg.PlotTimeout)
	figures := diagram.NewFigureRenderer(diagram.ExecRunner{}, diagram.FigureTools{
		Latex:         cfg.LatexBin,
		LatexTimeout:  cfg.LatexTimeout,
		Pdftoppm:      cfg.PdftoppmBin,
		Convert:       cfg.ConvertBin,
		RasterTimeout: cfg.RasterTimeout,
		DPI:           cfg.RasterDPI,
	}, cfg.GeneratedDir(), config.FigureSubdir, scratch)
	return diagram.NewRenderer(plots, figures, "/static/generated"), nil
}
