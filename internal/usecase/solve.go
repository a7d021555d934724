// Package usecase contains application business logic services.
package usecase

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/ai-calculator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/cache"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/diagram"
	obs "github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/config"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
	"github.com/fairyhunter13/ai-calculator/pkg/textx"
)

// pngDataURLPrefix is stripped from image payloads before decoding.
const pngDataURLPrefix = "data:image/png;base64,"

// Client-facing validation messages.
const (
	msgNoImage      = "No image provided."
	msgNoQuestion   = "No question provided."
	msgInvalidImage = "Invalid image data."
)

// Generator produces answers from the configured AI backends.
type Generator interface {
	Generate(ctx domain.Context, prompt string, img *domain.Image) (string, error)
	Backend() domain.Backend
}

// DiagramProcessor renders diagram regions embedded in an answer.
type DiagramProcessor interface {
	Process(ctx domain.Context, answer string) diagram.Outcome
}

// SolveService answers image and text math problems.
type SolveService struct {
	Gateway  Generator
	Diagrams DiagramProcessor
	Cache    domain.ResponseCache
	Files    domain.FileScheduler
	Prompts  config.Prompts
}

// NewSolveService constructs a SolveService with its dependencies.
func NewSolveService(g Generator, d DiagramProcessor, c domain.ResponseCache, f domain.FileScheduler, p config.Prompts) SolveService {
	return SolveService{Gateway: g, Diagrams: d, Cache: c, Files: f, Prompts: p}
}

// SolveImage solves the expression drawn in a base64 PNG canvas snapshot.
// The cache key covers the payload exactly as received.
func (s SolveService) SolveImage(ctx domain.Context, imageBase64 string) (domain.SolveResult, error) {
	ctx, span := obs.StartSpan(ctx, "SolveService.SolveImage")
	defer span.End()

	key, ok := cache.ComputeKey(imageBase64, "")
	if !ok {
		return domain.SolveResult{}, fmt.Errorf("op=usecase.SolveImage: %w", domain.InvalidInput(msgNoImage))
	}
	if res, hit := s.lookup(ctx, key); hit {
		return res, nil
	}

	img, err := decodeImage(imageBase64)
	if err != nil {
		span.RecordError(err)
		return domain.SolveResult{}, fmt.Errorf("op=usecase.SolveImage: %w", err)
	}
	span.SetAttributes(attribute.String("image.mime", img.MIME), attribute.Int("image.bytes", len(img.Data)))
	return s.solve(ctx, key, s.Prompts.Image, img)
}

// SolveText solves a typed question. The cache key covers the question as
// received; the prompt gets the sanitized text.
func (s SolveService) SolveText(ctx domain.Context, question string) (domain.SolveResult, error) {
	ctx, span := obs.StartSpan(ctx, "SolveService.SolveText")
	defer span.End()

	if textx.IsBlank(question) {
		return domain.SolveResult{}, fmt.Errorf("op=usecase.SolveText: %w", domain.InvalidInput(msgNoQuestion))
	}
	key, _ := cache.ComputeKey("", question)
	if res, hit := s.lookup(ctx, key); hit {
		return res, nil
	}
	return s.solve(ctx, key, s.Prompts.ForQuestion(textx.SanitizeText(question)), nil)
}

func (s SolveService) lookup(ctx domain.Context, key string) (domain.SolveResult, bool) {
	if s.Cache == nil {
		return domain.SolveResult{}, false
	}
	ctx, span := obs.StartSpan(ctx, "cache.Lookup")
	defer span.End()
	res, hit := s.Cache.Lookup(ctx, key)
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if hit {
		slog.InfoContext(ctx, "returning cached result", slog.String("key", key[:12]))
	}
	return res, hit
}

func (s SolveService) solve(ctx domain.Context, key, prompt string, img *domain.Image) (domain.SolveResult, error) {
	span := oteltrace.SpanFromContext(ctx)

	answer, err := s.Gateway.Generate(ctx, prompt, img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return domain.SolveResult{}, fmt.Errorf("op=usecase.solve: %w", err)
	}
	answer = ai.CleanResponse(answer)

	dctx, dspan := obs.StartSpan(ctx, "diagram.Process")
	out := s.Diagrams.Process(dctx, answer)
	dspan.SetAttributes(attribute.Bool("diagram.rendered", out.DiagramURL != nil))
	dspan.End()

	if out.Diagram != nil && s.Files != nil {
		s.Files.ScheduleDelete(out.Diagram.Path)
	}

	res := domain.SolveResult{
		Success:    true,
		Solution:   out.HTML,
		HasDiagram: out.DiagramURL != nil,
		DiagramURL: out.DiagramURL,
		APIBackend: string(s.Gateway.Backend()),
		Cached:     false,
	}
	if s.Cache != nil {
		s.Cache.Store(ctx, key, res)
	}
	span.SetAttributes(attribute.String("ai.backend", res.APIBackend), attribute.Bool("diagram.present", res.HasDiagram))
	return res, nil
}

// decodeImage strips the PNG data URL prefix, decodes base64 and checks that
// the bytes sniff as an image.
func decodeImage(payload string) (*domain.Image, error) {
	raw := strings.ReplaceAll(payload, pngDataURLPrefix, "")
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(data) == 0 {
		return nil, domain.InvalidInput(msgInvalidImage)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, domain.InvalidInput(msgInvalidImage)
	}
	return &domain.Image{Data: data, MIME: mt.String()}, nil
}
