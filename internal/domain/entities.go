package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRateLimited     = errors.New("rate limited")
	ErrNoBackend       = errors.New("no ai backend configured")
	ErrGeneration      = errors.New("generation failed")
	ErrInternal        = errors.New("internal error")
)

// Backend identifies the LLM service answering a request.
type Backend string

const (
	BackendVertex     Backend = "vertex"
	BackendGemini     Backend = "gemini"
	BackendOpenRouter Backend = "openrouter"
)

// SolveResult is the payload returned to clients and stored in the response cache.
type SolveResult struct {
	Success    bool    `json:"success"`
	Solution   string  `json:"solution"`
	HasDiagram bool    `json:"has_diagram"`
	DiagramURL *string `json:"diagram_url"`
	APIBackend string  `json:"api_backend"`
	Cached     bool    `json:"cached"`
}

// Image is a decoded, content-sniffed image payload.
type Image struct {
	Data []byte
	MIME string
}

// DiagramKind enumerates the diagram flavours the model may emit.
type DiagramKind string

const (
	DiagramPlot   DiagramKind = "plot"
	DiagramFigure DiagramKind = "figure"
)

// RenderedDiagram describes a diagram written to disk for a single request.
// Invariants: Path is relative to the generated output directory.
type RenderedDiagram struct {
	Kind   DiagramKind
	Source string
	Path   string
}

// GenerationError is returned by the gateway once every attempt is exhausted.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// InputError carries a client-facing message for a rejected request.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Unwrap() error { return ErrInvalidArgument }

// InvalidInput returns an ErrInvalidArgument whose text is safe to show to clients.
func InvalidInput(msg string) error { return &InputError{Message: msg} }

// Ports

// Provider is a single LLM backend adapter.
//
//go:generate mockery --name=Provider --output=mocks --outpkg=mocks --structname=MockProvider
type Provider interface {
	Name() Backend
	Generate(ctx Context, prompt string, img *Image) (string, error)
}

// ResponseCache stores finished results keyed by payload fingerprint.
// Implementations never fail the caller; storage errors are logged and
// reported as a miss.
//
//go:generate mockery --name=ResponseCache --output=mocks --outpkg=mocks --structname=MockResponseCache
type ResponseCache interface {
	Lookup(ctx Context, key string) (SolveResult, bool)
	Store(ctx Context, key string, value SolveResult)
}

// FileScheduler deletes a served file after a delay.
//
//go:generate mockery --name=FileScheduler --output=mocks --outpkg=mocks --structname=MockFileScheduler
type FileScheduler interface {
	ScheduleDelete(path string)
}

// Context is an alias so adapters and usecases share the std context type.
type Context = context.Context
