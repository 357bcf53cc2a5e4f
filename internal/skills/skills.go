// Package skills starts AI skill generation jobs and follows them to
// completion with a capped poll.
package skills

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/poll"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

var (
	// ErrTimedOut means the attempt ceiling was reached while the job was
	// still generating.
	ErrTimedOut      = errors.New("skill generation timed out")
	ErrFailed        = errors.New("skill generation failed")
	ErrSkillNotFound = errors.New("skill not found")
)

// Skill is the state of one generation job.
type Skill struct {
	ResourceID string             `json:"resource_id"`
	Status     status.SkillStatus `json:"status"`
	Artifact   string             `json:"artifact,omitempty"`
	Error      string             `json:"error,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Backend runs generation jobs.
type Backend interface {
	StartSkillGeneration(ctx context.Context, resourceID, prompt string) error
	FetchSkillStatus(ctx context.Context, resourceID string) (*Skill, error)
}

// Config tunes the poll.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{PollInterval: 2 * time.Second, MaxAttempts: 60}
}

// Generator starts jobs and polls them.
type Generator struct {
	backend Backend
	config  Config
	logger  logging.Logger
}

func NewGenerator(backend Backend, config Config, logger logging.Logger) *Generator {
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	return &Generator{
		backend: backend,
		config:  config,
		logger:  logging.OrNop(logger).With(logging.Field{Key: "component", Value: "skills"}),
	}
}

// Handle follows one job.
type Handle struct {
	poll *poll.Handle

	mu   sync.Mutex
	last *Skill
}

// Generate starts the job and polls until it is ready or failed. onUpdate,
// if non-nil, receives every fetched state.
func (g *Generator) Generate(ctx context.Context, resourceID, prompt string, onUpdate func(*Skill)) (*Handle, error) {
	if err := g.backend.StartSkillGeneration(ctx, resourceID, prompt); err != nil {
		return nil, fmt.Errorf("start skill generation %s: %w", resourceID, err)
	}
	g.logger.Info("skill generation started", logging.Field{Key: "resource_id", Value: resourceID})
	return g.Follow(ctx, resourceID, onUpdate), nil
}

// Follow polls an already started job.
func (g *Generator) Follow(ctx context.Context, resourceID string, onUpdate func(*Skill)) *Handle {
	h := &Handle{}
	h.poll = poll.Start(ctx,
		func(ctx context.Context) (*Skill, error) {
			return g.backend.FetchSkillStatus(ctx, resourceID)
		},
		func(s *Skill) bool { return s.Status.IsTerminal() },
		func(s *Skill) {
			h.mu.Lock()
			h.last = s
			h.mu.Unlock()
			if onUpdate != nil {
				onUpdate(s)
			}
		},
		g.config.PollInterval,
		poll.WithMaxAttempts(g.config.MaxAttempts),
		poll.WithLogger(g.logger.With(logging.Field{Key: "resource_id", Value: resourceID})),
		poll.WithName("skill-status"),
	)
	return h
}

// Cancel stops polling. The remote job is not affected.
func (h *Handle) Cancel() { h.poll.Cancel() }

func (h *Handle) Done() <-chan struct{} { return h.poll.Done() }

// Last returns the most recent fetched state, or nil.
func (h *Handle) Last() *Skill {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Wait blocks until the poll ends and returns the final state. A failed job
// is returned together with ErrFailed.
func (h *Handle) Wait(ctx context.Context) (*Skill, error) {
	err := h.poll.Wait(ctx)
	last := h.Last()
	switch {
	case errors.Is(err, poll.ErrMaxAttempts):
		return last, fmt.Errorf("%w after %d attempts", ErrTimedOut, h.poll.Attempts())
	case err != nil:
		return last, err
	case last != nil && last.Status == status.SkillFailed:
		return last, fmt.Errorf("%w: %s", ErrFailed, last.Error)
	}
	return last, nil
}
