package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/poll"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

// Controller owns the view of one project. It is safe for concurrent use.
//
// Subscribers are called synchronously, in transition order, on the
// goroutine that caused the transition. They may read the controller and
// may call Close but must not call Select or StartPipeline.
type Controller struct {
	backend   Backend
	templates TemplateSource
	projectID string
	opts      Options
	logger    logging.Logger

	// notifyMu serializes apply+deliver so subscribers see transitions in order.
	notifyMu sync.Mutex

	mu         sync.Mutex
	state      status.Observed
	project    *ProjectState
	history    []status.Observed
	subs       map[int]func(status.Observed)
	nextSub    int
	handle     *poll.Handle
	selecting  bool
	triggerErr error
	closed     bool
}

func New(backend Backend, templates TemplateSource, projectID string, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		backend:   backend,
		templates: templates,
		projectID: projectID,
		opts:      opts,
		logger: opts.Logger.With(
			logging.Field{Key: "component", Value: "pipeline"},
			logging.Field{Key: "project_id", Value: projectID}),
		state: status.ConfirmedStatus(status.Created),
		subs:  make(map[int]func(status.Observed)),
	}
}

// Load reads the project's current remote state. It does not start polling.
func (c *Controller) Load(ctx context.Context) error {
	ps, err := c.backend.FetchProjectStatus(ctx, c.projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", c.projectID, err)
	}
	if !ps.Status.Valid() {
		return fmt.Errorf("load project %s: unknown status %q", c.projectID, ps.Status)
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.project = ps
	obs := status.ConfirmedStatus(ps.Status)
	changed := obs != c.state
	if changed {
		c.state = obs
		c.history = append(c.history, obs)
	}
	subs := c.subscribers()
	c.mu.Unlock()

	if changed {
		deliver(subs, obs)
	}
	return nil
}

// Mount starts polling when the current status has remote progress to
// observe. Calling it again while a poll is running does nothing.
func (c *Controller) Mount() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state.Status.NeedsPolling() {
		c.startPollingLocked()
	}
	return nil
}

// Close stops polling. Further transitions are rejected. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.handle
	c.handle = nil
	c.mu.Unlock()

	h.Cancel()
	c.logger.Debug("controller closed")
}

// Select records the user's place and configuration and starts the pipeline.
//
// Guards run first: the project must be CREATED and the template must exist
// with at least one page. The configuration is then persisted; a failure
// there is returned and nothing changes locally. On success the status moves
// to GBP_SELECTED immediately as a local observation, the start trigger is
// sent in the background and polling begins. A failed trigger is logged and
// kept in LastTriggerError; it never rolls the local status back.
func (c *Controller) Select(ctx context.Context, place Place, cfg Config) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.selecting || c.state.Status != status.Created:
		cur := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: select from %s", ErrInvalidTransition, cur)
	}
	c.selecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.selecting = false
		c.mu.Unlock()
	}()

	cfg.PlaceID = place.ID
	if place.WebsiteURL != "" {
		cfg.WebsiteURL = place.WebsiteURL
	}
	if err := c.checkTemplate(ctx, cfg.TemplateID); err != nil {
		return err
	}
	if err := c.backend.SaveConfiguration(ctx, c.projectID, cfg); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}

	c.notifyMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.notifyMu.Unlock()
		return ErrClosed
	}
	obs := status.LocalStatus(status.GBPSelected)
	c.state = obs
	c.history = append(c.history, obs)
	if c.project != nil {
		saved := cfg
		c.project.Config = &saved
	}
	c.triggerErr = nil
	c.startPollingLocked()
	subs := c.subscribers()
	c.mu.Unlock()
	deliver(subs, obs)
	c.notifyMu.Unlock()

	c.logger.Info("place selected, pipeline starting",
		logging.Field{Key: "place_id", Value: cfg.PlaceID},
		logging.Field{Key: "template_id", Value: cfg.TemplateID})

	go c.trigger(context.WithoutCancel(ctx), cfg)
	return nil
}

// StartPipeline re-sends the start trigger for a project that has already
// been configured, synchronously. The backend must treat repeats as no-ops.
func (c *Controller) StartPipeline(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	cur := c.state.Status
	var cfg Config
	if c.project != nil && c.project.Config != nil {
		cfg = *c.project.Config
	}
	c.mu.Unlock()

	if cur == status.Created || cur == status.Ready {
		return fmt.Errorf("%w: start pipeline from %s", ErrInvalidTransition, cur)
	}
	err := c.backend.TriggerPipelineStart(ctx, c.projectID, cfg)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.triggerErr = err
	if err != nil {
		return fmt.Errorf("trigger pipeline: %w", err)
	}
	if !c.closed && c.state.Status.NeedsPolling() {
		c.startPollingLocked()
	}
	return nil
}

func (c *Controller) checkTemplate(ctx context.Context, templateID string) error {
	if templateID == "" {
		return ErrNoTemplate
	}
	tp, err := c.templates.TemplatePages(ctx, templateID)
	if errors.Is(err, ErrNoTemplate) {
		return fmt.Errorf("%w: %s", ErrNoTemplate, templateID)
	}
	if err != nil {
		return fmt.Errorf("load template %s: %w", templateID, err)
	}
	if len(tp) == 0 {
		return fmt.Errorf("%w: %s", ErrNoTemplatePages, templateID)
	}
	return nil
}

func (c *Controller) trigger(ctx context.Context, cfg Config) {
	err := c.backend.TriggerPipelineStart(ctx, c.projectID, cfg)
	if err != nil {
		c.logger.Warn("pipeline trigger failed, relying on polling to reconcile", logging.Field{Key: "error", Value: err})
	}
	c.mu.Lock()
	c.triggerErr = err
	c.mu.Unlock()
}

// startPollingLocked must be called with c.mu held.
func (c *Controller) startPollingLocked() {
	if c.handle != nil {
		select {
		case <-c.handle.Done():
		default:
			return
		}
	}
	c.handle = poll.Start(context.Background(),
		func(ctx context.Context) (*ProjectState, error) {
			return c.backend.FetchProjectStatus(ctx, c.projectID)
		},
		func(ps *ProjectState) bool { return ps.Status.IsTerminal() },
		c.observe,
		c.opts.PollInterval,
		poll.WithLogger(c.logger),
		poll.WithName("project-status"),
	)
}

// observe applies one poll result.
func (c *Controller) observe(ps *ProjectState) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	cur := c.state
	if !ps.Status.Valid() {
		c.mu.Unlock()
		c.logger.Warn("ignoring unknown remote status", logging.Field{Key: "status", Value: string(ps.Status)})
		return
	}
	if ps.Status.Before(cur.Status) {
		c.mu.Unlock()
		c.logger.Warn("ignoring status regression",
			logging.Field{Key: "current", Value: cur.String()},
			logging.Field{Key: "observed", Value: string(ps.Status)})
		return
	}
	c.project = ps
	obs := status.ConfirmedStatus(ps.Status)
	if obs == cur {
		c.mu.Unlock()
		return
	}
	c.state = obs
	c.history = append(c.history, obs)
	subs := c.subscribers()
	c.mu.Unlock()

	c.logger.Info("status changed",
		logging.Field{Key: "from", Value: cur.String()},
		logging.Field{Key: "to", Value: obs.String()})
	deliver(subs, obs)
}

func (c *Controller) subscribers() []func(status.Observed) {
	ids := make([]int, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(status.Observed), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subs[id])
	}
	return out
}

func deliver(subs []func(status.Observed), obs status.Observed) {
	for _, fn := range subs {
		fn(obs)
	}
}

// Subscribe registers fn for every state change. The returned func removes it.
func (c *Controller) Subscribe(fn func(status.Observed)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// State returns the current observed status.
func (c *Controller) State() status.Observed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Project returns a copy of the last project state read from the backend,
// or nil before Load.
func (c *Controller) Project() *ProjectState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project == nil {
		return nil
	}
	cp := *c.project
	return &cp
}

// History lists every state change in order, excluding the initial state.
func (c *Controller) History() []status.Observed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]status.Observed(nil), c.history...)
}

// LastTriggerError is the result of the most recent start trigger, nil when
// it succeeded or has not completed.
func (c *Controller) LastTriggerError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggerErr
}

// Polling reports whether a poll loop is currently running.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()
	if h == nil {
		return false
	}
	select {
	case <-h.Done():
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current poll loop exits, or nil
// when none was started.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil
	}
	return c.handle.Done()
}
