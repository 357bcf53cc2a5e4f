// Package editsession runs LLM-assisted edits against one selected element
// of one open draft. Edits are serialized: while one is awaiting the editor
// every other mutating call is refused rather than queued.
package editsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
)

var (
	ErrEditInFlight    = errors.New("an edit is already in flight")
	ErrNoSelection     = errors.New("no element selected")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrElementNotFound = errors.New("selected element not found in draft")
	ErrSessionClosed   = errors.New("edit session closed")
)

// EditRequest is what the editor receives for one instruction.
type EditRequest struct {
	Selector    string              `json:"selector"`
	Kind        Kind                `json:"kind,omitempty"`
	CurrentHTML string              `json:"current_html"`
	Instruction string              `json:"instruction"`
	ChatHistory []pages.ChatMessage `json:"chat_history"`
}

// DebugInfo is the telemetry of one editor call.
type DebugInfo struct {
	Model        string        `json:"model"`
	Prompt       string        `json:"prompt,omitempty"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Latency      time.Duration `json:"latency"`
	// Diff is a patch of the element's HTML before and after the edit.
	Diff string `json:"diff,omitempty"`
}

// EditResult is the editor's answer. When Rejected is set EditedHTML is
// ignored and Message explains why.
type EditResult struct {
	EditedHTML string    `json:"edited_html,omitempty"`
	Rejected   bool      `json:"rejected,omitempty"`
	Message    string    `json:"message,omitempty"`
	Debug      DebugInfo `json:"debug"`
}

// Editor is the LLM collaborator.
type Editor interface {
	EditElement(ctx context.Context, pageID string, req EditRequest) (*EditResult, error)
}

// State of a session.
type State int

const (
	StateDisabled State = iota
	StateIdle
	StateEditing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	default:
		return "disabled"
	}
}

// Outcome of a successful Submit call.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeRejected
)

func (o Outcome) String() string {
	if o == OutcomeRejected {
		return "rejected"
	}
	return "applied"
}

// Session is one open editor view over a draft.
type Session struct {
	manager *pages.Manager
	editor  Editor
	logger  logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	page     *pages.Page
	sections []pages.Section
	history  pages.ChatHistory
	selected *Element
	matcher  cascadia.Selector
	pending  bool
	// undo is the content before the most recent applied edit; nil when
	// there is nothing to undo. It is independent of the chat history.
	undo   []pages.Section
	dirty  bool
	debug  *DebugInfo
	closed bool
}

// Open loads pageID, which must be a draft, and returns an idle session with
// no selection.
func Open(ctx context.Context, manager *pages.Manager, editor Editor, pageID string, logger logging.Logger) (*Session, error) {
	p, err := manager.OpenDraft(ctx, pageID)
	if err != nil {
		return nil, err
	}
	history := p.EditChatHistory.Clone()
	if history == nil {
		history = make(pages.ChatHistory)
	}
	return &Session{
		manager:  manager,
		editor:   editor,
		logger:   logging.OrNop(logger).With(logging.Field{Key: "component", Value: "editsession"}, logging.Field{Key: "page_id", Value: pageID}),
		now:      time.Now,
		page:     p,
		sections: p.CloneSections(),
		history:  history,
	}, nil
}

// Select makes el the edit target. Refused while an edit is in flight.
func (s *Session) Select(el Element) error {
	m, err := cascadia.Compile(el.Selector)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSelector, el.Selector, err)
	}
	if el.ID == "" {
		el.ID = el.Selector
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.pending {
		return ErrEditInFlight
	}
	if idx, _, sel := locate(s.contents(), m); idx >= 0 {
		if el.Tag == "" {
			el.Tag = goquery.NodeName(sel)
		}
	}
	if el.Kind == "" {
		el.Kind = Classify(el.Tag)
	}
	s.selected = &el
	s.matcher = m
	return nil
}

// Deselect clears the selection, disabling the session.
func (s *Session) Deselect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return ErrEditInFlight
	}
	s.selected = nil
	s.matcher = nil
	return nil
}

// Submit sends instruction to the editor for the selected element.
//
// While another edit is pending it returns ErrEditInFlight immediately and
// records nothing. An accepted edit replaces the element in memory and
// becomes undoable; a rejection is recorded in the chat and changes nothing.
// An editor failure is recorded in the chat as an error entry, leaves the
// content untouched and is returned.
func (s *Session) Submit(ctx context.Context, instruction string) (Outcome, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return 0, ErrSessionClosed
	case s.pending:
		s.mu.Unlock()
		return 0, ErrEditInFlight
	case s.selected == nil:
		s.mu.Unlock()
		return 0, ErrNoSelection
	}
	el := *s.selected
	idx, _, sel := locate(s.contents(), s.matcher)
	if idx < 0 {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrElementNotFound, el.Selector)
	}
	current, err := goquery.OuterHtml(sel)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("render selected element: %w", err)
	}

	req := EditRequest{
		Selector:    el.Selector,
		Kind:        el.Kind,
		CurrentHTML: current,
		Instruction: instruction,
		ChatHistory: append([]pages.ChatMessage(nil), s.history[el.ID]...),
	}
	s.appendLocked(el.ID, pages.ChatMessage{Role: pages.RoleUser, Content: instruction})
	s.pending = true
	pageID := s.page.ID
	s.mu.Unlock()

	start := s.now()
	res, err := s.editor.EditElement(ctx, pageID, req)
	elapsed := s.now().Sub(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	if s.closed {
		return 0, ErrSessionClosed
	}

	if err != nil {
		s.appendLocked(el.ID, pages.ChatMessage{Role: pages.RoleAssistant, Content: err.Error(), IsError: true})
		s.logger.Warn("edit failed", logging.Field{Key: "selector", Value: el.Selector}, logging.Field{Key: "error", Value: err})
		return 0, fmt.Errorf("edit element: %w", err)
	}

	dbg := res.Debug
	if dbg.Latency == 0 {
		dbg.Latency = elapsed
	}

	if res.Rejected {
		msg := res.Message
		if msg == "" {
			msg = "The edit was rejected."
		}
		s.appendLocked(el.ID, pages.ChatMessage{Role: pages.RoleAssistant, Content: msg})
		s.debug = &dbg
		s.logger.Info("edit rejected", logging.Field{Key: "selector", Value: el.Selector})
		return OutcomeRejected, nil
	}

	before := s.cloneSectionsLocked()
	if err := s.replaceLocked(idx, res.EditedHTML); err != nil {
		s.appendLocked(el.ID, pages.ChatMessage{Role: pages.RoleAssistant, Content: err.Error(), IsError: true})
		return 0, err
	}
	s.undo = before
	s.dirty = true
	dbg.Diff = pages.Patch(current, res.EditedHTML)
	s.debug = &dbg

	msg := res.Message
	if msg == "" {
		msg = "Applied the edit."
	}
	s.appendLocked(el.ID, pages.ChatMessage{Role: pages.RoleAssistant, Content: msg})
	s.logger.Info("edit applied",
		logging.Field{Key: "selector", Value: el.Selector},
		logging.Field{Key: "model", Value: dbg.Model},
		logging.Field{Key: "latency_ms", Value: dbg.Latency.Milliseconds()})
	return OutcomeApplied, nil
}

func (s *Session) replaceLocked(idx int, edited string) error {
	f, err := parseFragment(s.sections[idx].Content)
	if err != nil {
		return err
	}
	sel := f.find(s.matcher)
	if sel.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, s.selected.Selector)
	}
	sel.ReplaceWithHtml(edited)
	out, err := f.render()
	if err != nil {
		return err
	}
	s.sections[idx].Content = out
	return nil
}

// Undo restores the content from before the most recent applied edit. Only
// one level is kept; the chat history is not rewound.
func (s *Session) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return ErrEditInFlight
	}
	if s.undo == nil {
		return ErrNothingToUndo
	}
	s.sections = s.undo
	s.undo = nil
	s.dirty = true
	return nil
}

// Save persists the in-memory content and chat history to the draft.
func (s *Session) Save(ctx context.Context) (*pages.Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.pending {
		s.mu.Unlock()
		return nil, ErrEditInFlight
	}
	pageID := s.page.ID
	sections := s.cloneSectionsLocked()
	history := s.history.Clone()
	s.mu.Unlock()

	saved, err := s.manager.SaveDraft(ctx, pageID, sections, history)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = saved
	s.dirty = false
	return saved, nil
}

// Close discards the session. Unsaved content is lost.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.selected = nil
	s.matcher = nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed || s.selected == nil:
		return StateDisabled
	case s.pending:
		return StateEditing
	default:
		return StateIdle
	}
}

// Selected returns the current selection.
func (s *Session) Selected() (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Element{}, false
	}
	return *s.selected, true
}

func (s *Session) Sections() []pages.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneSectionsLocked()
}

// ChatHistory returns the conversation for one element.
func (s *Session) ChatHistory(elementID string) []pages.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pages.ChatMessage(nil), s.history[elementID]...)
}

// Dirty reports unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.undo != nil && !s.pending
}

// LastDebugInfo returns telemetry of the last editor call that returned.
func (s *Session) LastDebugInfo() (DebugInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debug == nil {
		return DebugInfo{}, false
	}
	return *s.debug, true
}

func (s *Session) PageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page.ID
}

func (s *Session) appendLocked(elementID string, msg pages.ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().UTC()
	}
	s.history[elementID] = append(s.history[elementID], msg)
	s.dirty = true
}

func (s *Session) cloneSectionsLocked() []pages.Section {
	return append([]pages.Section(nil), s.sections...)
}

func (s *Session) contents() []string {
	out := make([]string, len(s.sections))
	for i, sec := range s.sections {
		out[i] = sec.Content
	}
	return out
}
