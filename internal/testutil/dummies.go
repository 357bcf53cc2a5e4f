// Package testutil provides shared test doubles for use across package tests.
// Each double implements the corresponding interface from the production
// code so it can be injected without real I/O.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func NewDummyLogger() *DummyLogger { return &DummyLogger{} }

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// Contains reports whether any recorded message contains substr.
func (l *DummyLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, list := range [][]string{l.Debugs, l.Infos, l.Warns, l.Errors} {
		for _, m := range list {
			if strings.Contains(m, substr) {
				return true
			}
		}
	}
	return false
}

// ─── Pipeline backend ──────────────────────────────────────────────────

// FakePipelineBackend reports a scripted sequence of statuses. Each fetch
// consumes the next entry; once exhausted the last entry repeats.
type FakePipelineBackend struct {
	mu        sync.Mutex
	Project   pipeline.ProjectState
	Statuses  []status.ProjectStatus
	FetchErrs []error // consumed before Statuses, one per fetch; nil entries pass

	SaveErr    error
	TriggerErr error
	// TriggerGate, when set, blocks TriggerPipelineStart until closed.
	TriggerGate chan struct{}

	Fetches  int
	Saves    []pipeline.Config
	Triggers int
	// Triggered is closed on the first TriggerPipelineStart call.
	Triggered chan struct{}
}

func NewFakePipelineBackend(projectID string, initial status.ProjectStatus) *FakePipelineBackend {
	return &FakePipelineBackend{
		Project:   pipeline.ProjectState{ID: projectID, GeneratedHostname: projectID + ".sites.test", Status: initial},
		Triggered: make(chan struct{}),
	}
}

func (f *FakePipelineBackend) FetchProjectStatus(ctx context.Context, projectID string) (*pipeline.ProjectState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if len(f.FetchErrs) > 0 {
		err := f.FetchErrs[0]
		f.FetchErrs = f.FetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.Statuses) > 0 {
		f.Project.Status = f.Statuses[0]
		if len(f.Statuses) > 1 {
			f.Statuses = f.Statuses[1:]
		}
	}
	cp := f.Project
	return &cp, nil
}

func (f *FakePipelineBackend) SaveConfiguration(ctx context.Context, projectID string, cfg pipeline.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.Saves = append(f.Saves, cfg)
	saved := cfg
	f.Project.Config = &saved
	return nil
}

func (f *FakePipelineBackend) TriggerPipelineStart(ctx context.Context, projectID string, cfg pipeline.Config) error {
	f.mu.Lock()
	f.Triggers++
	if f.Triggers == 1 && f.Triggered != nil {
		close(f.Triggered)
	}
	gate := f.TriggerGate
	err := f.TriggerErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// FetchCount returns the number of FetchProjectStatus calls.
func (f *FakePipelineBackend) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fetches
}

func (f *FakePipelineBackend) TriggerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Triggers
}

// FakeTemplates implements pipeline.TemplateSource from a map.
type FakeTemplates map[string][]pipeline.TemplatePage

func (t FakeTemplates) TemplatePages(_ context.Context, templateID string) ([]pipeline.TemplatePage, error) {
	tp, ok := t[templateID]
	if !ok {
		return nil, pipeline.ErrNoTemplate
	}
	return tp, nil
}

// ─── Editor ────────────────────────────────────────────────────────────

// FakeEditor answers edits with Respond. When Gate is set each call blocks
// until a value is received on it.
type FakeEditor struct {
	mu       sync.Mutex
	Respond  func(req editsession.EditRequest) (*editsession.EditResult, error)
	Gate     chan struct{}
	Requests []editsession.EditRequest
	// Started receives once per call, before blocking on Gate.
	Started chan struct{}
}

func (e *FakeEditor) EditElement(ctx context.Context, pageID string, req editsession.EditRequest) (*editsession.EditResult, error) {
	e.mu.Lock()
	e.Requests = append(e.Requests, req)
	respond := e.Respond
	gate := e.Gate
	started := e.Started
	e.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if respond == nil {
		return &editsession.EditResult{EditedHTML: req.CurrentHTML, Debug: editsession.DebugInfo{Model: "fake"}}, nil
	}
	return respond(req)
}

func (e *FakeEditor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Requests)
}

// ─── Skills backend ────────────────────────────────────────────────────

// FakeSkillBackend reports generating for ReadyAfter fetches, then Final.
type FakeSkillBackend struct {
	mu         sync.Mutex
	ReadyAfter int
	Final      status.SkillStatus
	Artifact   string
	StartErr   error
	Fetches    int
	Started    []string
}

func (b *FakeSkillBackend) StartSkillGeneration(ctx context.Context, resourceID, prompt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.StartErr != nil {
		return b.StartErr
	}
	b.Started = append(b.Started, resourceID)
	return nil
}

func (b *FakeSkillBackend) FetchSkillStatus(ctx context.Context, resourceID string) (*skills.Skill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Fetches++
	if b.Fetches <= b.ReadyAfter || b.Final == "" {
		return &skills.Skill{ResourceID: resourceID, Status: status.SkillGenerating}, nil
	}
	sk := &skills.Skill{ResourceID: resourceID, Status: b.Final}
	if b.Final == status.SkillReady {
		sk.Artifact = b.Artifact
	} else {
		sk.Error = "generation failed"
	}
	return sk, nil
}

func (b *FakeSkillBackend) FetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Fetches
}

// ─── Errors ────────────────────────────────────────────────────────────

// ErrRemote is a generic transient failure for fakes.
var ErrRemote = errors.New("remote unavailable")

// RemoteErr returns a distinct transient failure.
func RemoteErr(n int) error { return fmt.Errorf("%w (#%d)", ErrRemote, n) }
