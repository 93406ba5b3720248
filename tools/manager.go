package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Source identifies where a retrieved result came from, for end-user
// attribution alongside the final answer.
type Source struct {
	Label string `json:"label"`
	Link  string `json:"link,omitempty"`
}

// SourceRecorder receives source-attribution metadata from retrieval handlers.
// *Manager implements it.
type SourceRecorder interface {
	RecordSources(srcs []Source)
}

// Manager maps tool names to handlers and carries the source side channel.
//
// Registration is explicit and happens before any Execute call; Execute and
// source recording may afterwards race across queries sharing one Manager,
// so the side channel is mutex-guarded. Sources belong to the most recent
// recording handler and are cleared on ConsumeSources.
type Manager struct {
	defs  map[string]ToolDefinition
	order []string

	mu      sync.Mutex
	sources []Source
}

func NewManager(defs ...ToolDefinition) *Manager {
	m := &Manager{defs: make(map[string]ToolDefinition, len(defs))}
	for _, d := range defs {
		m.Register(d)
	}
	return m
}

// Register adds a tool definition, replacing any previous one with the same name.
func (m *Manager) Register(def ToolDefinition) {
	if _, seen := m.defs[def.Name]; !seen {
		m.order = append(m.order, def.Name)
	}
	m.defs[def.Name] = def
}

// Definitions returns the registered tool catalog in registration order.
func (m *Manager) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.defs[name])
	}
	return out
}

// Execute dispatches one tool invocation by name. An unknown name is a lookup
// error; the orchestration loop converts it into a diagnostic tool_result.
// Handler output is passed through untransformed.
func (m *Manager) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	def, ok := m.defs[name]
	if !ok {
		return "", fmt.Errorf("tool %q not found", name)
	}
	return def.Function(ctx, input)
}

// RecordSources overwrites the side channel with the given sources.
func (m *Manager) RecordSources(srcs []Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = srcs
}

// ConsumeSources returns the most recently recorded sources and clears them.
func (m *Manager) ConsumeSources() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sources
	m.sources = nil
	return s
}
