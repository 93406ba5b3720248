// Package provider constructs the Anthropic client the assistant generates
// answers with.
package provider

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// NewAnthropicClient returns a client using API key from the env.
func NewAnthropicClient() *anthropic.Client {
	c := anthropic.NewClient()
	return &c
}

// DefaultModel is used when the configuration names no model.
const DefaultModel = anthropic.ModelClaude3_7SonnetLatest
