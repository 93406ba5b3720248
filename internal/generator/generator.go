package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/coursechat/go-rag/internal/telemetry"
	"github.com/coursechat/go-rag/tools"
)

// systemPrompt is the instruction preamble sent with every request. Prior
// conversation history, when present, is appended under a labelled section;
// the combined text is constant for the duration of one Respond call.
const systemPrompt = `You are an AI assistant specialized in course materials and educational content, with search tools for course information.

Tool usage:
- Course outline or structure questions: use get_course_outline, then report the course title, course link, and the full numbered lesson list.
- Content-specific questions: use search_course_content for detailed lesson material.
- You may use up to 2 tools in sequence when the first result shows more information is needed.
- If a tool yields no results, say so clearly without offering alternatives.
- General knowledge questions: answer from existing knowledge without tools.

All responses must be brief, educational, clear, and example-supported when
examples aid understanding. Provide only the direct answer to what was asked,
with no meta-commentary about tools or search results.`

const (
	// maxToolRounds bounds how many model rounds may request tool use.
	maxToolRounds = 2

	maxAnswerTokens = 800

	noAnswerFallback = "Unable to generate response after tool execution."
)

// Executor runs one tool invocation. Implementations must be safe to call
// synchronously once per tool_use block.
type Executor interface {
	Execute(ctx context.Context, name string, input json.RawMessage) (string, error)
}

// Generator drives the bounded tool-orchestration loop against the Messages
// API. It holds no per-query state; each Respond call builds its own
// conversation and round counter.
type Generator struct {
	client *anthropic.Client
	model  anthropic.Model
}

func New(client *anthropic.Client, model anthropic.Model) *Generator {
	return &Generator{client: client, model: model}
}

func catalogParams(catalog []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: t.InputSchema,
		}})
	}
	return out
}

// Respond answers query, optionally grounding it through tool use.
//
// history, when non-empty, is appended to the system context of every request
// in this call. catalog and exec should be supplied together: a catalog
// without an executor leaves tool requests unanswerable.
//
// A transport failure on the first request is returned as an error. A
// transport failure on any follow-up request terminates the loop and is
// reported in the returned answer text, naming the failing round. Tool
// execution failures never abort the loop; the model sees them as diagnostic
// tool results.
func (g *Generator) Respond(ctx context.Context, query, history string, catalog []tools.ToolDefinition, exec Executor) (string, error) {
	system := systemPrompt
	if history != "" {
		system = systemPrompt + "\n\nPrevious conversation:\n" + history
	}

	conv := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(query))}
	toolParams := catalogParams(catalog)

	msg, err := g.request(ctx, system, conv, toolParams, 0)
	if err != nil {
		return "", err
	}

	if msg.StopReason != anthropic.StopReasonToolUse || exec == nil {
		return textContent(msg), nil
	}

	rounds := 0
	for rounds < maxToolRounds && msg.StopReason == anthropic.StopReasonToolUse {
		rounds++
		conv = append(conv, msg.ToParam())

		results := g.runTools(ctx, msg, exec)
		if len(results) == 0 {
			// Tool-use stop with no tool_use blocks: treat as ended rather
			// than sending a dangling assistant turn back to the model.
			return textContent(msg), nil
		}
		conv = append(conv, anthropic.NewUserMessage(results...))

		// The catalog is withheld once the round bound is reached, forcing a
		// textual answer.
		nextTools := toolParams
		if rounds >= maxToolRounds {
			nextTools = nil
		}
		msg, err = g.request(ctx, system, conv, nextTools, rounds)
		if err != nil {
			return fmt.Sprintf("Error during tool execution round %d: %v", rounds, err), nil
		}
	}

	return textContent(msg), nil
}

func (g *Generator) request(ctx context.Context, system string, conv []anthropic.MessageParam, toolParams []anthropic.ToolUnionParam, round int) (*anthropic.Message, error) {
	params := anthropic.MessageNewParams{
		Model:       g.model,
		MaxTokens:   int64(maxAnswerTokens),
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages:    conv,
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	queryID, _ := telemetry.QueryIDFromContext(ctx)
	start := time.Now()
	msg, err := g.client.Messages.New(ctx, params)
	fields := map[string]any{
		"query_id":    queryID,
		"round":       round,
		"messages":    len(conv),
		"tools_sent":  len(toolParams),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	} else {
		fields["stop_reason"] = string(msg.StopReason)
	}
	telemetry.Emit("model_round", fields)
	return msg, err
}

// runTools executes each tool_use block in msg, in order, and returns one
// tool_result block per tool_use block. A failed execution yields a
// diagnostic result instead of aborting the round.
func (g *Generator) runTools(ctx context.Context, msg *anthropic.Message, exec Executor) []anthropic.ContentBlockParamUnion {
	queryID, _ := telemetry.QueryIDFromContext(ctx)

	var results []anthropic.ContentBlockParamUnion
	for _, block := range msg.Content {
		tu, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		input := json.RawMessage(tu.JSON.Input.Raw())

		start := time.Now()
		out, err := exec.Execute(ctx, tu.Name, input)
		fields := map[string]any{
			"query_id":    queryID,
			"tool_name":   tu.Name,
			"input_size":  len(input),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			fields["error"] = "tool error"
			telemetry.Emit("tool_exec", fields)
			results = append(results, anthropic.NewToolResultBlock(tu.ID, fmt.Sprintf("Tool execution failed: %v", err), true))
			continue
		}
		fields["output_size"] = len(out)
		telemetry.Emit("tool_exec", fields)
		results = append(results, anthropic.NewToolResultBlock(tu.ID, out, false))
	}
	return results
}

// textContent returns the first text block of msg, or the fixed fallback when
// the response carries no text at all.
func textContent(msg *anthropic.Message) string {
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok && tb.Text != "" {
			return tb.Text
		}
	}
	return noAnswerFallback
}
