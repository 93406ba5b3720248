package generator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/coursechat/go-rag/internal/generator"
	"github.com/coursechat/go-rag/internal/provider"
	"github.com/coursechat/go-rag/tools"
)

const fallbackAnswer = "Unable to generate response after tool execution."

// step is one scripted model response: either a 200 body or a transport error.
type step struct {
	body string
	err  error
}

type capture struct {
	method string
	url    string
	body   []byte
}

// scriptedTransport replays one step per request, capturing request bodies.
type scriptedTransport struct {
	script   []step
	captured []capture
}

func (f *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	idx := len(f.captured)
	f.captured = append(f.captured, capture{method: req.Method, url: req.URL.String(), body: b})
	if idx >= len(f.script) {
		return nil, fmt.Errorf("unscripted request %d", idx)
	}
	st := f.script[idx]
	if st.err != nil {
		return nil, st.err
	}
	resp := &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader([]byte(st.body))),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newClient(rt http.RoundTripper) *anthropic.Client {
	c := anthropic.NewClient(
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return &c
}

func newGenerator(script ...step) (*generator.Generator, *scriptedTransport) {
	fake := &scriptedTransport{script: script}
	return generator.New(newClient(fake), provider.DefaultModel), fake
}

// Response body builders.

func textResponse(stopReason, text string) string {
	content := "[]"
	if text != "" {
		content = fmt.Sprintf(`[{"type":"text","text":%q}]`, text)
	}
	return fmt.Sprintf(`{"id":"msg_x","type":"message","role":"assistant","model":"m","stop_reason":%q,"content":%s}`, stopReason, content)
}

func toolUseResponse(blocks ...string) string {
	return fmt.Sprintf(`{"id":"msg_x","type":"message","role":"assistant","model":"m","stop_reason":"tool_use","content":[%s]}`, strings.Join(blocks, ","))
}

func toolUseBlock(id, name, input string) string {
	return fmt.Sprintf(`{"type":"tool_use","id":%q,"name":%q,"input":%s}`, id, name, input)
}

// Request body decoding for assertions.

type reqContentItem struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type reqBody struct {
	System []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string           `json:"role"`
		Content []reqContentItem `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Name string `json:"name"`
	} `json:"tools"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

func decodeRequest(t *testing.T, c capture) reqBody {
	t.Helper()
	var rb reqBody
	if err := json.Unmarshal(c.body, &rb); err != nil {
		t.Fatalf("unmarshal request body: %v\nbody=%s", err, string(c.body))
	}
	return rb
}

// Executor stub.

type execCall struct {
	name  string
	input string
}

type fakeExec struct {
	calls   []execCall
	results map[string]string
	errs    map[string]error
}

func (f *fakeExec) Execute(_ context.Context, name string, input json.RawMessage) (string, error) {
	f.calls = append(f.calls, execCall{name: name, input: string(input)})
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	if out, ok := f.results[name]; ok {
		return out, nil
	}
	return "ok", nil
}

func testCatalog() []tools.ToolDefinition {
	type searchInput struct {
		Query string `json:"query" jsonschema_description:"What to search for."`
	}
	return []tools.ToolDefinition{{
		Name:        "search_course_content",
		Description: "Search course materials.",
		InputSchema: tools.GenerateSchema[searchInput](),
	}}
}

func TestRespond_DirectAnswer_SingleRequest(t *testing.T) {
	g, fake := newGenerator(step{body: textResponse("end_turn", "Paris is the capital of France.")})
	exec := &fakeExec{}

	got, err := g.Respond(context.Background(), "capital of France?", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "Paris is the capital of France." {
		t.Fatalf("answer not returned verbatim: %q", got)
	}
	if len(fake.captured) != 1 {
		t.Fatalf("expected exactly 1 model request, got %d", len(fake.captured))
	}
	if len(exec.calls) != 0 {
		t.Fatalf("executor should not be invoked, got %d calls", len(exec.calls))
	}

	rb := decodeRequest(t, fake.captured[0])
	if len(rb.Tools) != 1 || rb.Tools[0].Name != "search_course_content" {
		t.Fatalf("first request should carry the tool catalog, got %+v", rb.Tools)
	}
	if rb.Temperature == nil || *rb.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", rb.Temperature)
	}
	if rb.MaxTokens != 800 {
		t.Fatalf("expected max_tokens 800, got %d", rb.MaxTokens)
	}
}

func TestRespond_NoCatalog_NoToolsInRequest(t *testing.T) {
	g, fake := newGenerator(step{body: textResponse("end_turn", "hi")})

	got, err := g.Respond(context.Background(), "hello", "", nil, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "hi" {
		t.Fatalf("unexpected answer %q", got)
	}
	rb := decodeRequest(t, fake.captured[0])
	if len(rb.Tools) != 0 {
		t.Fatalf("expected no tools in request, got %+v", rb.Tools)
	}
}

func TestRespond_EmptyCatalog_BehavesLikeNone(t *testing.T) {
	g, fake := newGenerator(step{body: textResponse("end_turn", "hi")})

	got, err := g.Respond(context.Background(), "hello", "", []tools.ToolDefinition{}, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "hi" {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(fake.captured) != 1 {
		t.Fatalf("expected 1 request, got %d", len(fake.captured))
	}
	rb := decodeRequest(t, fake.captured[0])
	if len(rb.Tools) != 0 {
		t.Fatalf("expected no tools in request, got %+v", rb.Tools)
	}
}

func TestRespond_OneToolRound(t *testing.T) {
	g, fake := newGenerator(
		step{body: toolUseResponse(toolUseBlock("tu_1", "search_course_content", `{"query":"embeddings"}`))},
		step{body: textResponse("end_turn", "grounded answer")},
	)
	exec := &fakeExec{results: map[string]string{"search_course_content": "[Course A - Lesson 1]\nchunk"}}

	got, err := g.Respond(context.Background(), "what are embeddings?", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "grounded answer" {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(fake.captured) != 2 {
		t.Fatalf("expected 2 model requests, got %d", len(fake.captured))
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected 1 tool execution, got %d", len(exec.calls))
	}
	if exec.calls[0].name != "search_course_content" || exec.calls[0].input != `{"query":"embeddings"}` {
		t.Fatalf("unexpected tool call: %+v", exec.calls[0])
	}

	rb := decodeRequest(t, fake.captured[1])
	if len(rb.Messages) != 3 {
		t.Fatalf("second request should carry 3 messages, got %d", len(rb.Messages))
	}
	if rb.Messages[0].Role != "user" || rb.Messages[1].Role != "assistant" || rb.Messages[2].Role != "user" {
		t.Fatalf("unexpected roles: %s/%s/%s", rb.Messages[0].Role, rb.Messages[1].Role, rb.Messages[2].Role)
	}
	if rb.Messages[1].Content[0].Type != "tool_use" || rb.Messages[1].Content[0].ID != "tu_1" {
		t.Fatalf("assistant turn not preserved verbatim: %+v", rb.Messages[1].Content)
	}
	tr := rb.Messages[2].Content[0]
	if tr.Type != "tool_result" || tr.ToolUseID != "tu_1" || tr.IsError {
		t.Fatalf("unexpected tool_result: %+v", tr)
	}
	if !strings.Contains(string(tr.Content), "chunk") {
		t.Fatalf("tool_result content missing tool output: %s", string(tr.Content))
	}
	// One round used of two: the catalog stays available.
	if len(rb.Tools) != 1 {
		t.Fatalf("second request should still carry the catalog, got %+v", rb.Tools)
	}
}

func TestRespond_MaxRounds_FinalRequestOmitsCatalog(t *testing.T) {
	g, fake := newGenerator(
		step{body: toolUseResponse(toolUseBlock("tu_1", "search_course_content", `{"query":"a"}`))},
		step{body: toolUseResponse(toolUseBlock("tu_2", "search_course_content", `{"query":"b"}`))},
		step{body: textResponse("end_turn", "final")},
	)
	exec := &fakeExec{}

	got, err := g.Respond(context.Background(), "multi-step question", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "final" {
		t.Fatalf("unexpected answer %q", got)
	}
	if len(fake.captured) != 3 {
		t.Fatalf("expected 3 model requests, got %d", len(fake.captured))
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected 2 tool executions, got %d", len(exec.calls))
	}

	third := decodeRequest(t, fake.captured[2])
	if len(third.Tools) != 0 {
		t.Fatalf("final request must omit the tool catalog, got %+v", third.Tools)
	}
	// user, assistant, user, assistant, user
	if len(third.Messages) != 5 {
		t.Fatalf("expected 5 messages before the final request, got %d", len(third.Messages))
	}
}

func TestRespond_ToolFailure_DegradesToDiagnosticResult(t *testing.T) {
	g, fake := newGenerator(
		step{body: toolUseResponse(toolUseBlock("tu_1", "search_course_content", `{"query":"x"}`))},
		step{body: textResponse("end_turn", "answered despite failure")},
	)
	exec := &fakeExec{errs: map[string]error{"search_course_content": errors.New("index unavailable")}}

	got, err := g.Respond(context.Background(), "q", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("tool failure must not propagate: %v", err)
	}
	if got != "answered despite failure" {
		t.Fatalf("unexpected answer %q", got)
	}

	rb := decodeRequest(t, fake.captured[1])
	tr := rb.Messages[2].Content[0]
	if tr.Type != "tool_result" || !tr.IsError {
		t.Fatalf("expected error tool_result, got %+v", tr)
	}
	if !strings.Contains(string(tr.Content), "Tool execution failed") ||
		!strings.Contains(string(tr.Content), "index unavailable") {
		t.Fatalf("diagnostic missing original error: %s", string(tr.Content))
	}
}

func TestRespond_UnknownTool_DegradesToDiagnosticResult(t *testing.T) {
	g, fake := newGenerator(
		step{body: toolUseResponse(toolUseBlock("tu_1", "no_such_tool", `{}`))},
		step{body: textResponse("end_turn", "done")},
	)
	mgr := tools.NewManager() // nothing registered: lookup fails

	got, err := g.Respond(context.Background(), "q", "", testCatalog(), mgr)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "done" {
		t.Fatalf("unexpected answer %q", got)
	}
	rb := decodeRequest(t, fake.captured[1])
	tr := rb.Messages[2].Content[0]
	if !tr.IsError || !strings.Contains(string(tr.Content), "not found") {
		t.Fatalf("expected lookup-failure diagnostic, got %+v", tr)
	}
}

func TestRespond_TransportFailureOnFollowUp_NamesRound(t *testing.T) {
	g, fake := newGenerator(
		step{body: toolUseResponse(toolUseBlock("tu_1", "search_course_content", `{"query":"x"}`))},
		step{err: errors.New("connection reset")},
	)
	exec := &fakeExec{}

	got, err := g.Respond(context.Background(), "q", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("follow-up transport failure is reported in the answer, not as an error: %v", err)
	}
	if !strings.Contains(got, "Error during tool execution round 1") {
		t.Fatalf("diagnostic should name the failing round: %q", got)
	}
	if !strings.Contains(got, "connection reset") {
		t.Fatalf("diagnostic should include the underlying error: %q", got)
	}
	if len(fake.captured) != 2 {
		t.Fatalf("no further requests after a transport failure; got %d", len(fake.captured))
	}
}

func TestRespond_TransportFailureOnFirstRequest_PropagatesError(t *testing.T) {
	g, fake := newGenerator(step{err: errors.New("dial tcp: refused")})

	got, err := g.Respond(context.Background(), "q", "", nil, nil)
	if err == nil {
		t.Fatal("expected error from first-request failure")
	}
	if got != "" {
		t.Fatalf("expected empty answer, got %q", got)
	}
	if len(fake.captured) != 1 {
		t.Fatalf("expected a single attempted request, got %d", len(fake.captured))
	}
}

func TestRespond_HistoryAppearsInEverySystemContext(t *testing.T) {
	g, fake := newGenerator(
		step{body: toolUseResponse(toolUseBlock("tu_1", "search_course_content", `{"query":"x"}`))},
		step{body: textResponse("end_turn", "ok")},
	)
	exec := &fakeExec{}
	history := "User: what is RAG?\nAssistant: retrieval-augmented generation."

	if _, err := g.Respond(context.Background(), "q", history, testCatalog(), exec); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for i, c := range fake.captured {
		rb := decodeRequest(t, c)
		if len(rb.System) == 0 {
			t.Fatalf("request %d has no system context", i)
		}
		sys := rb.System[0].Text
		if !strings.Contains(sys, "Previous conversation:") || !strings.Contains(sys, history) {
			t.Fatalf("request %d system context missing history:\n%s", i, sys)
		}
	}
}

func TestRespond_Idempotent(t *testing.T) {
	run := func() (string, int, int) {
		g, fake := newGenerator(
			step{body: toolUseResponse(toolUseBlock("tu_1", "search_course_content", `{"query":"x"}`))},
			step{body: textResponse("end_turn", "stable answer")},
		)
		exec := &fakeExec{results: map[string]string{"search_course_content": "chunk"}}
		got, err := g.Respond(context.Background(), "q", "", testCatalog(), exec)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		return got, len(fake.captured), len(exec.calls)
	}

	a1, req1, exec1 := run()
	a2, req2, exec2 := run()
	if a1 != a2 || req1 != req2 || exec1 != exec2 {
		t.Fatalf("calls not idempotent: (%q,%d,%d) vs (%q,%d,%d)", a1, req1, exec1, a2, req2, exec2)
	}
}

func TestRespond_ToolUseStopWithoutBlocks_TreatedAsEnded(t *testing.T) {
	g, fake := newGenerator(step{body: textResponse("tool_use", "partial thought")})
	exec := &fakeExec{}

	got, err := g.Respond(context.Background(), "q", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "partial thought" {
		t.Fatalf("expected the turn's text, got %q", got)
	}
	if len(fake.captured) != 1 {
		t.Fatalf("malformed turn must not trigger another request; got %d", len(fake.captured))
	}
	if len(exec.calls) != 0 {
		t.Fatalf("no tools should run for a blockless turn, got %d", len(exec.calls))
	}
}

func TestRespond_ToolUseStopWithoutBlocksOrText_Fallback(t *testing.T) {
	g, _ := newGenerator(step{body: textResponse("tool_use", "")})
	exec := &fakeExec{}

	got, err := g.Respond(context.Background(), "q", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != fallbackAnswer {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestRespond_EmptyFinalContent_Fallback(t *testing.T) {
	g, _ := newGenerator(
		step{body: toolUseResponse(toolUseBlock("tu_1", "search_course_content", `{"query":"x"}`))},
		step{body: textResponse("end_turn", "")},
	)
	exec := &fakeExec{}

	got, err := g.Respond(context.Background(), "q", "", testCatalog(), exec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != fallbackAnswer {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestRespond_ToolResultOrderMatchesToolUseOrder(t *testing.T) {
	g, fake := newGenerator(
		step{body: toolUseResponse(
			toolUseBlock("tu_1", "get_course_outline", `{"course_title":"MCP"}`),
			toolUseBlock("tu_2", "search_course_content", `{"query":"x"}`),
		)},
		step{body: textResponse("end_turn", "ok")},
	)
	exec := &fakeExec{}

	if _, err := g.Respond(context.Background(), "q", "", testCatalog(), exec); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(exec.calls) != 2 || exec.calls[0].name != "get_course_outline" || exec.calls[1].name != "search_course_content" {
		t.Fatalf("tools must run in request order, got %+v", exec.calls)
	}

	rb := decodeRequest(t, fake.captured[1])
	results := rb.Messages[2].Content
	if len(results) != 2 || results[0].ToolUseID != "tu_1" || results[1].ToolUseID != "tu_2" {
		t.Fatalf("tool_result order must match tool_use order, got %+v", results)
	}
}
