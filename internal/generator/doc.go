// Package generator coordinates message exchange with the Anthropic Messages
// API and dispatches retrieval tool calls across a bounded number of rounds.
//
// Invariants:
//   - every tool_use block is answered by exactly one tool_result block, in
//     the same order, in the user turn that immediately follows.
//   - after the final tool round the request carries no tool catalog, which
//     forces a textual answer.
//
// Flow:
//
//	user(text) -> assistant(tool_use) -> user(tool_result) -> assistant(text)
package generator
