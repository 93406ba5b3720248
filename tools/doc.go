// Package tools defines tool contracts and the retrieval tools offered to
// the model.
//
// Includes:
//   - ToolDefinition: name, description, JSON input schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Manager: name -> handler dispatch plus the source side channel.
//   - Course tools: search_course_content, get_course_outline.
//   - Invariants: handler output passes through untransformed; unknown names
//     fail lookup rather than panic.
package tools
