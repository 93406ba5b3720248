package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coursechat/go-rag/internal/vectorstore"
)

type CourseOutlineInput struct {
	CourseTitle string `json:"course_title" jsonschema_description:"Course title to fetch the outline for (partial names match)."`
}

var CourseOutlineInputSchema = GenerateSchema[CourseOutlineInput]()

// OutlineSource is the capability the outline tool consumes.
type OutlineSource interface {
	CourseOutline(ctx context.Context, title string) (*vectorstore.Outline, error)
}

// NewOutlineTool returns the get_course_outline definition.
func NewOutlineTool(store OutlineSource, rec SourceRecorder) ToolDefinition {
	return ToolDefinition{
		Name:        "get_course_outline",
		Description: "Get a course's title, link, and complete numbered lesson list.",
		InputSchema: CourseOutlineInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in CourseOutlineInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", err
			}
			if strings.TrimSpace(in.CourseTitle) == "" {
				return "", fmt.Errorf("course_title must not be empty")
			}

			outline, err := store.CourseOutline(ctx, in.CourseTitle)
			if errors.Is(err, vectorstore.ErrCourseNotFound) {
				return fmt.Sprintf("No course found matching '%s'", in.CourseTitle), nil
			}
			if err != nil {
				return "", err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Course: %s\n", outline.Title)
			if outline.Link != "" {
				fmt.Fprintf(&b, "Course Link: %s\n", outline.Link)
			}
			fmt.Fprintf(&b, "Lessons (%d):\n", len(outline.Lessons))
			for _, l := range outline.Lessons {
				fmt.Fprintf(&b, "  %d. %s\n", l.Number, l.Title)
			}
			if rec != nil {
				rec.RecordSources([]Source{{Label: outline.Title, Link: outline.Link}})
			}
			return b.String(), nil
		},
	}
}
