package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/coursechat/go-rag/internal/vectorstore"
)

type SearchCourseInput struct {
	Query        string `json:"query" jsonschema_description:"What to search for in the course content."`
	CourseName   string `json:"course_name,omitempty" jsonschema_description:"Course title to restrict the search to (partial names match, e.g. 'MCP')."`
	LessonNumber *int   `json:"lesson_number,omitempty" jsonschema_description:"Specific lesson number to search within (e.g. 3)."`
}

var SearchCourseInputSchema = GenerateSchema[SearchCourseInput]()

// CourseSearcher is the retrieval capability the search tool consumes.
type CourseSearcher interface {
	Search(ctx context.Context, query, courseName string, lessonNumber, limit int) ([]vectorstore.Hit, error)
}

// NewSearchTool returns the search_course_content definition. maxResults
// bounds how many chunks one invocation returns; rec receives source
// attribution for the caller to surface after orchestration.
func NewSearchTool(store CourseSearcher, maxResults int, rec SourceRecorder) ToolDefinition {
	return ToolDefinition{
		Name:        "search_course_content",
		Description: "Search course materials with smart course name matching and optional lesson filtering.",
		InputSchema: SearchCourseInputSchema,
		Function: func(ctx context.Context, input json.RawMessage) (string, error) {
			var in SearchCourseInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", err
			}
			if strings.TrimSpace(in.Query) == "" {
				return "", fmt.Errorf("query must not be empty")
			}

			lesson := -1
			if in.LessonNumber != nil {
				lesson = *in.LessonNumber
			}

			hits, err := store.Search(ctx, in.Query, in.CourseName, lesson, maxResults)
			if errors.Is(err, vectorstore.ErrCourseNotFound) {
				// Let the model see the miss instead of failing the round.
				return fmt.Sprintf("No course found matching '%s'", in.CourseName), nil
			}
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return emptySearchMessage(in.CourseName, lesson), nil
			}

			var b strings.Builder
			sources := make([]Source, 0, len(hits))
			for i, h := range hits {
				if i > 0 {
					b.WriteString("\n\n")
				}
				header := h.CourseTitle
				label := h.CourseTitle
				if h.LessonNumber >= 0 {
					header = fmt.Sprintf("%s - Lesson %d", h.CourseTitle, h.LessonNumber)
					label = header
				}
				fmt.Fprintf(&b, "[%s]\n%s", header, h.Content)
				sources = append(sources, Source{Label: label, Link: h.LessonLink})
			}
			if rec != nil {
				rec.RecordSources(sources)
			}
			return b.String(), nil
		},
	}
}

func emptySearchMessage(courseName string, lesson int) string {
	msg := "No relevant content found"
	var scope []string
	if courseName != "" {
		scope = append(scope, fmt.Sprintf("in course '%s'", courseName))
	}
	if lesson >= 0 {
		scope = append(scope, fmt.Sprintf("in lesson %d", lesson))
	}
	if len(scope) > 0 {
		msg += " " + strings.Join(scope, " ")
	}
	return msg + "."
}
