// Package docproc parses course transcript files and slices their content
// into overlapping, sentence-aligned chunks for embedding.
//
// Expected document shape:
//
//	Course Title: <title>
//	Course Link: <url>
//	Course Instructor: <name>
//
//	Lesson 0: Introduction
//	Lesson Link: <url>
//	<lesson content...>
//
//	Lesson 1: ...
package docproc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/coursechat/go-rag/internal/vectorstore"
)

// Options controls chunk sizing. Zero values fall back to the defaults
// (800-character chunks with 100 characters of overlap).
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 100
)

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = defaultChunkOverlap
	}
	return o
}

var lessonMarker = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

// ParseCourseFile reads and parses one course document.
func ParseCourseFile(path string, opts Options) (vectorstore.Course, []vectorstore.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return vectorstore.Course{}, nil, fmt.Errorf("docproc: open %s: %w", path, err)
	}
	defer f.Close()

	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseCourse(fallback, f, opts)
}

// ParseCourse parses a course document from r. fallbackTitle is used when the
// document carries no Course Title header.
func ParseCourse(fallbackTitle string, r io.Reader, opts Options) (vectorstore.Course, []vectorstore.Chunk, error) {
	opts = opts.normalized()

	course := vectorstore.Course{Title: fallbackTitle}
	var chunks []vectorstore.Chunk

	// Current lesson accumulator. Number -1 covers preamble text before the
	// first lesson marker.
	curLesson := -1
	var curContent []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(curContent, "\n"))
		curContent = curContent[:0]
		if text == "" {
			return
		}
		for _, piece := range ChunkText(text, opts.ChunkSize, opts.ChunkOverlap) {
			content := piece
			if curLesson >= 0 {
				content = fmt.Sprintf("%s Lesson %d content: %s", course.Title, curLesson, piece)
			}
			chunks = append(chunks, vectorstore.Chunk{
				Content:      content,
				LessonNumber: curLesson,
				Index:        len(chunks),
			})
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	inHeader := true
	expectLessonLink := false
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if inHeader {
			switch {
			case strings.HasPrefix(trimmed, "Course Title:"):
				if t := strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Title:")); t != "" {
					course.Title = t
				}
				continue
			case strings.HasPrefix(trimmed, "Course Link:"):
				course.Link = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Link:"))
				continue
			case strings.HasPrefix(trimmed, "Course Instructor:"):
				course.Instructor = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Instructor:"))
				continue
			case trimmed == "":
				continue
			}
			inHeader = false
		}

		if m := lessonMarker.FindStringSubmatch(trimmed); m != nil {
			flush()
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return course, nil, fmt.Errorf("docproc: lesson number %q: %w", m[1], err)
			}
			curLesson = n
			course.Lessons = append(course.Lessons, vectorstore.Lesson{Number: n, Title: strings.TrimSpace(m[2])})
			expectLessonLink = true
			continue
		}

		if expectLessonLink && strings.HasPrefix(trimmed, "Lesson Link:") {
			course.Lessons[len(course.Lessons)-1].Link = strings.TrimSpace(strings.TrimPrefix(trimmed, "Lesson Link:"))
			expectLessonLink = false
			continue
		}
		expectLessonLink = false
		curContent = append(curContent, line)
	}
	if err := sc.Err(); err != nil {
		return course, nil, fmt.Errorf("docproc: read: %w", err)
	}
	flush()

	if course.Title == "" {
		return course, nil, fmt.Errorf("docproc: document has no course title")
	}
	return course, chunks, nil
}

// ChunkText splits text into sentence-aligned pieces of at most size
// characters, with roughly overlap characters repeated between consecutive
// pieces. A single sentence longer than size becomes its own piece.
func ChunkText(text string, size, overlap int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(sentences) {
		total := 0
		end := start
		for end < len(sentences) {
			n := len(sentences[end])
			if end > start {
				n++ // joining space
			}
			if total+n > size && end > start {
				break
			}
			total += n
			end++
		}
		out = append(out, strings.Join(sentences[start:end], " "))
		if end >= len(sentences) {
			break
		}

		// Walk back from the cut point until the overlap budget is spent.
		next := end
		kept := 0
		for next > start+1 {
			if kept+len(sentences[next-1]) > overlap {
				break
			}
			kept += len(sentences[next-1]) + 1
			next--
		}
		start = next
	}
	return out
}

// splitSentences normalises whitespace and splits after '.', '!' or '?'
// followed by whitespace.
func splitSentences(text string) []string {
	fields := strings.Fields(text)
	joined := strings.Join(fields, " ")
	if joined == "" {
		return nil
	}

	var sentences []string
	last := 0
	runes := []rune(joined)
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if runes[i+1] == ' ' {
				sentences = append(sentences, strings.TrimSpace(string(runes[last:i+1])))
				last = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(string(runes[last:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
