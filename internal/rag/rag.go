// Package rag wires the vector store, retrieval tools, session history, and
// the orchestration loop into one query-answering system.
package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"github.com/coursechat/go-rag/internal/config"
	"github.com/coursechat/go-rag/internal/docproc"
	"github.com/coursechat/go-rag/internal/embed"
	"github.com/coursechat/go-rag/internal/generator"
	"github.com/coursechat/go-rag/internal/provider"
	"github.com/coursechat/go-rag/internal/session"
	"github.com/coursechat/go-rag/internal/telemetry"
	"github.com/coursechat/go-rag/internal/vectorstore"
	"github.com/coursechat/go-rag/tools"
)

// Responder is the orchestration capability the system drives per query.
// *generator.Generator implements it.
type Responder interface {
	Respond(ctx context.Context, query, history string, catalog []tools.ToolDefinition, exec generator.Executor) (string, error)
}

// System answers course-material questions with tool-grounded generation.
type System struct {
	Store     *vectorstore.Store
	Generator Responder
	Manager   *tools.Manager
	Sessions  *session.Store

	cfg config.Config
}

// New builds a System from configuration: sqlite-vec store, embedder picked
// from the environment, Anthropic-backed generator, and the retrieval tools.
func New(cfg config.Config) (*System, error) {
	emb := embed.Auto(cfg.EmbedModel, cfg.EmbedDim)
	store, err := vectorstore.Open(cfg.DBPath, emb, cfg.EmbedDim)
	if err != nil {
		return nil, err
	}

	mgr := tools.NewManager()
	tools.RegisterCourseTools(mgr, store, cfg.MaxResults)

	return &System{
		Store:     store,
		Generator: generator.New(provider.NewAnthropicClient(), anthropic.Model(cfg.AnthropicModel)),
		Manager:   mgr,
		Sessions:  session.NewStore(cfg.MaxHistory),
		cfg:       cfg,
	}, nil
}

func (s *System) Close() error {
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

// Answer runs one query through the orchestration loop and returns the answer
// text, the sources the retrieval tools recorded, and the session ID (created
// when the caller supplied none).
func (s *System) Answer(ctx context.Context, query, sessionID string) (string, []tools.Source, string, error) {
	if sessionID == "" {
		sessionID = s.Sessions.Create()
	}
	ctx = telemetry.WithQueryID(ctx, uuid.NewString())

	prompt := fmt.Sprintf("Answer this question about course materials: %s", query)
	history := s.Sessions.History(sessionID)

	answer, err := s.Generator.Respond(ctx, prompt, history, s.Manager.Definitions(), s.Manager)
	if err != nil {
		return "", nil, sessionID, fmt.Errorf("rag: respond: %w", err)
	}

	sources := s.Manager.ConsumeSources()
	s.Sessions.Append(sessionID, query, answer)
	telemetry.EmitQueryFeatures(ctx, query, answer)
	return answer, sources, sessionID, nil
}

// Courses returns the stored course count and titles for the analytics endpoint.
func (s *System) Courses(ctx context.Context) (int, []string, error) {
	titles, err := s.Store.CourseTitles(ctx)
	if err != nil {
		return 0, nil, err
	}
	return len(titles), titles, nil
}

// IngestFolder loads every course document in dir (.txt and .md files,
// non-recursive), skipping courses whose titles are already stored.
// It returns how many new courses and chunks were added.
func (s *System) IngestFolder(ctx context.Context, dir string) (int, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("rag: read docs dir %s: %w", dir, err)
	}

	addedCourses, addedChunks := 0, 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		path := filepath.Join(dir, e.Name())

		course, chunks, err := docproc.ParseCourseFile(path, docproc.Options{
			ChunkSize:    s.cfg.ChunkSize,
			ChunkOverlap: s.cfg.ChunkOverlap,
		})
		if err != nil {
			return addedCourses, addedChunks, err
		}

		exists, err := s.Store.HasCourse(ctx, course.Title)
		if err != nil {
			return addedCourses, addedChunks, err
		}
		if exists {
			continue
		}

		if err := s.Store.AddCourse(ctx, course, chunks); err != nil {
			return addedCourses, addedChunks, err
		}
		addedCourses++
		addedChunks += len(chunks)
		telemetry.Emit("ingest_course", map[string]any{
			"course": course.Title,
			"file":   e.Name(),
			"chunks": len(chunks),
		})
	}
	return addedCourses, addedChunks, nil
}
