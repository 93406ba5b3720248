// Package vectorstore persists course metadata and content chunks in SQLite
// and answers semantic search via sqlite-vec virtual tables.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coursechat/go-rag/internal/embed"
)

// ErrCourseNotFound is returned when a course name resolves to nothing.
var ErrCourseNotFound = errors.New("course not found")

type Lesson struct {
	Number int
	Title  string
	Link   string
}

type Course struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []Lesson
}

// Chunk is one embeddable slice of course content. LessonNumber is -1 for
// content preceding the first lesson marker.
type Chunk struct {
	Content      string
	LessonNumber int
	Index        int
}

// Hit is one search result with the metadata needed for attribution.
type Hit struct {
	Content      string
	CourseTitle  string
	LessonNumber int
	LessonLink   string
}

// Outline is the course structure returned for outline queries.
type Outline struct {
	Title   string
	Link    string
	Lessons []Lesson
}

// Store wraps the SQLite database and the embedder used for both indexing
// and query embedding.
type Store struct {
	db  *sql.DB
	emb embed.Embedder
	dim int
}

func init() {
	// Registers the sqlite-vec extension on every go-sqlite3 connection.
	sqlite_vec.Auto()
}

// Open opens (creating if needed) the store at path. dim must match the
// embedder's output dimension; it is baked into the vec0 table schema.
func Open(path string, emb embed.Embedder, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorstore: invalid embedding dimension %d", dim)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open %s: %w", path, err)
	}
	s := &Store{db: db, emb: emb, dim: dim}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS courses (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL UNIQUE,
			link TEXT,
			instructor TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS lessons (
			course_id INTEGER NOT NULL REFERENCES courses(id),
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			link TEXT,
			PRIMARY KEY (course_id, number)
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY,
			course_id INTEGER NOT NULL REFERENCES courses(id),
			lesson_number INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL
		)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vec USING vec0(embedding float[%d])`, s.dim),
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS catalog_vec USING vec0(embedding float[%d])`, s.dim),
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("vectorstore: schema: %w", err)
		}
	}
	return nil
}

func (s *Store) embedBlob(ctx context.Context, text string) ([]byte, error) {
	vec, err := s.emb.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("vectorstore: embedding dimension %d, want %d", len(vec), s.dim)
	}
	return sqlite_vec.SerializeFloat32(vec)
}

// AddCourse inserts a course, its lessons, and its content chunks, embedding
// each chunk and the course title for semantic name resolution.
func (s *Store) AddCourse(ctx context.Context, course Course, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO courses (title, link, instructor) VALUES (?, ?, ?)`,
		course.Title, course.Link, course.Instructor)
	if err != nil {
		return fmt.Errorf("vectorstore: insert course %q: %w", course.Title, err)
	}
	courseID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("vectorstore: course id: %w", err)
	}

	for _, l := range course.Lessons {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lessons (course_id, number, title, link) VALUES (?, ?, ?, ?)`,
			courseID, l.Number, l.Title, l.Link); err != nil {
			return fmt.Errorf("vectorstore: insert lesson %d: %w", l.Number, err)
		}
	}

	titleBlob, err := s.embedBlob(ctx, course.Title)
	if err != nil {
		return fmt.Errorf("vectorstore: embed title: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO catalog_vec (rowid, embedding) VALUES (?, ?)`, courseID, titleBlob); err != nil {
		return fmt.Errorf("vectorstore: index title: %w", err)
	}

	for _, c := range chunks {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (course_id, lesson_number, chunk_index, content) VALUES (?, ?, ?, ?)`,
			courseID, c.LessonNumber, c.Index, c.Content)
		if err != nil {
			return fmt.Errorf("vectorstore: insert chunk %d: %w", c.Index, err)
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("vectorstore: chunk id: %w", err)
		}
		blob, err := s.embedBlob(ctx, c.Content)
		if err != nil {
			return fmt.Errorf("vectorstore: embed chunk %d: %w", c.Index, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_vec (rowid, embedding) VALUES (?, ?)`, chunkID, blob); err != nil {
			return fmt.Errorf("vectorstore: index chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vectorstore: commit: %w", err)
	}
	return nil
}

// ResolveCourseName maps a partial or fuzzy course name to a stored course.
// Exact and substring matches win; otherwise the nearest title embedding.
func (s *Store) ResolveCourseName(ctx context.Context, name string) (int64, string, error) {
	var id int64
	var title string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title FROM courses WHERE title LIKE '%' || ? || '%' COLLATE NOCASE ORDER BY length(title) LIMIT 1`,
		name).Scan(&id, &title)
	if err == nil {
		return id, title, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("vectorstore: resolve %q: %w", name, err)
	}

	blob, err := s.embedBlob(ctx, name)
	if err != nil {
		return 0, "", fmt.Errorf("vectorstore: embed name %q: %w", name, err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT c.id, c.title
		 FROM (SELECT rowid FROM catalog_vec WHERE embedding MATCH ? AND k = 1) v
		 JOIN courses c ON c.id = v.rowid`, blob).Scan(&id, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: %q", ErrCourseNotFound, name)
	}
	if err != nil {
		return 0, "", fmt.Errorf("vectorstore: resolve %q: %w", name, err)
	}
	return id, title, nil
}

// Search embeds the query and returns the nearest chunks, optionally filtered
// to one course (by fuzzy name) and one lesson. lessonNumber < 0 means no
// lesson filter.
func (s *Store) Search(ctx context.Context, query, courseName string, lessonNumber, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	var courseID int64 = -1
	if courseName != "" {
		id, _, err := s.ResolveCourseName(ctx, courseName)
		if err != nil {
			return nil, err
		}
		courseID = id
	}

	blob, err := s.embedBlob(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	// Over-fetch from the KNN scan when post-filtering, so filters don't
	// starve the result set.
	k := limit
	if courseID >= 0 || lessonNumber >= 0 {
		k = limit * 8
	}

	q := `SELECT ch.content, ch.lesson_number, co.title, COALESCE(le.link, '')
	      FROM (SELECT rowid, distance FROM chunk_vec WHERE embedding MATCH ? AND k = ?) v
	      JOIN chunks ch ON ch.id = v.rowid
	      JOIN courses co ON co.id = ch.course_id
	      LEFT JOIN lessons le ON le.course_id = ch.course_id AND le.number = ch.lesson_number`
	args := []any{blob, k}
	where := ""
	if courseID >= 0 {
		where = " WHERE ch.course_id = ?"
		args = append(args, courseID)
	}
	if lessonNumber >= 0 {
		if where == "" {
			where = " WHERE ch.lesson_number = ?"
		} else {
			where += " AND ch.lesson_number = ?"
		}
		args = append(args, lessonNumber)
	}
	q += where + " ORDER BY v.distance LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Content, &h.LessonNumber, &h.CourseTitle, &h.LessonLink); err != nil {
			return nil, fmt.Errorf("vectorstore: scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// CourseOutline returns the stored structure of the course best matching title.
func (s *Store) CourseOutline(ctx context.Context, title string) (*Outline, error) {
	id, resolved, err := s.ResolveCourseName(ctx, title)
	if err != nil {
		return nil, err
	}
	out := &Outline{Title: resolved}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(link, '') FROM courses WHERE id = ?`, id).Scan(&out.Link); err != nil {
		return nil, fmt.Errorf("vectorstore: outline %q: %w", resolved, err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, title, COALESCE(link, '') FROM lessons WHERE course_id = ? ORDER BY number`, id)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: outline lessons: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.Number, &l.Title, &l.Link); err != nil {
			return nil, fmt.Errorf("vectorstore: scan lesson: %w", err)
		}
		out.Lessons = append(out.Lessons, l)
	}
	return out, rows.Err()
}

// CourseCount returns the number of stored courses.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorstore: count: %w", err)
	}
	return n, nil
}

// CourseTitles returns all stored course titles in insertion order.
func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: titles: %w", err)
	}
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("vectorstore: scan title: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// HasCourse reports whether a course with exactly this title is stored.
func (s *Store) HasCourse(ctx context.Context, title string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM courses WHERE title = ?`, title).Scan(&n); err != nil {
		return false, fmt.Errorf("vectorstore: has course: %w", err)
	}
	return n > 0, nil
}
