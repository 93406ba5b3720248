package tools

// CourseStore is the retrieval surface the full catalog needs.
type CourseStore interface {
	CourseSearcher
	OutlineSource
}

// RegisterCourseTools wires all course retrieval tools onto m.
func RegisterCourseTools(m *Manager, store CourseStore, maxResults int) {
	m.Register(NewSearchTool(store, maxResults, m))
	m.Register(NewOutlineTool(store, m))
}
