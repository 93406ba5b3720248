package telemetry

import (
	"context"

	"github.com/coursechat/go-rag/internal/metrics"
)

// EmitQueryFeatures records basic text features of a completed query and its
// answer, keyed by the query ID carried in ctx.
func EmitQueryFeatures(ctx context.Context, query, answer string) {
	if !isObserveEnabled() {
		return
	}
	queryID, _ := QueryIDFromContext(ctx)
	q := metrics.CountFeatures(query)
	a := metrics.CountFeatures(answer)
	Emit("query_features", map[string]any{
		"query_id":         queryID,
		"features_version": "1",
		"query": map[string]any{
			"bytes": q.Bytes,
			"runes": q.Runes,
			"words": q.Words,
			"lines": q.Lines,
		},
		"answer": map[string]any{
			"bytes": a.Bytes,
			"runes": a.Runes,
			"words": a.Words,
			"lines": a.Lines,
		},
	})
}
