package spatial

import (
	"context"

	"github.com/TFMV/graphview/models"
	"github.com/TFMV/graphview/worker"
)

// IndexRequest is a position snapshot for background index construction.
type IndexRequest struct {
	ModelID string
	Points  []models.Point
}

// IndexResponse carries a freshly built index for ModelID.
type IndexResponse struct {
	ModelID string
	Index   *Quadtree
}

func buildIndex(ctx context.Context, req IndexRequest) (IndexResponse, error) {
	if err := ctx.Err(); err != nil {
		return IndexResponse{}, err
	}
	pts := make([]models.Point, len(req.Points))
	copy(pts, req.Points)
	return IndexResponse{ModelID: req.ModelID, Index: Build(pts)}, nil
}

// NewIndexWorker returns a single-slot worker that builds quadtrees off the
// caller's goroutine.
func NewIndexWorker(opts ...worker.Option) *worker.Slot[IndexRequest, IndexResponse] {
	return worker.New("spatial-index", buildIndex, opts...)
}
