package workitem

import (
	"context"

	"github.com/clintrovert/boardbridge/pkg/types"
)

// Tracker is the remote work-tracking service. Implementations own the
// project they write to
type Tracker interface {
	CreateWorkItem(ctx context.Context, workType string, patch []types.FieldPatch) (int, error)
	GetWorkItem(ctx context.Context, id int) (map[string]any, error)
	UpdateWorkItem(ctx context.Context, id int, patch []types.FieldPatch) error
	AddComment(ctx context.Context, id int, text string) error
}
