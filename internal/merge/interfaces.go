package merge

import "context"

// Merger defines the interface for the merge step.
type Merger interface {
	Merge(ctx context.Context, req Request, onProgress func(fraction float64)) error
}
