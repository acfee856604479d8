package engine

import (
	"context"

	"github.com/angel2rider/tgcloud/internal/models"
)

// ListFiles returns every FileMetadata whose original_name is
// anchored-prefixed by prefix, or every file when prefix is "root".
func (e *Engine) ListFiles(ctx context.Context, prefix string) ([]models.FileMetadata, error) {
	files, err := e.meta.ListFiles(ctx, prefix)
	if err != nil {
		return nil, &MetadataError{Cause: err}
	}
	return files, nil
}
