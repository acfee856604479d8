package engine

import (
	"context"
	"errors"

	"github.com/angel2rider/tgcloud/internal/metastore"
)

// RenameFile performs the single metadata operation spec.md §4.9
// describes: reject if new_name already exists, otherwise atomically
// update original_name. No blob-tier interaction.
func (e *Engine) RenameFile(ctx context.Context, oldName, newName string) error {
	err := e.meta.RenameFile(ctx, oldName, newName)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, metastore.ErrAlreadyExists):
		return &AlreadyExistsError{Name: newName}
	case errors.Is(err, metastore.ErrNotFound):
		return &FileNotFoundError{Name: oldName}
	default:
		return &MetadataError{Cause: err}
	}
}
