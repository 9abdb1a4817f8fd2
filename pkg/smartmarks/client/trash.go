package client

import (
	"context"

	"go.uber.org/multierr"

	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

// EmptyTrashMessage is shown when there is nothing in the trash.
const EmptyTrashMessage = "Trash is empty. Deleted bookmarks will show up here."

// Trash is the view of soft-deleted bookmarks.
type Trash struct {
	api *Client

	Bookmarks []models.Bookmark
}

func NewTrash(api *Client) *Trash {
	return &Trash{api: api}
}

func (t *Trash) Load(ctx context.Context) error {
	list, err := t.api.Trash(ctx)
	if err != nil {
		return err
	}
	t.Bookmarks = list
	return nil
}

func (t *Trash) IsEmpty() bool {
	return len(t.Bookmarks) == 0
}

// Restore returns a bookmark to the end of the active list.
func (t *Trash) Restore(ctx context.Context, id string) (*models.Bookmark, error) {
	b, err := t.api.Restore(ctx, id)
	if err != nil {
		return nil, err
	}
	t.remove(id)
	return b, nil
}

// Purge deletes a bookmark forever.
func (t *Trash) Purge(ctx context.Context, id string) error {
	if err := t.api.Purge(ctx, id); err != nil {
		return err
	}
	t.remove(id)
	return nil
}

// Empty purges everything currently loaded. Items that fail stay in the
// list and their errors are combined.
func (t *Trash) Empty(ctx context.Context) error {
	var errs error
	for _, b := range append([]models.Bookmark(nil), t.Bookmarks...) {
		errs = multierr.Append(errs, t.Purge(ctx, b.ID))
	}
	return errs
}

func (t *Trash) remove(id string) {
	kept := t.Bookmarks[:0]
	for _, b := range t.Bookmarks {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	t.Bookmarks = kept
}
