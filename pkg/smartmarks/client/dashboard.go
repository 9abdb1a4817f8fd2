package client

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/bookmarks"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
	"github.com/mikepea/smartmarks/pkg/smartmarks/reorder"
)

var (
	ErrFilteredView = errors.New("clear the search and switch to manual sort to reorder")
	ErrNotEditing   = errors.New("no bookmark is being edited")
	ErrNoSuchItem   = errors.New("no bookmark at that position")
)

// EditBuffer holds unsaved changes to one bookmark.
type EditBuffer struct {
	ID    string
	Title string
	URL   string
}

// Dashboard is the signed-in view of the active list. Bookmarks is kept in
// stored order; search and sort only affect Visible.
type Dashboard struct {
	api *Client

	User      *auth.UserResponse
	Bookmarks []models.Bookmark
	Query     string
	Sort      bookmarks.SortMode
	Fuzzy     bool
	Editing   *EditBuffer
}

func NewDashboard(api *Client) *Dashboard {
	return &Dashboard{api: api, Sort: bookmarks.SortManual}
}

// Load fetches the current user and the full list.
func (d *Dashboard) Load(ctx context.Context) error {
	user, err := d.api.Session(ctx)
	if err != nil {
		return err
	}
	d.User = user
	return d.Refresh(ctx)
}

// Refresh replaces the local list with the server's.
func (d *Dashboard) Refresh(ctx context.Context) error {
	list, err := d.api.List(ctx, ListQuery{})
	if err != nil {
		return err
	}
	d.Bookmarks = list
	return nil
}

// Apply takes a snapshot pushed by the change stream.
func (d *Dashboard) Apply(list []models.Bookmark) {
	d.Bookmarks = list
}

func (d *Dashboard) view() bookmarks.View {
	return bookmarks.View{Query: d.Query, Sort: d.Sort, Fuzzy: d.Fuzzy}
}

// Visible is the list as the user sees it.
func (d *Dashboard) Visible() []models.Bookmark {
	return d.view().Apply(d.Bookmarks)
}

func (d *Dashboard) SetSearch(q string, fuzzy bool) {
	d.Query = strings.TrimSpace(q)
	d.Fuzzy = fuzzy
}

func (d *Dashboard) SetSort(s string) error {
	mode, err := bookmarks.ParseSort(s)
	if err != nil {
		return err
	}
	d.Sort = mode
	return nil
}

// Add creates a bookmark. The server defaults an empty title to the host
// name.
func (d *Dashboard) Add(ctx context.Context, title, rawURL string) (*models.Bookmark, error) {
	b, err := d.api.Create(ctx, title, rawURL)
	if err != nil {
		return nil, err
	}
	d.Bookmarks = append(d.Bookmarks, *b)
	return b, nil
}

// At returns the visible bookmark at index i.
func (d *Dashboard) At(i int) (models.Bookmark, error) {
	visible := d.Visible()
	if i < 0 || i >= len(visible) {
		return models.Bookmark{}, ErrNoSuchItem
	}
	return visible[i], nil
}

func (d *Dashboard) StartEdit(id string) error {
	for _, b := range d.Bookmarks {
		if b.ID == id {
			d.Editing = &EditBuffer{ID: b.ID, Title: b.Title, URL: b.URL}
			return nil
		}
	}
	return ErrNoSuchItem
}

func (d *Dashboard) CancelEdit() {
	d.Editing = nil
}

// SaveEdit sends the edit buffer. The buffer is kept on failure so the
// user can correct it.
func (d *Dashboard) SaveEdit(ctx context.Context) (*models.Bookmark, error) {
	if d.Editing == nil {
		return nil, ErrNotEditing
	}
	e := d.Editing
	b, err := d.api.Update(ctx, e.ID, &e.Title, &e.URL)
	if err != nil {
		return nil, err
	}
	for i := range d.Bookmarks {
		if d.Bookmarks[i].ID == b.ID {
			d.Bookmarks[i] = *b
		}
	}
	d.Editing = nil
	return b, nil
}

// Delete moves a bookmark to the trash.
func (d *Dashboard) Delete(ctx context.Context, id string) error {
	if err := d.api.Delete(ctx, id); err != nil {
		return err
	}
	kept := d.Bookmarks[:0]
	for _, b := range d.Bookmarks {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	d.Bookmarks = kept
	if d.Editing != nil && d.Editing.ID == id {
		d.Editing = nil
	}
	return nil
}

// Reorder moves the bookmark at index from to index to. The move is shown
// locally straight away; if the server rejects it the list is re-fetched.
func (d *Dashboard) Reorder(ctx context.Context, from, to int) error {
	if d.view().Filtered() {
		return ErrFilteredView
	}
	moved, err := reorder.Move(d.Bookmarks, from, to)
	if err != nil {
		return err
	}
	d.Bookmarks = moved

	list, err := d.api.Reorder(ctx, from, to)
	if err != nil {
		// Best effort; the reorder error is the one worth reporting.
		_ = d.Refresh(ctx)
		return err
	}
	d.Bookmarks = list
	return nil
}
