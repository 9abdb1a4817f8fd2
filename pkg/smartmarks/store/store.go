// Package store persists bookmarks per owner and announces every change on
// the feed.
package store

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mikepea/smartmarks/pkg/smartmarks/feed"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

var (
	ErrNotFound   = errors.New("bookmark not found")
	ErrNotInTrash = errors.New("bookmark is not in the trash")
	ErrInvalidURL = errors.New("url must be absolute")
)

// ListOptions selects which side of the soft-delete flag to read.
type ListOptions struct {
	Deleted bool
}

// Fields is a partial update. Nil pointers are left untouched.
type Fields struct {
	Title *string
	URL   *string
}

// Store is the bookmark persistence adapter.
type Store struct {
	db  *gorm.DB
	pub feed.Publisher
	log logger.Logger
	now func() time.Time
}

// New creates a store. pub may be nil, in which case no events are sent.
func New(db *gorm.DB, pub feed.Publisher, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, pub: pub, log: log, now: time.Now}
}

// List returns the owner's active bookmarks in manual order, or the
// trash with the most recently deleted first.
func (s *Store) List(ctx context.Context, owner uint, opts ListOptions) ([]models.Bookmark, error) {
	q := squirrel.
		Select("id", "created_at", "updated_at", "owner_id", "title", "url", "position", "is_deleted").
		From("bookmarks").
		Where(squirrel.Eq{"owner_id": owner, "is_deleted": opts.Deleted})
	if opts.Deleted {
		q = q.OrderBy("updated_at DESC", "id")
	} else {
		q = q.OrderBy("position ASC", "created_at ASC")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	bookmarks := make([]models.Bookmark, 0)
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&bookmarks).Error; err != nil {
		return nil, errors.Wrap(err, "list bookmarks")
	}
	return bookmarks, nil
}

// Get loads one bookmark of the owner regardless of its deleted flag.
func (s *Store) Get(ctx context.Context, owner uint, id string) (*models.Bookmark, error) {
	return s.get(s.db.WithContext(ctx), owner, id)
}

// Count returns how many bookmarks the owner has on one side of the flag.
func (s *Store) Count(ctx context.Context, owner uint, deleted bool) (int, error) {
	return count(s.db.WithContext(ctx), owner, deleted)
}

// Insert appends a bookmark to the end of the owner's active list. An empty
// title is replaced by the URL's host name.
func (s *Store) Insert(ctx context.Context, owner uint, title, rawURL string) (*models.Bookmark, error) {
	host, err := DefaultTitle(rawURL)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = host
	}

	b := models.Bookmark{OwnerID: owner, Title: title, URL: rawURL}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := count(tx, owner, false)
		if err != nil {
			return err
		}
		b.Position = n
		return tx.Create(&b).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "insert bookmark")
	}

	s.publish(ctx, feed.Insert, owner, b.ID)
	return &b, nil
}

// Update changes title and/or url of an active bookmark. Position is kept.
func (s *Store) Update(ctx context.Context, owner uint, id string, f Fields) (*models.Bookmark, error) {
	changes := map[string]interface{}{}
	if f.Title != nil {
		changes["title"] = *f.Title
	}
	if f.URL != nil {
		if _, err := DefaultTitle(*f.URL); err != nil {
			return nil, err
		}
		changes["url"] = *f.URL
	}

	var b *models.Bookmark
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.get(tx, owner, id)
		if err != nil {
			return err
		}
		// Trashed bookmarks are not editable.
		if existing.IsDeleted {
			return ErrNotFound
		}
		if len(changes) == 0 {
			b = existing
			return nil
		}
		b, err = s.updateTx(tx, owner, id, changes)
		return err
	})
	if err != nil {
		return nil, wrapUnlessSentinel(err, "update bookmark")
	}
	if len(changes) > 0 {
		s.publish(ctx, feed.Update, owner, id)
	}
	return b, nil
}

// SoftDelete moves a bookmark to the trash. Remaining positions are not
// repacked.
func (s *Store) SoftDelete(ctx context.Context, owner uint, id string) error {
	if _, err := s.update(ctx, owner, id, map[string]interface{}{"is_deleted": true}); err != nil {
		return err
	}
	s.publish(ctx, feed.Update, owner, id)
	return nil
}

// Restore takes a bookmark out of the trash and appends it to the end of
// the active list.
func (s *Store) Restore(ctx context.Context, owner uint, id string) (*models.Bookmark, error) {
	var b *models.Bookmark
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.get(tx, owner, id)
		if err != nil {
			return err
		}
		if !existing.IsDeleted {
			b = existing
			return nil
		}
		n, err := nextPosition(tx, owner)
		if err != nil {
			return err
		}
		b, err = s.updateTx(tx, owner, id, map[string]interface{}{"is_deleted": false, "position": n})
		return err
	})
	if err != nil {
		return nil, wrapUnlessSentinel(err, "restore bookmark")
	}
	s.publish(ctx, feed.Update, owner, id)
	return b, nil
}

// HardDelete permanently removes a trashed bookmark. Active bookmarks are
// refused with ErrNotInTrash.
func (s *Store) HardDelete(ctx context.Context, owner uint, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.get(tx, owner, id)
		if err != nil {
			return err
		}
		if !existing.IsDeleted {
			return ErrNotInTrash
		}
		return tx.Where("id = ? AND owner_id = ?", id, owner).Delete(&models.Bookmark{}).Error
	})
	if err != nil {
		return wrapUnlessSentinel(err, "delete bookmark")
	}
	s.publish(ctx, feed.Delete, owner, id)
	return nil
}

// SetPosition writes a single position. It satisfies reorder.PositionWriter.
func (s *Store) SetPosition(ctx context.Context, owner uint, id string, position int) error {
	res := s.db.WithContext(ctx).
		Model(&models.Bookmark{}).
		Where("id = ? AND owner_id = ?", id, owner).
		Updates(map[string]interface{}{"position": position, "updated_at": s.now()})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "set position of %s", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(ErrNotFound, id)
	}
	s.publish(ctx, feed.Update, owner, id)
	return nil
}

// DefaultTitle validates rawURL as an absolute URL and returns its host
// name with the first "www." removed.
func DefaultTitle(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidURL
	}
	return strings.Replace(u.Hostname(), "www.", "", 1), nil
}

func (s *Store) update(ctx context.Context, owner uint, id string, changes map[string]interface{}) (*models.Bookmark, error) {
	var b *models.Bookmark
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		b, err = s.updateTx(tx, owner, id, changes)
		return err
	})
	if err != nil {
		return nil, wrapUnlessSentinel(err, "update bookmark")
	}
	return b, nil
}

func (s *Store) updateTx(tx *gorm.DB, owner uint, id string, changes map[string]interface{}) (*models.Bookmark, error) {
	changes["updated_at"] = s.now()
	res := tx.Model(&models.Bookmark{}).
		Where("id = ? AND owner_id = ?", id, owner).
		Updates(changes)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.get(tx, owner, id)
}

func (s *Store) get(db *gorm.DB, owner uint, id string) (*models.Bookmark, error) {
	var b models.Bookmark
	err := db.Where("id = ? AND owner_id = ?", id, owner).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get bookmark")
	}
	return &b, nil
}

// nextPosition is one past the highest active position. Soft delete leaves
// gaps, so the active count can land on a taken slot.
func nextPosition(db *gorm.DB, owner uint) (int, error) {
	var n int
	err := db.Model(&models.Bookmark{}).
		Where("owner_id = ? AND is_deleted = ?", owner, false).
		Select("COALESCE(MAX(position), -1) + 1").
		Scan(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "next position")
	}
	return n, nil
}

func count(db *gorm.DB, owner uint, deleted bool) (int, error) {
	var n int64
	err := db.Model(&models.Bookmark{}).
		Where("owner_id = ? AND is_deleted = ?", owner, deleted).
		Count(&n).Error
	if err != nil {
		return 0, errors.Wrap(err, "count bookmarks")
	}
	return int(n), nil
}

// publish announces a committed change. A feed failure does not undo the
// write; it is logged and watchers catch up on their next event.
func (s *Store) publish(ctx context.Context, typ feed.Type, owner uint, id string) {
	if s.pub == nil {
		return
	}
	ev := feed.Event{Type: typ, OwnerID: owner, BookmarkID: id, At: s.now()}
	if err := s.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("publish change event failed",
			logger.String("type", string(typ)),
			logger.Uint("owner_id", owner),
			logger.String("bookmark_id", id),
			logger.Error(err))
	}
}

func wrapUnlessSentinel(err error, msg string) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotInTrash) {
		return err
	}
	return errors.Wrap(err, msg)
}
