package bookmarks

import (
	"errors"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

// SortMode is how the dashboard orders the visible list.
type SortMode string

const (
	SortManual SortMode = "manual"
	SortNewest SortMode = "newest"
	SortOldest SortMode = "oldest"
	SortAZ     SortMode = "az"
	SortZA     SortMode = "za"
)

var ErrUnknownSort = errors.New("unknown sort mode")

// ParseSort maps a query value to a mode. Empty means manual.
func ParseSort(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(s)) {
	case "", SortManual:
		return SortManual, nil
	case SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortAZ:
		return SortAZ, nil
	case SortZA:
		return SortZA, nil
	}
	return "", ErrUnknownSort
}

// View describes a filtered, sorted projection of the active list.
type View struct {
	Query string
	Sort  SortMode
	Fuzzy bool
}

// Filtered reports whether the view hides or reorders anything, in which
// case indices into it do not match the stored order.
func (v View) Filtered() bool {
	return v.Query != "" || (v.Sort != "" && v.Sort != SortManual)
}

// Apply filters list by the query and orders it by the sort mode. The
// input is left untouched.
func (v View) Apply(list []models.Bookmark) []models.Bookmark {
	out := Search(list, v.Query, v.Fuzzy)
	Sort(out, v.Sort)
	return out
}

// Search keeps bookmarks whose title or url contains q, ignoring case.
// With fuzzy set, sahilm/fuzzy matching over "title url" is used instead.
// List order is preserved either way.
func Search(list []models.Bookmark, q string, fuzzyMatch bool) []models.Bookmark {
	out := make([]models.Bookmark, 0, len(list))
	if q == "" {
		return append(out, list...)
	}

	if fuzzyMatch {
		matches := fuzzy.FindFrom(q, searchSource(list))
		keep := make([]bool, len(list))
		for _, m := range matches {
			keep[m.Index] = true
		}
		for i, b := range list {
			if keep[i] {
				out = append(out, b)
			}
		}
		return out
	}

	needle := strings.ToLower(q)
	for _, b := range list {
		if strings.Contains(strings.ToLower(b.Title), needle) || strings.Contains(strings.ToLower(b.URL), needle) {
			out = append(out, b)
		}
	}
	return out
}

type searchSource []models.Bookmark

func (s searchSource) String(i int) string { return s[i].Title + " " + s[i].URL }
func (s searchSource) Len() int            { return len(s) }

// Sort orders list in place. Manual keeps the stored order.
func Sort(list []models.Bookmark, mode SortMode) {
	switch mode {
	case SortNewest:
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	case SortOldest:
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	case SortAZ, SortZA:
		col := collate.New(language.Und)
		sort.SliceStable(list, func(i, j int) bool {
			c := col.CompareString(list[i].Title, list[j].Title)
			if mode == SortZA {
				return c > 0
			}
			return c < 0
		})
	}
}
