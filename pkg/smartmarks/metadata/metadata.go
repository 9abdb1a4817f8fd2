// Package metadata scrapes a page's title and favicon on a best-effort
// basis.
package metadata

import (
	"context"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

var (
	ErrMissingURL  = errors.New("no url provided")
	ErrFetchFailed = errors.New("failed to fetch metadata")
)

const userAgent = "Mozilla/5.0"

var (
	titleRe   = regexp.MustCompile(`(?i)<title>(.*?)</title>`)
	faviconRe = regexp.MustCompile(`(?i)<link[^>]*rel=["']?(icon|shortcut icon)["']?[^>]*href=["']?([^"'>]+)["']?`)
)

// Meta is what could be extracted. Either field may be nil.
type Meta struct {
	Title   *string `json:"title"`
	Favicon *string `json:"favicon"`
}

// Options tunes the outbound request.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64 // 0 reads the whole body
}

// Fetcher performs one GET per call. Transport errors are never retried.
type Fetcher struct {
	client  *resty.Client
	maxBody int64
}

// NewFetcher builds a fetcher with its own resty client.
func NewFetcher(opts Options) *Fetcher {
	client := resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	return &Fetcher{client: client, maxBody: opts.MaxBodyBytes}
}

// Fetch downloads rawURL and extracts title and favicon. The response
// status is not inspected; error pages are scanned like any other.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Meta, error) {
	if rawURL == "" {
		return nil, ErrMissingURL
	}
	page, err := url.Parse(rawURL)
	if err != nil || page.Scheme == "" || page.Host == "" {
		return nil, errors.Wrapf(ErrFetchFailed, "invalid url %q", rawURL)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(page.String())
	if err != nil {
		return nil, errors.Wrap(ErrFetchFailed, err.Error())
	}
	body := resp.RawBody()
	defer body.Close()

	var r io.Reader = body
	if f.maxBody > 0 {
		r = io.LimitReader(body, f.maxBody)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(ErrFetchFailed, err.Error())
	}

	return Extract(string(raw), page), nil
}

// Extract applies the title and favicon patterns to an HTML document.
// Matches are returned as found, without entity decoding or trimming.
func Extract(doc string, page *url.URL) *Meta {
	meta := &Meta{}

	if m := titleRe.FindStringSubmatch(doc); m != nil {
		title := m[1]
		meta.Title = &title
	}

	if m := faviconRe.FindStringSubmatch(doc); m != nil {
		if icon, ok := resolveFavicon(m[2], page); ok {
			meta.Favicon = &icon
		}
	}

	return meta
}

func resolveFavicon(href string, page *url.URL) (string, bool) {
	if strings.HasPrefix(href, "http") {
		return href, true
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return page.ResolveReference(ref).String(), true
}
