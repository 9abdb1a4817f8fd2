package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtract(t *testing.T) {
	page := mustURL(t, "https://example.com/blog/post")

	tests := []struct {
		name        string
		doc         string
		wantTitle   *string
		wantFavicon *string
	}{
		{
			name:        "title and absolute icon",
			doc:         `<html><head><title>Hello</title><link rel="icon" href="https://cdn.test/i.png"></head></html>`,
			wantTitle:   strPtr("Hello"),
			wantFavicon: strPtr("https://cdn.test/i.png"),
		},
		{
			name:        "relative icon resolved against page",
			doc:         `<link rel="shortcut icon" href="/favicon.png"><TITLE>Caps</TITLE>`,
			wantTitle:   strPtr("Caps"),
			wantFavicon: strPtr("https://example.com/favicon.png"),
		},
		{
			name:        "path relative icon",
			doc:         `<link type="image/png" rel='icon' href='icons/a.ico'>`,
			wantFavicon: strPtr("https://example.com/blog/icons/a.ico"),
		},
		{
			name:      "entities and spaces kept",
			doc:       `<title>  A &amp; B </title>`,
			wantTitle: strPtr("  A &amp; B "),
		},
		{
			name:      "first title wins",
			doc:       `<title>one</title><title>two</title>`,
			wantTitle: strPtr("one"),
		},
		{
			name: "neither present",
			doc:  `<html><body>nothing here</body></html>`,
		},
		{
			name: "href before rel is not matched",
			doc:  `<link href="/x.ico" rel="icon">`,
		},
		{
			name: "title across lines is not matched",
			doc:  "<title>line\nbreak</title>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := Extract(tt.doc, page)
			assert.Equal(t, tt.wantTitle, meta.Title)
			assert.Equal(t, tt.wantFavicon, meta.Favicon)
		})
	}
}

func TestFetch(t *testing.T) {
	gotUA := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA <- r.Header.Get("User-Agent")
		w.Write([]byte(`<head><title>Served</title><link rel="icon" href="/fav.ico"></head>`))
	}))
	defer srv.Close()

	meta, err := NewFetcher(Options{Timeout: 5 * time.Second}).Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.NotNil(t, meta.Title)
	assert.Equal(t, "Served", *meta.Title)
	require.NotNil(t, meta.Favicon)
	assert.Equal(t, srv.URL+"/fav.ico", *meta.Favicon)
	assert.Equal(t, "Mozilla/5.0", <-gotUA)
}

func TestFetchScansErrorPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<title>Not Found</title>`))
	}))
	defer srv.Close()

	meta, err := NewFetcher(Options{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, meta.Title)
	assert.Equal(t, "Not Found", *meta.Title)
}

func TestFetchMaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64) + `<title>late</title>`))
	}))
	defer srv.Close()

	meta, err := NewFetcher(Options{MaxBodyBytes: 32}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, meta.Title)
}

func TestFetchErrors(t *testing.T) {
	f := NewFetcher(Options{Timeout: 200 * time.Millisecond})

	_, err := f.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingURL)

	_, err = f.Fetch(context.Background(), "not a url")
	assert.ErrorIs(t, err, ErrFetchFailed)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()
	_, err = f.Fetch(context.Background(), addr)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewFetcher(Options{Timeout: 100 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func strPtr(s string) *string { return &s }
