package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/client"
	"github.com/mikepea/smartmarks/pkg/smartmarks/config"
	"github.com/mikepea/smartmarks/pkg/smartmarks/database"
	"github.com/mikepea/smartmarks/pkg/smartmarks/feed"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/metadata"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
	"github.com/mikepea/smartmarks/pkg/smartmarks/server"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

type harness struct {
	t       *testing.T
	server  string
	session string
}

func newHarness(t *testing.T) *harness {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()

	db, err := database.Connect(config.DriverSQLite, ":memory:", log)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	broker := feed.NewMemory()
	cfg := &config.Config{BaseURL: "http://localhost:8080", JWTSecret: "test-secret", TokenTTL: time.Hour}
	srv := httptest.NewServer(server.NewRouter(server.Deps{
		Config:  cfg,
		DB:      db,
		Store:   store.New(db, broker, log),
		Broker:  broker,
		Fetcher: metadata.NewFetcher(metadata.Options{Timeout: time.Second}),
		Tokens:  auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
		Log:     log,
	}))
	t.Cleanup(func() {
		srv.Close()
		broker.Close()
		database.Close(db)
	})

	return &harness{
		t:       t,
		server:  srv.URL,
		session: filepath.Join(t.TempDir(), "session.json"),
	}
}

// run executes one CLI invocation and returns what it printed.
func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := append([]string{"smartmarks", "--server", h.server, "--session", h.session}, args...)
	err := app.RunContext(context.Background(), argv)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	out, err := h.run(args...)
	require.NoError(h.t, err, "smartmarks %s: %s", strings.Join(args, " "), out)
	return out
}

func TestSignupStatusLogout(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("status")
	assert.Contains(t, out, "Not signed in")

	_, err := h.run("list")
	assert.Error(t, err)

	out = h.mustRun("signup", "--email", "me@example.com", "--password", "secret123")
	assert.Contains(t, out, auth.SignupMessage)

	s, err := client.LoadSession(h.session)
	require.NoError(t, err)
	assert.Equal(t, h.server, s.Server)
	assert.Equal(t, "me@example.com", s.Email)
	assert.NotEmpty(t, s.Token)

	out = h.mustRun("status")
	assert.Contains(t, out, "as me@example.com")

	out = h.mustRun("login")
	assert.Contains(t, out, "Already signed in as me@example.com")

	h.mustRun("logout")
	_, err = os.Stat(h.session)
	assert.True(t, os.IsNotExist(err))

	out = h.mustRun("login", "--email", "me@example.com", "--password", "secret123")
	assert.Contains(t, out, "Signed in as me@example.com")

	_, err = h.run("login", "--email", "me@example.com", "--password", "nope")
	assert.Error(t, err)
}

func TestBookmarkCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun("signup", "--email", "me@example.com", "--password", "secret123")

	assert.Contains(t, h.mustRun("list"), "No bookmarks yet")

	for _, name := range []string{"alpha", "bravo", "charlie"} {
		out := h.mustRun("add", "--title", name, "https://"+name+".example.com")
		assert.Contains(t, out, name)
	}

	out := h.mustRun("list", "--sort", "za")
	assert.Less(t, strings.Index(out, "charlie"), strings.Index(out, "alpha"))

	out = h.mustRun("list", "--q", "brav")
	assert.Contains(t, out, "bravo")
	assert.NotContains(t, out, "alpha")

	out = h.mustRun("mv", "3", "1")
	assert.Less(t, strings.Index(out, "charlie"), strings.Index(out, "alpha"))

	out = h.mustRun("edit", "--title", "Charlie!", "1")
	assert.Contains(t, out, "Charlie!")

	_, err := h.run("edit", "--title", "x", "9")
	assert.Error(t, err)

	out = h.mustRun("rm", "1")
	assert.Contains(t, out, "Charlie!")
	out = h.mustRun("list")
	assert.NotContains(t, out, "Charlie!")

	out = h.mustRun("trash")
	assert.Contains(t, out, "Charlie!")
	out = h.mustRun("restore", "1")
	assert.Contains(t, out, "Restored")
	assert.Contains(t, h.mustRun("trash"), client.EmptyTrashMessage)

	_, err = h.run("rm", "no-such-id")
	assert.Error(t, err)

	h.mustRun("rm", "1")
	h.mustRun("rm", "1")
	out = h.mustRun("purge", "1")
	assert.Contains(t, out, "forever")
	out = h.mustRun("trash", "--empty")
	assert.Contains(t, out, "Deleted 1 bookmarks forever")
	assert.Contains(t, h.mustRun("trash"), client.EmptyTrashMessage)
}

func TestImportExport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("signup", "--email", "me@example.com", "--password", "secret123")

	dir := t.TempDir()
	src := filepath.Join(dir, "bookmarks.html")
	require.NoError(t, os.WriteFile(src, []byte(`<!DOCTYPE NETSCAPE-Bookmark-file-1>
<DL><p>
<DT><H3>Folder</H3>
<DL><p>
<DT><A HREF="https://go.dev">Go</A>
</DL><p>
<DT><A HREF="https://pkg.go.dev">Packages</A>
</DL><p>`), 0o644))

	out := h.mustRun("import", src)
	assert.Contains(t, out, "Imported 2, skipped 0")

	out = h.mustRun("export", "--format", "json")
	assert.Contains(t, out, `"url":"https://go.dev"`)

	dst := filepath.Join(dir, "export.html")
	h.mustRun("export", "-o", dst)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), `HREF="https://pkg.go.dev"`)
}

func TestKeysCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun("signup", "--email", "me@example.com", "--password", "secret123")

	key := strings.TrimSpace(h.mustRun("keys", "create", "-d", "laptop"))
	require.NotEmpty(t, key)

	out := h.mustRun("keys", "list")
	assert.Contains(t, out, "laptop")
	assert.Contains(t, out, "never")

	// A second machine signs in with the key.
	other := &harness{t: t, server: h.server, session: filepath.Join(t.TempDir(), "session.json")}
	out = other.mustRun("login", "--token", key)
	assert.Contains(t, out, "me@example.com")
	other.mustRun("add", "--title", "from key", "https://key.example.com")
	assert.Contains(t, h.mustRun("list"), "from key")

	h.mustRun("keys", "rm", "1")
	_, err := other.run("list")
	assert.Error(t, err)
}

func TestAddDefaultsTitleToHost(t *testing.T) {
	h := newHarness(t)
	h.mustRun("signup", "--email", "me@example.com", "--password", "secret123")

	out := h.mustRun("add", "https://www.example.com/page")
	assert.Contains(t, out, `Added "example.com"`)
}
