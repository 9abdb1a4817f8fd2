package bookmarks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/feed"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

var tokens = auth.NewTokenManager("test-secret", time.Hour)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	user := models.User{Email: email, PasswordHash: "x", Name: "Test User"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB, broker feed.Broker) (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(store.New(db, broker, logger.Nop()), broker, 4, logger.Nop())

	api := r.Group("/api")
	api.Use(tokens.Middleware())
	handler.RegisterRoutes(api)
	return r, handler
}

func getAuthHeader(user models.User) string {
	token, _ := tokens.Generate(user.ID, user.Email)
	return "Bearer " + token
}

func doRequest(router *gin.Engine, user models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeList(t *testing.T, resp *httptest.ResponseRecorder) []models.Bookmark {
	var list []models.Bookmark
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode list: %v: %s", err, resp.Body.String())
	}
	return list
}

func addBookmark(t *testing.T, router *gin.Engine, user models.User, title, url string) models.Bookmark {
	resp := doRequest(router, user, "POST", "/api/bookmarks", CreateBookmarkRequest{Title: title, URL: url})
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var b models.Bookmark
	json.Unmarshal(resp.Body.Bytes(), &b)
	return b
}

func titles(list []models.Bookmark) string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.Title
	}
	return strings.Join(out, ",")
}

func TestCreateBookmark(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	router, _ := setupTestRouter(db, feed.NewMemory())

	first := addBookmark(t, router, user, "", "https://www.example.com/page")
	if first.Title != "example.com" {
		t.Errorf("Expected default title 'example.com', got '%s'", first.Title)
	}
	if first.Position != 0 || first.OwnerID != user.ID || first.ID == "" {
		t.Errorf("Unexpected bookmark %+v", first)
	}

	second := addBookmark(t, router, user, "Go", "https://go.dev")
	if second.Position != 1 {
		t.Errorf("Expected position 1, got %d", second.Position)
	}
}

func TestCreateBookmarkValidation(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	router, _ := setupTestRouter(db, feed.NewMemory())

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing url", map[string]string{"title": "x"}},
		{"not a url", map[string]string{"url": "not a url"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(router, user, "POST", "/api/bookmarks", tt.body)
			if resp.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.Code)
			}
		})
	}
}

func TestRequiresAuth(t *testing.T) {
	router, _ := setupTestRouter(setupTestDB(t), feed.NewMemory())

	req, _ := http.NewRequest("GET", "/api/bookmarks", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.Code)
	}
}

func TestListSortAndSearch(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	other := createTestUser(t, db, "other@example.com")
	router, _ := setupTestRouter(db, feed.NewMemory())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []models.Bookmark{
		{OwnerID: user.ID, Title: "banana", URL: "https://b.example", Position: 0, CreatedAt: base.Add(2 * time.Hour)},
		{OwnerID: user.ID, Title: "Apple", URL: "https://a.example", Position: 1, CreatedAt: base},
		{OwnerID: user.ID, Title: "cherry", URL: "https://fruit.example/c", Position: 2, CreatedAt: base.Add(time.Hour)},
		{OwnerID: other.ID, Title: "hidden", URL: "https://h.example", Position: 0, CreatedAt: base},
	}
	for i := range seed {
		db.Create(&seed[i])
	}

	tests := []struct {
		query string
		want  string
	}{
		{"", "banana,Apple,cherry"},
		{"?sort=manual", "banana,Apple,cherry"},
		{"?sort=newest", "banana,cherry,Apple"},
		{"?sort=oldest", "Apple,cherry,banana"},
		{"?sort=az", "Apple,banana,cherry"},
		{"?sort=za", "cherry,banana,Apple"},
		{"?q=APP", "Apple"},
		{"?q=fruit", "cherry"},
		{"?q=an&sort=az", "banana"},
		{"?q=nothing", ""},
		{"?q=bnn&match=fuzzy", "banana"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := doRequest(router, user, "GET", "/api/bookmarks"+tt.query, nil)
			if resp.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", resp.Code)
			}
			if got := titles(decodeList(t, resp)); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}

	if resp := doRequest(router, user, "GET", "/api/bookmarks?sort=random", nil); resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown sort, got %d", resp.Code)
	}
}

func TestGetAndUpdateBookmark(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	other := createTestUser(t, db, "other@example.com")
	router, _ := setupTestRouter(db, feed.NewMemory())

	b := addBookmark(t, router, user, "Old", "https://old.example")

	resp := doRequest(router, other, "GET", "/api/bookmarks/"+b.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for another owner, got %d", resp.Code)
	}

	resp = doRequest(router, user, "PATCH", "/api/bookmarks/"+b.ID, map[string]string{"title": "New"})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var updated models.Bookmark
	json.Unmarshal(resp.Body.Bytes(), &updated)
	if updated.Title != "New" || updated.URL != "https://old.example" {
		t.Errorf("Unexpected update result %+v", updated)
	}

	resp = doRequest(router, user, "PATCH", "/api/bookmarks/"+b.ID, map[string]string{"url": "nope"})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad url, got %d", resp.Code)
	}

	resp = doRequest(router, user, "PATCH", "/api/bookmarks/missing", map[string]string{"title": "x"})
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestReorder(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	router, _ := setupTestRouter(db, feed.NewMemory())

	a := addBookmark(t, router, user, "a", "https://a.example")
	addBookmark(t, router, user, "b", "https://b.example")
	c := addBookmark(t, router, user, "c", "https://c.example")

	resp := doRequest(router, user, "POST", "/api/bookmarks/reorder", map[string]int{"source": 2, "destination": 0})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	moved := decodeList(t, resp)
	if titles(moved) != "c,a,b" {
		t.Errorf("Expected c,a,b got %s", titles(moved))
	}
	for i, b := range moved {
		if b.Position != i {
			t.Errorf("Expected %s at position %d, got %d", b.Title, i, b.Position)
		}
	}

	list := decodeList(t, doRequest(router, user, "GET", "/api/bookmarks", nil))
	if titles(list) != "c,a,b" {
		t.Errorf("Expected stored order c,a,b got %s", titles(list))
	}
	if list[0].ID != c.ID || list[1].ID != a.ID {
		t.Errorf("Unexpected ids after reorder")
	}
}

func TestReorderRejected(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	router, _ := setupTestRouter(db, feed.NewMemory())

	addBookmark(t, router, user, "a", "https://a.example")
	addBookmark(t, router, user, "b", "https://b.example")

	tests := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{"sorted view", map[string]interface{}{"source": 0, "destination": 1, "sort": "az"}, http.StatusConflict},
		{"searched view", map[string]interface{}{"source": 0, "destination": 1, "query": "a"}, http.StatusConflict},
		{"source out of range", map[string]interface{}{"source": 5, "destination": 0}, http.StatusBadRequest},
		{"negative destination", map[string]interface{}{"source": 0, "destination": -1}, http.StatusBadRequest},
		{"missing destination", map[string]interface{}{"source": 0}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(router, user, "POST", "/api/bookmarks/reorder", tt.body)
			if resp.Code != tt.code {
				t.Errorf("Expected status %d, got %d: %s", tt.code, resp.Code, resp.Body.String())
			}
		})
	}

	list := decodeList(t, doRequest(router, user, "GET", "/api/bookmarks", nil))
	if titles(list) != "a,b" {
		t.Errorf("Rejected reorder changed order to %s", titles(list))
	}
}

func TestTrashLifecycle(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	router, _ := setupTestRouter(db, feed.NewMemory())

	a := addBookmark(t, router, user, "a", "https://a.example")
	b := addBookmark(t, router, user, "b", "https://b.example")

	// Purging an active bookmark is refused.
	if resp := doRequest(router, user, "DELETE", "/api/trash/"+a.ID, nil); resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}

	if resp := doRequest(router, user, "DELETE", "/api/bookmarks/"+a.ID, nil); resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	list := decodeList(t, doRequest(router, user, "GET", "/api/bookmarks", nil))
	if titles(list) != "b" {
		t.Errorf("Expected only b active, got %s", titles(list))
	}
	trash := decodeList(t, doRequest(router, user, "GET", "/api/trash", nil))
	if len(trash) != 1 || trash[0].ID != a.ID || !trash[0].IsDeleted {
		t.Errorf("Unexpected trash %+v", trash)
	}

	// Trashed bookmarks cannot be edited.
	if resp := doRequest(router, user, "PATCH", "/api/bookmarks/"+a.ID, map[string]string{"title": "x"}); resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 editing a trashed bookmark, got %d", resp.Code)
	}

	resp := doRequest(router, user, "POST", "/api/trash/"+a.ID+"/restore", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}
	var restored models.Bookmark
	json.Unmarshal(resp.Body.Bytes(), &restored)
	if restored.IsDeleted || restored.Position != 2 || restored.Title != "a" {
		t.Errorf("Expected restored after b, got %+v", restored)
	}
	list = decodeList(t, doRequest(router, user, "GET", "/api/bookmarks", nil))
	if titles(list) != "b,a" {
		t.Errorf("Expected order b,a after restore, got %s", titles(list))
	}

	doRequest(router, user, "DELETE", "/api/bookmarks/"+b.ID, nil)
	if resp := doRequest(router, user, "DELETE", "/api/trash/"+b.ID, nil); resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
	if resp := doRequest(router, user, "DELETE", "/api/trash/"+b.ID, nil); resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 after purge, got %d", resp.Code)
	}
	if trash := decodeList(t, doRequest(router, user, "GET", "/api/trash", nil)); len(trash) != 0 {
		t.Errorf("Expected empty trash, got %d", len(trash))
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(r *bufio.Reader) (sseEvent, error) {
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" || ev.data != "" {
				return ev, nil
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

// nextBookmarks skips heartbeats and returns the next list event.
func nextBookmarks(t *testing.T, r *bufio.Reader) []models.Bookmark {
	for {
		ev, err := readEvent(r)
		if err != nil {
			t.Fatalf("Stream ended: %v", err)
		}
		if ev.name != EventBookmarks {
			continue
		}
		var list []models.Bookmark
		if err := json.Unmarshal([]byte(ev.data), &list); err != nil {
			t.Fatalf("Bad bookmarks payload %q: %v", ev.data, err)
		}
		return list
	}
}

func TestStream(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	broker := feed.NewMemory()
	router, h := setupTestRouter(db, broker)
	h.heartbeat = 20 * time.Millisecond

	srv := httptest.NewServer(router)
	defer srv.Close()

	addBookmark(t, router, user, "first", "https://first.example")

	req, _ := http.NewRequest("GET", srv.URL+"/api/bookmarks/stream", nil)
	req.Header.Set("Authorization", getAuthHeader(user))
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Stream request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Unexpected content type %s", ct)
	}

	r := bufio.NewReader(resp.Body)
	if got := titles(nextBookmarks(t, r)); got != "first" {
		t.Errorf("Expected initial snapshot 'first', got %q", got)
	}

	addBookmark(t, router, user, "second", "https://second.example")
	if got := titles(nextBookmarks(t, r)); got != "first,second" {
		t.Errorf("Expected 'first,second' after insert, got %q", got)
	}

	sawPing := false
	for i := 0; i < 10 && !sawPing; i++ {
		ev, err := readEvent(r)
		if err != nil {
			t.Fatalf("Stream ended: %v", err)
		}
		sawPing = ev.name == EventPing
	}
	if !sawPing {
		t.Error("Expected a heartbeat event")
	}

	resp.Body.Close()
	deadline := time.Now().Add(2 * time.Second)
	for broker.Subscribers(user.ID) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := broker.Subscribers(user.ID); n != 0 {
		t.Errorf("Expected subscription released after disconnect, got %d", n)
	}
}

func TestStreamClosedFeed(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, "test@example.com")
	broker := feed.NewMemory()
	router, _ := setupTestRouter(db, broker)
	broker.Close()

	resp := doRequest(router, user, "GET", "/api/bookmarks/stream", nil)
	if resp.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.Code)
	}
}
