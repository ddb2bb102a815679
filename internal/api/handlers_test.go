package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"chatvault/internal/auth"
	"chatvault/internal/config"
	"chatvault/internal/store"
	"chatvault/internal/storage"
	"chatvault/internal/worker"
)

func TestHandlersEndToEndFlow(t *testing.T) {
	router, db, titles := newTestServer(t, config.Entitlements{GuestMessagesPerDay: 5, RegularMessagesPerDay: 10})

	authHeader := registerAndLogin(t, router)
	chatID := "chat-e2e"

	postResp := doJSONRequest(t, router, http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]any{
		"messages": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"type": "text", "text": "Plan a trip to Lisbon"}}},
		},
	}, authHeader)
	assertStatus(t, postResp, http.StatusCreated)
	var postBody struct {
		Chat struct {
			ID         string `json:"id"`
			Visibility string `json:"visibility"`
		} `json:"chat"`
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	decodeJSON(t, postResp.Body.Bytes(), &postBody)
	if postBody.Chat.ID != chatID || postBody.Chat.Visibility != "private" {
		t.Fatalf("unexpected chat %+v", postBody.Chat)
	}
	if len(postBody.Messages) != 1 || postBody.Messages[0].ID == "" {
		t.Fatalf("expected one saved message with id, got %+v", postBody.Messages)
	}
	if got := titles.scheduled(); len(got) != 1 || got[0].ChatID != chatID {
		t.Fatalf("expected one title task for %s, got %+v", chatID, got)
	}

	replyResp := doJSONRequest(t, router, http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]any{
		"messages": []map[string]any{
			{"role": "assistant", "parts": []map[string]string{{"type": "text", "text": "Here is a plan"}}},
		},
	}, authHeader)
	assertStatus(t, replyResp, http.StatusCreated)

	listResp := doJSONRequest(t, router, http.MethodGet, "/api/chats/"+chatID+"/messages", nil, authHeader)
	assertStatus(t, listResp, http.StatusOK)
	var listBody struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listBody)
	if len(listBody.Messages) != 2 || listBody.Messages[0].Role != "user" || listBody.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages %+v", listBody.Messages)
	}

	voteResp := doJSONRequest(t, router, http.MethodPatch, "/api/vote", map[string]string{
		"chatId":    chatID,
		"messageId": postBody.Messages[0].ID,
		"type":      "up",
	}, authHeader)
	assertStatus(t, voteResp, http.StatusOK)

	votesResp := doJSONRequest(t, router, http.MethodGet, "/api/chats/"+chatID+"/votes", nil, authHeader)
	assertStatus(t, votesResp, http.StatusOK)
	var votes []struct {
		MessageID string `json:"messageId"`
		IsUpvoted bool   `json:"isUpvoted"`
	}
	decodeJSON(t, votesResp.Body.Bytes(), &votes)
	if len(votes) != 1 || !votes[0].IsUpvoted {
		t.Fatalf("unexpected votes %+v", votes)
	}

	streamResp := doJSONRequest(t, router, http.MethodPost, "/api/chats/"+chatID+"/streams", map[string]string{"id": "stream-1"}, authHeader)
	assertStatus(t, streamResp, http.StatusCreated)
	streamsResp := doJSONRequest(t, router, http.MethodGet, "/api/chats/"+chatID+"/streams", nil, authHeader)
	assertStatus(t, streamsResp, http.StatusOK)
	var streams struct {
		StreamIDs []string `json:"streamIds"`
	}
	decodeJSON(t, streamsResp.Body.Bytes(), &streams)
	if len(streams.StreamIDs) != 1 || streams.StreamIDs[0] != "stream-1" {
		t.Fatalf("unexpected streams %+v", streams.StreamIDs)
	}

	deleteResp := doJSONRequest(t, router, http.MethodDelete, "/api/chats/"+chatID, nil, authHeader)
	assertStatus(t, deleteResp, http.StatusOK)
	for _, table := range []string{"chats", "messages", "votes", "streams"} {
		if n := countRows(t, db, table); n != 0 {
			t.Fatalf("expected %s to be empty after delete, found %d rows", table, n)
		}
	}

	missingResp := doJSONRequest(t, router, http.MethodGet, "/api/chats/"+chatID, nil, authHeader)
	assertStatus(t, missingResp, http.StatusNotFound)
	assertCode(t, missingResp, "not_found:chat")
}

func TestHandlersRequireAuth(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{})
	resp := doJSONRequest(t, router, http.MethodGet, "/api/history", nil, nil)
	assertStatus(t, resp, http.StatusUnauthorized)
	assertCode(t, resp, "unauthorized")

	bad := doJSONRequest(t, router, http.MethodGet, "/api/history", nil, map[string]string{"Authorization": "Bearer nope"})
	assertStatus(t, bad, http.StatusUnauthorized)
}

func TestHistoryPaginationEndpoint(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{})
	authHeader := registerAndLogin(t, router)

	for i := 0; i < 7; i++ {
		resp := doJSONRequest(t, router, http.MethodPost, "/api/chats", map[string]string{
			"id":    fmt.Sprintf("chat-%d", i),
			"title": fmt.Sprintf("Chat %d", i),
		}, authHeader)
		assertStatus(t, resp, http.StatusCreated)
	}

	seen := map[string]bool{}
	path := "/api/history?limit=3"
	for pages := 0; ; pages++ {
		if pages > 5 {
			t.Fatalf("pagination did not terminate")
		}
		resp := doJSONRequest(t, router, http.MethodGet, path, nil, authHeader)
		assertStatus(t, resp, http.StatusOK)
		var page struct {
			Chats []struct {
				ID string `json:"id"`
			} `json:"chats"`
			HasMore bool `json:"hasMore"`
		}
		decodeJSON(t, resp.Body.Bytes(), &page)
		if len(page.Chats) > 3 {
			t.Fatalf("page exceeds limit: %d", len(page.Chats))
		}
		for _, chat := range page.Chats {
			if seen[chat.ID] {
				t.Fatalf("chat %s returned twice", chat.ID)
			}
			seen[chat.ID] = true
		}
		if !page.HasMore {
			break
		}
		path = "/api/history?limit=3&ending_before=" + page.Chats[len(page.Chats)-1].ID
	}
	if len(seen) != 7 {
		t.Fatalf("expected to visit 7 chats, visited %d", len(seen))
	}

	both := doJSONRequest(t, router, http.MethodGet, "/api/history?starting_after=chat-1&ending_before=chat-2", nil, authHeader)
	assertStatus(t, both, http.StatusBadRequest)
	assertCode(t, both, "bad_request:api")

	missing := doJSONRequest(t, router, http.MethodGet, "/api/history?ending_before=ghost", nil, authHeader)
	assertStatus(t, missing, http.StatusNotFound)
	assertCode(t, missing, "not_found:database")

	badLimit := doJSONRequest(t, router, http.MethodGet, "/api/history?limit=abc", nil, authHeader)
	assertStatus(t, badLimit, http.StatusBadRequest)
}

func TestPostMessagesRateLimited(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{GuestMessagesPerDay: 1, RegularMessagesPerDay: 2})
	authHeader := registerAndLogin(t, router)

	send := func() *httptest.ResponseRecorder {
		return doJSONRequest(t, router, http.MethodPost, "/api/chats/limited/messages", map[string]any{
			"messages": []map[string]any{{"role": "user", "parts": []map[string]string{{"type": "text", "text": "hi"}}}},
		}, authHeader)
	}
	assertStatus(t, send(), http.StatusCreated)
	assertStatus(t, send(), http.StatusCreated)
	limited := send()
	assertStatus(t, limited, http.StatusTooManyRequests)
	assertCode(t, limited, "rate_limit:chat")

	// Assistant replies never count against the entitlement.
	reply := doJSONRequest(t, router, http.MethodPost, "/api/chats/limited/messages", map[string]any{
		"messages": []map[string]any{{"role": "assistant", "parts": []map[string]string{{"type": "text", "text": "ok"}}}},
	}, authHeader)
	assertStatus(t, reply, http.StatusCreated)
}

func TestGuestEntitlement(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{GuestMessagesPerDay: 1, RegularMessagesPerDay: 10})
	guestResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/guest", nil, nil)
	assertStatus(t, guestResp, http.StatusCreated)
	var guest struct {
		Type      string `json:"type"`
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, guestResp.Body.Bytes(), &guest)
	if guest.Type != "guest" || guest.AuthToken == "" {
		t.Fatalf("unexpected guest session %+v", guest)
	}
	authHeader := map[string]string{"Authorization": "Bearer " + guest.AuthToken}
	body := map[string]any{"messages": []map[string]any{{"parts": []map[string]string{{"type": "text", "text": "hi"}}}}}
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/chats/g/messages", body, authHeader), http.StatusCreated)
	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/chats/g/messages", body, authHeader), http.StatusTooManyRequests)
}

func TestPreferencesEndpoints(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{})
	authHeader := registerAndLogin(t, router)

	getResp := doJSONRequest(t, router, http.MethodGet, "/api/preferences", nil, authHeader)
	assertStatus(t, getResp, http.StatusOK)
	var prefs struct {
		Theme     string `json:"theme"`
		Currency  string `json:"portfolio_currency"`
		Assistant struct {
			InvestmentStyle int `json:"investmentStyle"`
		} `json:"assistant"`
	}
	decodeJSON(t, getResp.Body.Bytes(), &prefs)
	if prefs.Theme != "system" || prefs.Currency != "USD" || prefs.Assistant.InvestmentStyle != 50 {
		t.Fatalf("unexpected defaults %+v", prefs)
	}

	invalid := doJSONRequest(t, router, http.MethodPost, "/api/preferences", map[string]string{"theme": "neon"}, authHeader)
	assertStatus(t, invalid, http.StatusBadRequest)

	saveResp := doJSONRequest(t, router, http.MethodPost, "/api/preferences", map[string]any{
		"theme":     "dark",
		"assistant": map[string]int{"investmentStyle": 80},
	}, authHeader)
	assertStatus(t, saveResp, http.StatusOK)

	again := doJSONRequest(t, router, http.MethodGet, "/api/preferences", nil, authHeader)
	assertStatus(t, again, http.StatusOK)
	decodeJSON(t, again.Body.Bytes(), &prefs)
	if prefs.Theme != "dark" || prefs.Currency != "USD" || prefs.Assistant.InvestmentStyle != 80 {
		t.Fatalf("preferences not merged over defaults: %+v", prefs)
	}
}

func TestPrivateChatVisibility(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{})
	owner := registerAndLogin(t, router)
	other := registerAndLogin(t, router)

	createResp := doJSONRequest(t, router, http.MethodPost, "/api/chats", map[string]string{"id": "secret"}, owner)
	assertStatus(t, createResp, http.StatusCreated)

	forbidden := doJSONRequest(t, router, http.MethodGet, "/api/chats/secret", nil, other)
	assertStatus(t, forbidden, http.StatusForbidden)
	assertCode(t, forbidden, "forbidden:chat")

	notOwner := doJSONRequest(t, router, http.MethodPatch, "/api/chats/secret/visibility", map[string]string{"visibility": "public"}, other)
	assertStatus(t, notOwner, http.StatusForbidden)

	publish := doJSONRequest(t, router, http.MethodPatch, "/api/chats/secret/visibility", map[string]string{"visibility": "public"}, owner)
	assertStatus(t, publish, http.StatusOK)

	visible := doJSONRequest(t, router, http.MethodGet, "/api/chats/secret", nil, other)
	assertStatus(t, visible, http.StatusOK)

	deleteByOther := doJSONRequest(t, router, http.MethodDelete, "/api/chats/secret", nil, other)
	assertStatus(t, deleteByOther, http.StatusForbidden)

	invalid := doJSONRequest(t, router, http.MethodPatch, "/api/chats/secret/visibility", map[string]string{"visibility": "everyone"}, owner)
	assertStatus(t, invalid, http.StatusBadRequest)
}

func TestVoteOnForeignMessageRejected(t *testing.T) {
	router, db, _ := newTestServer(t, config.Entitlements{RegularMessagesPerDay: 10})
	owner := registerAndLogin(t, router)
	other := registerAndLogin(t, router)

	postResp := doJSONRequest(t, router, http.MethodPost, "/api/chats/shared/messages", map[string]any{
		"visibility": "public",
		"messages":   []map[string]any{{"role": "user", "parts": []map[string]string{{"type": "text", "text": "hi"}}}},
	}, owner)
	assertStatus(t, postResp, http.StatusCreated)
	var posted struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	decodeJSON(t, postResp.Body.Bytes(), &posted)

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/chats", map[string]string{"id": "mine"}, other), http.StatusCreated)

	vote := doJSONRequest(t, router, http.MethodPatch, "/api/vote", map[string]string{
		"chatId":    "mine",
		"messageId": posted.Messages[0].ID,
		"type":      "up",
	}, other)
	assertStatus(t, vote, http.StatusNotFound)
	assertCode(t, vote, "not_found:database")
	if n := countRows(t, db, "votes"); n != 0 {
		t.Fatalf("expected no votes stored, got %d", n)
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodDelete, "/api/account", nil, owner), http.StatusOK)
}

func TestDeleteTrailingMessages(t *testing.T) {
	router, db, _ := newTestServer(t, config.Entitlements{RegularMessagesPerDay: 10})
	authHeader := registerAndLogin(t, router)

	var ids []string
	for i := 0; i < 3; i++ {
		resp := doJSONRequest(t, router, http.MethodPost, "/api/chats/edit/messages", map[string]any{
			"messages": []map[string]any{{"role": "user", "parts": []map[string]string{{"type": "text", "text": strconv.Itoa(i)}}}},
		}, authHeader)
		assertStatus(t, resp, http.StatusCreated)
		var body struct {
			Messages []struct {
				ID string `json:"id"`
			} `json:"messages"`
		}
		decodeJSON(t, resp.Body.Bytes(), &body)
		ids = append(ids, body.Messages[0].ID)
		time.Sleep(2 * time.Millisecond)
	}

	resp := doJSONRequest(t, router, http.MethodDelete, "/api/messages/"+ids[1]+"/trailing", nil, authHeader)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		DeletedCount int `json:"deletedCount"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.DeletedCount != 2 {
		t.Fatalf("expected 2 trailing messages deleted, got %d", body.DeletedCount)
	}
	if n := countRows(t, db, "messages"); n != 1 {
		t.Fatalf("expected 1 message left, got %d", n)
	}

	missing := doJSONRequest(t, router, http.MethodDelete, "/api/messages/ghost/trailing", nil, authHeader)
	assertStatus(t, missing, http.StatusNotFound)
}

func TestDocumentEndpoints(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{})
	owner := registerAndLogin(t, router)
	other := registerAndLogin(t, router)

	missing := doJSONRequest(t, router, http.MethodGet, "/api/documents/doc-1", nil, owner)
	assertStatus(t, missing, http.StatusNotFound)
	assertCode(t, missing, "not_found:document")

	var first struct {
		CreatedAt time.Time `json:"createdAt"`
	}
	for i, content := range []string{"draft", "final"} {
		resp := doJSONRequest(t, router, http.MethodPost, "/api/documents/doc-1", map[string]any{
			"title":   "Essay",
			"content": content,
			"kind":    "text",
		}, owner)
		assertStatus(t, resp, http.StatusCreated)
		if i == 0 {
			decodeJSON(t, resp.Body.Bytes(), &first)
		}
	}

	listResp := doJSONRequest(t, router, http.MethodGet, "/api/documents/doc-1", nil, owner)
	assertStatus(t, listResp, http.StatusOK)
	var revisions []struct {
		Content string `json:"content"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &revisions)
	if len(revisions) != 2 || revisions[0].Content != "draft" || revisions[1].Content != "final" {
		t.Fatalf("unexpected revisions %+v", revisions)
	}

	foreign := doJSONRequest(t, router, http.MethodGet, "/api/documents/doc-1", nil, other)
	assertStatus(t, foreign, http.StatusForbidden)
	assertCode(t, foreign, "forbidden:document")

	suggestResp := doJSONRequest(t, router, http.MethodPost, "/api/documents/doc-1/suggestions", map[string]any{
		"suggestions": []map[string]string{{"originalText": "final", "suggestedText": "finished"}},
	}, owner)
	assertStatus(t, suggestResp, http.StatusCreated)

	suggestionsResp := doJSONRequest(t, router, http.MethodGet, "/api/documents/doc-1/suggestions", nil, owner)
	assertStatus(t, suggestionsResp, http.StatusOK)
	var suggestions []struct {
		SuggestedText string `json:"suggestedText"`
	}
	decodeJSON(t, suggestionsResp.Body.Bytes(), &suggestions)
	if len(suggestions) != 1 || suggestions[0].SuggestedText != "finished" {
		t.Fatalf("unexpected suggestions %+v", suggestions)
	}

	ts := strconv.FormatInt(first.CreatedAt.UnixMilli(), 10)
	deleteResp := doJSONRequest(t, router, http.MethodDelete, "/api/documents/doc-1?timestamp="+ts, nil, owner)
	assertStatus(t, deleteResp, http.StatusOK)
	var deleted []struct {
		Content string `json:"content"`
	}
	decodeJSON(t, deleteResp.Body.Bytes(), &deleted)
	if len(deleted) != 1 || deleted[0].Content != "final" {
		t.Fatalf("expected the newer revision to be deleted, got %+v", deleted)
	}

	// The suggestion pointed at the deleted revision.
	afterResp := doJSONRequest(t, router, http.MethodGet, "/api/documents/doc-1/suggestions", nil, owner)
	assertStatus(t, afterResp, http.StatusOK)
	decodeJSON(t, afterResp.Body.Bytes(), &suggestions)
	if len(suggestions) != 0 {
		t.Fatalf("expected suggestions to cascade, got %+v", suggestions)
	}

	badTS := doJSONRequest(t, router, http.MethodDelete, "/api/documents/doc-1?timestamp=yesterday", nil, owner)
	assertStatus(t, badTS, http.StatusBadRequest)
}

func TestDeleteHistoryAndAccount(t *testing.T) {
	router, db, titles := newTestServer(t, config.Entitlements{})
	authHeader := registerAndLogin(t, router)

	for i := 0; i < 3; i++ {
		resp := doJSONRequest(t, router, http.MethodPost, "/api/chats", map[string]string{"id": fmt.Sprintf("h-%d", i)}, authHeader)
		assertStatus(t, resp, http.StatusCreated)
	}

	historyResp := doJSONRequest(t, router, http.MethodDelete, "/api/history", nil, authHeader)
	assertStatus(t, historyResp, http.StatusOK)
	var body struct {
		DeletedCount int `json:"deletedCount"`
	}
	decodeJSON(t, historyResp.Body.Bytes(), &body)
	if body.DeletedCount != 3 {
		t.Fatalf("expected 3 chats deleted, got %d", body.DeletedCount)
	}

	assertStatus(t, doJSONRequest(t, router, http.MethodPost, "/api/chats", map[string]string{"id": "last"}, authHeader), http.StatusCreated)

	accountResp := doJSONRequest(t, router, http.MethodDelete, "/api/account", nil, authHeader)
	assertStatus(t, accountResp, http.StatusOK)
	if n := countRows(t, db, "chats"); n != 0 {
		t.Fatalf("expected no chats after account deletion, got %d", n)
	}
	if n := countRows(t, db, "users"); n != 0 {
		t.Fatalf("expected no users after account deletion, got %d", n)
	}
	if titles.cancelCount() != 2 {
		t.Fatalf("expected title jobs cancelled twice, got %d", titles.cancelCount())
	}

	after := doJSONRequest(t, router, http.MethodGet, "/api/auth/me", nil, authHeader)
	assertStatus(t, after, http.StatusUnauthorized)
}

func TestCookieSessionRequiresCSRF(t *testing.T) {
	router, _, _ := newTestServer(t, config.Entitlements{})
	resp := doJSONRequest(t, router, http.MethodPost, "/api/auth/guest", nil, nil)
	assertStatus(t, resp, http.StatusCreated)

	var authCookie, csrfCookie *http.Cookie
	for _, ck := range resp.Result().Cookies() {
		switch ck.Name {
		case "auth_token":
			authCookie = ck
		case "csrf_token":
			csrfCookie = ck
		}
	}
	if authCookie == nil || csrfCookie == nil {
		t.Fatalf("expected auth and csrf cookies, got %v", resp.Result().Cookies())
	}

	send := func(withHeader bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/chats", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(authCookie)
		req.AddCookie(csrfCookie)
		if withHeader {
			req.Header.Set("X-CSRF-Token", csrfCookie.Value)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}
	assertStatus(t, send(false), http.StatusForbidden)
	assertStatus(t, send(true), http.StatusCreated)
}

type recordingTitles struct {
	mu        sync.Mutex
	tasks     []worker.TitleTask
	cancelled int
}

func (r *recordingTitles) ScheduleTitle(task worker.TitleTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return true
}

func (r *recordingTitles) CancelUser(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
}

func (r *recordingTitles) scheduled() []worker.TitleTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]worker.TitleTask(nil), r.tasks...)
}

func (r *recordingTitles) cancelCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func newTestServer(t *testing.T, entitlements config.Entitlements) (*gin.Engine, *sql.DB, *recordingTitles) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := store.New(db, storage.SQLite)
	authSvc := auth.NewService(db, storage.SQLite, nil, time.Hour)
	titles := &recordingTitles{}
	handler := NewHandler(repo, authSvc, titles, entitlements)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, titles
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func assertCode(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Code != want {
		t.Fatalf("expected error code %q, got %q", want, body.Code)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func registerAndLogin(t *testing.T, router *gin.Engine) map[string]string {
	t.Helper()
	email := fmt.Sprintf("tester_%d@example.com", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token after login")
	}
	return map[string]string{"Authorization": fmt.Sprintf("Bearer %s", loginBody.AuthToken)}
}
