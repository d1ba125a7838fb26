package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"zedflip/internal/app/commands"
	adminapp "zedflip/internal/app/handlers/admin"
	chatapp "zedflip/internal/app/handlers/chat"
	listingapp "zedflip/internal/app/handlers/listings"
	"zedflip/internal/app/middleware"
	appoutbox "zedflip/internal/app/outbox"
	"zedflip/internal/app/queries"
	"zedflip/internal/app/realtime"
	authsvc "zedflip/internal/app/services/auth"
	domainlistings "zedflip/internal/domain/listings"
	"zedflip/internal/domain/shared/money"
	domainuser "zedflip/internal/domain/user"
	"zedflip/internal/infra/config"
	"zedflip/internal/infra/obs"
	"zedflip/internal/infra/security"
	"zedflip/internal/infra/storage/memory"
)

const testPassword = "correct-horse"

type testEnv struct {
	router   *gin.Engine
	registry *realtime.Registry
	tokens   map[string]string
	mail     *mailRecorder
}

type mailRecorder struct {
	mu        sync.Mutex
	templates []string
}

func (m *mailRecorder) Send(_ context.Context, _, template string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, template)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := memory.NewFactory()
	hasher := security.BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	users := []struct {
		id, name string
		admin    bool
	}{
		{"alice", "Alice Banda", false},
		{"bob", "Bob Phiri", false},
		{"carol", "Carol Zulu", false},
		{"admin", "Site Admin", true},
	}
	for _, u := range users {
		user, err := domainuser.NewUser(domainuser.CreateParams{
			ID:           domainuser.ID(u.id),
			Email:        u.id + "@example.com",
			Name:         u.name,
			City:         "Lusaka",
			PasswordHash: hash,
			CreatedAt:    now,
		})
		if err != nil {
			t.Fatalf("seed user: %v", err)
		}
		if u.admin {
			if err := user.EnsureRole(domainuser.RoleAdmin, now); err != nil {
				t.Fatalf("grant admin: %v", err)
			}
		}
		if err := factory.UsersRepo.Save(ctx, user); err != nil {
			t.Fatalf("save user: %v", err)
		}
	}
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:     "listing-1",
		Seller: "bob",
		Details: domainlistings.Details{
			Title:       "Defy chest freezer",
			Description: "210 litre chest freezer, works perfectly, moving sale.",
			Price:       money.Must(280000, money.ZMW),
			Category:    "appliances",
			Condition:   domainlistings.ConditionGood,
			City:        "Lusaka",
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	if err := factory.ListingsRepo.Save(ctx, listing); err != nil {
		t.Fatalf("save listing: %v", err)
	}

	issuer, err := security.NewJWTIssuer("test-secret-0123456789", "zedflip-test")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	sessions := memory.NewSessionStore()
	mail := &mailRecorder{}
	auth := &authsvc.Service{
		Users:     factory.UsersRepo,
		Sessions:  sessions,
		Passwords: hasher,
		Tokens:    issuer,
		Email:     mail,
		Codes:     func() (string, error) { return "123456", nil },
		Logger:    logger,
	}

	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, logger)
	box := memory.NewOutbox(nil)
	encoder := appoutbox.JSONEventEncoder{}

	cb := commands.NewInMemoryBus()
	commands.RegisterHandler(cb, chatapp.StartConversationCommand{}.Key(), &chatapp.StartConversationHandler{UoWFactory: factory, Outbox: box, Encoder: encoder, Notifier: hub, Logger: logger})
	commands.RegisterHandler(cb, chatapp.SendMessageCommand{}.Key(), &chatapp.SendMessageHandler{UoWFactory: factory, Outbox: box, Encoder: encoder, Notifier: hub, Logger: logger})
	commands.RegisterHandler(cb, chatapp.MarkReadCommand{}.Key(), &chatapp.MarkReadHandler{UoWFactory: factory, Notifier: hub})
	commands.RegisterHandler(cb, chatapp.OpenConversationCommand{}.Key(), &chatapp.OpenConversationHandler{UoWFactory: factory, Notifier: hub})
	commands.RegisterHandler(cb, adminapp.ToggleBanCommand{}.Key(), &adminapp.ToggleBanHandler{UoWFactory: factory, Sessions: sessions, Logger: logger})
	qb := queries.NewInMemoryBus()
	queries.RegisterHandler(qb, chatapp.ListConversationsQuery{}.Key(), &chatapp.ListConversationsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, chatapp.UnreadCountQuery{}.Key(), &chatapp.UnreadCountHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, chatapp.GetConversationQuery{}.Key(), &chatapp.GetConversationHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, adminapp.StatsQuery{}.Key(), &adminapp.StatsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, adminapp.ListListingsQuery{}.Key(), &adminapp.ListListingsHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, listingapp.SellerProfileQuery{}.Key(), &listingapp.SellerProfileHandler{UoWFactory: factory})
	queries.RegisterHandler(qb, listingapp.SellerListingsQuery{}.Key(), &listingapp.SellerListingsHandler{UoWFactory: factory})

	cmds := middleware.ChainCommands(cb,
		middleware.Validation(middleware.SelfValidator{}),
		middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), nil),
		middleware.OutboxFlush(box, logger),
		middleware.Transaction(factory, logger),
	)
	qs := middleware.ChainQueries(qb, middleware.QueryValidation(middleware.SelfValidator{}))

	authMW := AuthMiddleware{Service: auth, Logger: logger}
	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{Logger: logger}, obs.HealthHandlers{}, Handlers{
		Chat:    ChatHandler{Commands: cmds, Queries: qs, Logger: logger},
		Listing: ListingHandler{Commands: cmds, Queries: qs, Logger: logger},
		Auth:    AuthHandler{Service: auth, Logger: logger},
		Admin:   AdminHandler{Commands: cmds, Queries: qs, Logger: logger},
		Socket: SocketHandler{
			Auth:       auth,
			Commands:   cmds,
			Queries:    qs,
			Registry:   registry,
			Notifier:   hub,
			SendBuffer: 16,
			Logger:     logger,
		},
		AuthMiddleware: authMW.Handle,
	})

	env := &testEnv{router: router, registry: registry, tokens: map[string]string{}, mail: mail}
	for _, u := range users {
		res, err := auth.Login(ctx, authsvc.LoginParams{Email: u.id + "@example.com", Password: testPassword})
		if err != nil {
			t.Fatalf("login %s: %v", u.id, err)
		}
		env.tokens[u.id] = res.Token
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: body is not an envelope: %q", method, path, rec.Body.String())
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
	return out
}

type conversationView struct {
	ID          string `json:"id"`
	UnreadCount int    `json:"unreadCount"`
	Messages    []struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		IsRead  bool   `json:"isRead"`
	} `json:"messages"`
}

func (e *testEnv) startConversation(t *testing.T) string {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/v1/conversations", "alice", map[string]string{
		"listingId": "listing-1",
		"message":   "Is the freezer still available?",
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("start: %d %+v", status, env)
	}
	return decodeData[conversationView](t, env).ID
}

func TestConversationFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	id := e.startConversation(t)

	status, env := e.do(t, http.MethodPost, "/api/v1/conversations", "alice", map[string]string{"listingId": "listing-1"})
	if status != http.StatusOK || decodeData[conversationView](t, env).ID != id {
		t.Fatalf("second start should return the existing conversation: %d %s", status, env.Data)
	}

	status, env = e.do(t, http.MethodGet, "/api/v1/conversations/unread", "bob", nil)
	if status != http.StatusOK {
		t.Fatalf("unread route: %d %+v", status, env)
	}
	if got := decodeData[struct {
		UnreadCount int `json:"unreadCount"`
	}](t, env).UnreadCount; got != 1 {
		t.Fatalf("bob unread = %d, want 1", got)
	}

	status, env = e.do(t, http.MethodGet, "/api/v1/conversations/"+id, "bob", nil)
	if status != http.StatusOK {
		t.Fatalf("get: %d %+v", status, env)
	}
	view := decodeData[conversationView](t, env)
	if len(view.Messages) != 1 || view.UnreadCount != 0 {
		t.Fatalf("unexpected view %+v", view)
	}

	_, env = e.do(t, http.MethodGet, "/api/v1/conversations/unread", "bob", nil)
	if got := decodeData[struct {
		UnreadCount int `json:"unreadCount"`
	}](t, env).UnreadCount; got != 0 {
		t.Fatalf("opening the thread should mark it read, unread = %d", got)
	}

	status, env = e.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/messages", "bob", map[string]string{"content": "Yes, come see it Saturday"})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("send: %d %+v", status, env)
	}

	status, env = e.do(t, http.MethodGet, "/api/v1/conversations", "alice", nil)
	if status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	list := decodeData[[]conversationView](t, env)
	if len(list) != 1 || list[0].UnreadCount != 1 {
		t.Fatalf("alice list %+v", list)
	}

	status, env = e.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/read", "alice", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("mark read: %d %+v", status, env)
	}
}

func TestNonParticipantCannotTellConversationExists(t *testing.T) {
	e := newTestEnv(t)
	id := e.startConversation(t)

	existingStatus, existing := e.do(t, http.MethodGet, "/api/v1/conversations/"+id, "carol", nil)
	missingStatus, missing := e.do(t, http.MethodGet, "/api/v1/conversations/does-not-exist", "carol", nil)
	if existingStatus != http.StatusNotFound || missingStatus != http.StatusNotFound {
		t.Fatalf("statuses %d and %d, want 404", existingStatus, missingStatus)
	}
	if existing.Message != missing.Message || existing.Message != "Conversation not found" {
		t.Fatalf("messages differ: %q vs %q", existing.Message, missing.Message)
	}
	if existing.Success || len(existing.Data) != 0 {
		t.Fatalf("failure envelope carries data: %+v", existing)
	}

	status, env := e.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/messages", "carol", map[string]string{"content": "let me in"})
	if status != http.StatusNotFound || env.Message != "Conversation not found" {
		t.Fatalf("non-participant send: %d %+v", status, env)
	}
}

func TestRequestFailures(t *testing.T) {
	e := newTestEnv(t)
	cases := []struct {
		name    string
		method  string
		path    string
		user    string
		body    any
		status  int
		message string
	}{
		{"no token", http.MethodGet, "/api/v1/conversations", "", nil, http.StatusUnauthorized, "Not authorized"},
		{"own listing", http.MethodPost, "/api/v1/conversations", "bob", map[string]string{"listingId": "listing-1"}, http.StatusBadRequest, ""},
		{"unknown listing", http.MethodPost, "/api/v1/conversations", "alice", map[string]string{"listingId": "nope"}, http.StatusNotFound, ""},
		{"missing listing id", http.MethodPost, "/api/v1/conversations", "alice", map[string]string{}, http.StatusBadRequest, ""},
		{"admin only", http.MethodGet, "/api/v1/admin/stats", "alice", nil, http.StatusForbidden, "Insufficient permissions"},
		{"unknown route", http.MethodGet, "/api/v1/nowhere", "", nil, http.StatusNotFound, "Route not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := e.do(t, tc.method, tc.path, tc.user, tc.body)
			if status != tc.status || env.Success {
				t.Fatalf("got %d %+v, want %d", status, env, tc.status)
			}
			if tc.message != "" && env.Message != tc.message {
				t.Fatalf("message %q, want %q", env.Message, tc.message)
			}
		})
	}
}

func TestAdminStatsAndBan(t *testing.T) {
	e := newTestEnv(t)
	status, env := e.do(t, http.MethodGet, "/api/v1/admin/stats", "admin", nil)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("stats: %d %+v", status, env)
	}

	status, env = e.do(t, http.MethodPut, "/api/v1/admin/users/carol/ban", "admin", nil)
	if status != http.StatusOK || env.Message != "User banned" {
		t.Fatalf("ban: %d %+v", status, env)
	}
	status, env = e.do(t, http.MethodGet, "/api/v1/conversations", "carol", nil)
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		t.Fatalf("banned user still served: %d %+v", status, env)
	}
}

func TestIdempotentSendReplaysResult(t *testing.T) {
	e := newTestEnv(t)
	id := e.startConversation(t)
	path := "/api/v1/conversations/" + id + "/messages"
	body := map[string]string{"content": "Can you do K2,500?"}

	_, first := e.do(t, http.MethodPost, path, "alice", body, idempotencyHeader, "retry-1")
	_, second := e.do(t, http.MethodPost, path, "alice", body, idempotencyHeader, "retry-1")
	a := decodeData[struct {
		ID string `json:"id"`
	}](t, first)
	b := decodeData[struct {
		ID string `json:"id"`
	}](t, second)
	if a.ID == "" || a.ID != b.ID {
		t.Fatalf("retry appended again: %q vs %q", a.ID, b.ID)
	}

	_, env := e.do(t, http.MethodGet, "/api/v1/conversations/"+id, "alice", nil)
	if got := len(decodeData[conversationView](t, env).Messages); got != 2 {
		t.Fatalf("messages = %d, want 2", got)
	}
}

func TestPublicMessage(t *testing.T) {
	cases := []struct{ in, want string }{
		{"chat: conversation not found", "Conversation not found"},
		{"admin: cannot moderate your own account", "Cannot moderate your own account"},
		{"plain failure", "Plain failure"},
	}
	for _, tc := range cases {
		if got := publicMessage(errors.New(tc.in)); got != tc.want {
			t.Errorf("publicMessage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFreshThreadRendersEmptyMessages(t *testing.T) {
	e := newTestEnv(t)
	status, env := e.do(t, http.MethodPost, "/api/v1/conversations", "alice", map[string]string{"listingId": "listing-1"})
	if status != http.StatusCreated {
		t.Fatalf("start: %d %+v", status, env)
	}
	id := decodeData[conversationView](t, env).ID

	status, env = e.do(t, http.MethodGet, "/api/v1/conversations/"+id, "bob", nil)
	if status != http.StatusOK {
		t.Fatalf("get: %d %+v", status, env)
	}
	if !bytes.Contains(env.Data, []byte(`"messages":[]`)) {
		t.Fatalf("detail view dropped the messages array: %s", env.Data)
	}

	_, env = e.do(t, http.MethodGet, "/api/v1/conversations", "bob", nil)
	if bytes.Contains(env.Data, []byte(`"messages"`)) {
		t.Fatalf("inbox view should not carry messages: %s", env.Data)
	}
}

type profileView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	City       string `json:"city"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isEmailVerified"`
}

func TestEmailVerificationOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	status, env := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "dora@example.com", "name": "Dora Mumba", "password": "secret1",
	})
	if status != http.StatusCreated {
		t.Fatalf("register: %d %+v", status, env)
	}
	registered := decodeData[struct {
		User profileView `json:"user"`
	}](t, env)
	if registered.User.IsVerified {
		t.Fatal("fresh account reported verified")
	}

	steps := []struct {
		name   string
		path   string
		body   map[string]string
		status int
	}{
		{"missing code", "/api/v1/auth/verify-email", map[string]string{"email": "dora@example.com"}, http.StatusBadRequest},
		{"wrong code", "/api/v1/auth/verify-email", map[string]string{"email": "dora@example.com", "code": "000000"}, http.StatusBadRequest},
		{"resend", "/api/v1/auth/resend-verification", map[string]string{"email": "dora@example.com"}, http.StatusOK},
		{"right code", "/api/v1/auth/verify-email", map[string]string{"email": "dora@example.com", "code": "123456"}, http.StatusOK},
		{"resend when verified", "/api/v1/auth/resend-verification", map[string]string{"email": "dora@example.com"}, http.StatusBadRequest},
		{"resend unknown", "/api/v1/auth/resend-verification", map[string]string{"email": "nobody@example.com"}, http.StatusNotFound},
	}
	for _, step := range steps {
		status, env := e.do(t, http.MethodPost, step.path, "", step.body)
		if status != step.status {
			t.Fatalf("%s: %d %+v", step.name, status, env)
		}
	}

	want := []string{authsvc.TemplateVerifyEmail, authsvc.TemplateVerifyEmail, authsvc.TemplateWelcome}
	if len(e.mail.templates) != len(want) {
		t.Fatalf("mail sent: %v", e.mail.templates)
	}
	for i := range want {
		if e.mail.templates[i] != want[i] {
			t.Fatalf("mail sent: %v", e.mail.templates)
		}
	}
}

func TestChangePasswordOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	path := "/api/v1/auth/password"

	if status, _ := e.do(t, http.MethodPut, path, "", map[string]string{"currentPassword": testPassword, "newPassword": "brand-new"}); status != http.StatusUnauthorized {
		t.Fatalf("anonymous change: %d", status)
	}
	if status, env := e.do(t, http.MethodPut, path, "alice", map[string]string{"currentPassword": "not-it", "newPassword": "brand-new"}); status != http.StatusUnauthorized || env.Message != "Current password is incorrect" {
		t.Fatalf("wrong current: %d %+v", status, env)
	}
	if status, _ := e.do(t, http.MethodPut, path, "alice", map[string]string{"currentPassword": testPassword, "newPassword": "abc"}); status != http.StatusBadRequest {
		t.Fatalf("short password: %d", status)
	}
	if status, env := e.do(t, http.MethodPut, path, "alice", map[string]string{"currentPassword": testPassword, "newPassword": "brand-new"}); status != http.StatusOK {
		t.Fatalf("change: %d %+v", status, env)
	}
	if status, _ := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": testPassword}); status != http.StatusUnauthorized {
		t.Fatalf("old password accepted: %d", status)
	}
	if status, _ := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@example.com", "password": "brand-new"}); status != http.StatusOK {
		t.Fatalf("new password rejected: %d", status)
	}
}

func TestUserProfilesOverHTTP(t *testing.T) {
	e := newTestEnv(t)

	status, env := e.do(t, http.MethodGet, "/api/v1/users/bob", "", nil)
	if status != http.StatusOK {
		t.Fatalf("profile: %d %+v", status, env)
	}
	profile := decodeData[struct {
		User     profileView `json:"user"`
		Listings []struct {
			ID string `json:"id"`
		} `json:"listings"`
	}](t, env)
	if profile.User.Name != "Bob Phiri" || profile.User.Email != "" {
		t.Fatalf("public profile: %+v", profile.User)
	}
	if len(profile.Listings) != 1 || profile.Listings[0].ID != "listing-1" {
		t.Fatalf("profile listings: %+v", profile.Listings)
	}

	status, env = e.do(t, http.MethodGet, "/api/v1/users/bob/listings?status=all", "", nil)
	if status != http.StatusOK {
		t.Fatalf("seller listings: %d %+v", status, env)
	}
	if total := decodeData[struct {
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}](t, env).Pagination.Total; total != 1 {
		t.Fatalf("seller listings total = %d", total)
	}
	if status, _ := e.do(t, http.MethodGet, "/api/v1/users/bob/listings?status=bogus", "", nil); status != http.StatusBadRequest {
		t.Fatalf("bad status filter: %d", status)
	}
	if status, _ := e.do(t, http.MethodGet, "/api/v1/users/ghost", "", nil); status != http.StatusNotFound {
		t.Fatalf("unknown user: %d", status)
	}

	if status, _ := e.do(t, http.MethodPut, "/api/v1/users/profile", "", map[string]string{"city": "Kitwe"}); status != http.StatusUnauthorized {
		t.Fatalf("anonymous profile update: %d", status)
	}
	status, env = e.do(t, http.MethodPut, "/api/v1/users/profile", "alice", map[string]string{"city": "kitwe"})
	if status != http.StatusOK {
		t.Fatalf("profile update: %d %+v", status, env)
	}
	if updated := decodeData[profileView](t, env); updated.City != "Kitwe" || updated.Name != "Alice Banda" {
		t.Fatalf("profile update: %+v", updated)
	}
	if status, _ := e.do(t, http.MethodPut, "/api/v1/users/profile", "alice", map[string]string{"phone": "0977"}); status != http.StatusBadRequest {
		t.Fatalf("bad phone: %d", status)
	}
}

func TestAdminListingsOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	if status, _ := e.do(t, http.MethodGet, "/api/v1/admin/listings", "alice", nil); status != http.StatusForbidden {
		t.Fatalf("non-admin: %d", status)
	}
	status, env := e.do(t, http.MethodGet, "/api/v1/admin/listings?status=all&search=freezer", "admin", nil)
	if status != http.StatusOK {
		t.Fatalf("admin listings: %d %+v", status, env)
	}
	page := decodeData[struct {
		Listings []struct {
			ID string `json:"id"`
		} `json:"listings"`
	}](t, env)
	if len(page.Listings) != 1 || page.Listings[0].ID != "listing-1" {
		t.Fatalf("admin listings: %+v", page.Listings)
	}
	if status, _ := e.do(t, http.MethodGet, "/api/v1/admin/listings?status=hidden", "admin", nil); status != http.StatusBadRequest {
		t.Fatalf("bad status filter: %d", status)
	}
}
