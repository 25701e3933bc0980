package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"chatwire/internal/app/chat"
	"chatwire/internal/app/identity"
	"chatwire/internal/app/store"
	"chatwire/internal/configs"
)

const testJWTSecret = "handler-test-secret"

// fakeIdentityRepo is an in-memory identity.Repository for handler tests.
type fakeIdentityRepo struct {
	mu       sync.Mutex
	accounts map[string]*identity.Account
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{accounts: make(map[string]*identity.Account)}
}

func (f *fakeIdentityRepo) Create(_ context.Context, acct *identity.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.accounts {
		if existing.Username == acct.Username {
			return identity.ErrUsernameTaken
		}
	}
	stored := *acct
	f.accounts[acct.ID] = &stored
	return nil
}

func (f *fakeIdentityRepo) GetByUsername(_ context.Context, username string) (*identity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, acct := range f.accounts {
		if acct.Username == username {
			found := *acct
			return &found, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (f *fakeIdentityRepo) GetByID(_ context.Context, id string) (*identity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	found := *acct
	return &found, nil
}

func (f *fakeIdentityRepo) UpdateUsername(_ context.Context, id string, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for otherID, acct := range f.accounts {
		if otherID != id && acct.Username == username {
			return identity.ErrUsernameTaken
		}
	}
	acct, ok := f.accounts[id]
	if !ok {
		return identity.ErrNotFound
	}
	acct.Username = username
	return nil
}

func (f *fakeIdentityRepo) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[id]
	if !ok {
		return identity.ErrNotFound
	}
	acct.PasswordHash = passwordHash
	return nil
}

func (f *fakeIdentityRepo) UpdateAvatar(_ context.Context, id string, avatarURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[id]
	if !ok {
		return identity.ErrNotFound
	}
	acct.AvatarURL = avatarURL
	return nil
}

func (f *fakeIdentityRepo) UpdateLastLogin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[id]; !ok {
		return identity.ErrNotFound
	}
	return nil
}

func (f *fakeIdentityRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[id]; !ok {
		return identity.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

// recordingConn is a chat.Conn that records kicks and enqueued frames.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
	kicks  []string
}

func (c *recordingConn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames = append(c.frames, frame)
	return true
}

func (c *recordingConn) Kick(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.kicks = append(c.kicks, reason)
}

func (c *recordingConn) kickCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.kicks)
}

// fakeConversationStore serves canned conversation history.
type fakeConversationStore struct {
	messages []store.Message
	lastUser string
	lastPeer string
}

func (f *fakeConversationStore) QueryConversation(_ context.Context, userA, userB string, _ int) ([]store.Message, error) {
	f.lastUser = userA
	f.lastPeer = userB
	return f.messages, nil
}

// newTestDeps wires an AppDeps on in-memory fakes. Storage stays nil; tests
// exercising avatar presign provide their own.
func newTestDeps() (*AppDeps, *fakeConversationStore) {
	registry := chat.NewRegistry()
	router := chat.NewRouter(registry, nil)
	conversations := &fakeConversationStore{}

	deps := &AppDeps{
		Registry: registry,
		Router:   router,
		Identity: identity.NewServiceWithCost(newFakeIdentityRepo(), bcrypt.MinCost),
		Messages: conversations,
		Config: &configs.AppConfig{
			Environment:    "development",
			Port:           8080,
			AllowedOrigins: []string{},
			JWTSecret:      testJWTSecret,
			S3BucketName:   "chatwire-avatars",
			S3Endpoint:     "http://localhost:9000",
		},
	}

	return deps, conversations
}

// apiResponse mirrors the JSON envelope every endpoint responds with.
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = &bytes.Buffer{}
	}

	r := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var parsed apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}

	return w, parsed
}
