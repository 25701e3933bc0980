package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fakeRepo is an in-memory Repository backed by a map keyed on account id.
type fakeRepo struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: make(map[string]*Account)}
}

func (f *fakeRepo) Create(_ context.Context, acct *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.accounts {
		if existing.Username == acct.Username {
			return ErrUsernameTaken
		}
	}

	stored := *acct
	f.accounts[acct.ID] = &stored
	return nil
}

func (f *fakeRepo) GetByUsername(_ context.Context, username string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, acct := range f.accounts {
		if acct.Username == username {
			found := *acct
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	found := *acct
	return &found, nil
}

func (f *fakeRepo) UpdateUsername(_ context.Context, id string, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for otherID, acct := range f.accounts {
		if otherID != id && acct.Username == username {
			return ErrUsernameTaken
		}
	}

	acct, ok := f.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.Username = username
	return nil
}

func (f *fakeRepo) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.PasswordHash = passwordHash
	return nil
}

func (f *fakeRepo) UpdateAvatar(_ context.Context, id string, avatarURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.AvatarURL = avatarURL
	return nil
}

func (f *fakeRepo) UpdateLastLogin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewServiceWithCost(repo, bcrypt.MinCost), repo
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice_01", "secret-pass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registered.ID == "" || registered.Username != "alice_01" {
		t.Fatalf("registered identity = %+v", registered)
	}

	authed, err := svc.Authenticate(ctx, "alice_01", "secret-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authed.ID != registered.ID {
		t.Errorf("authenticated id = %q, want %q", authed.ID, registered.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "username too short", username: "abc", password: "secret-pass", wantErr: ErrInvalidUsername},
		{name: "username too long", username: "abcdefghijklmnopqrstu", password: "secret-pass", wantErr: ErrInvalidUsername},
		{name: "username uppercase", username: "Alice", password: "secret-pass", wantErr: ErrInvalidUsername},
		{name: "username with spaces", username: "al ice", password: "secret-pass", wantErr: ErrInvalidUsername},
		{name: "password too short", username: "alice_01", password: "short", wantErr: ErrInvalidPassword},
		{name: "password too long", username: "alice_01", password: string(make([]byte, 51)), wantErr: ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.username, tt.password); !errors.Is(err, tt.wantErr) {
				t.Errorf("Register(%q, ...) = %v, want %v", tt.username, err, tt.wantErr)
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice_01", "secret-pass"); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	if _, err := svc.Register(ctx, "alice_01", "other-pass"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate Register = %v, want ErrUsernameTaken", err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice_01", "secret-pass"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Wrong password and unknown username must be indistinguishable.
	if _, err := svc.Authenticate(ctx, "alice_01", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody_here", "secret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown username = %v, want ErrInvalidCredentials", err)
	}
}

func TestPasswordsAreHashed(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice_01", "secret-pass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	acct, err := repo.GetByID(ctx, registered.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}

	if acct.PasswordHash == "secret-pass" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte("secret-pass")); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
}

func TestRename(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice_01", "secret-pass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "bob_01", "secret-pass"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Rename(ctx, registered.ID, "alice_02"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	profile, err := svc.GetProfile(ctx, registered.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.Username != "alice_02" {
		t.Errorf("username after rename = %q, want alice_02", profile.Username)
	}

	if err := svc.Rename(ctx, registered.ID, "bob_01"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("rename onto taken username = %v, want ErrUsernameTaken", err)
	}
	if err := svc.Rename(ctx, registered.ID, "No"); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("rename to invalid username = %v, want ErrInvalidUsername", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice_01", "secret-pass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ChangePassword(ctx, registered.ID, "wrong-pass", "brand-new-pass"); !errors.Is(err, ErrOldPasswordMismatch) {
		t.Errorf("wrong current password = %v, want ErrOldPasswordMismatch", err)
	}

	if err := svc.ChangePassword(ctx, registered.ID, "secret-pass", "tiny"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("too-short new password = %v, want ErrInvalidPassword", err)
	}

	if err := svc.ChangePassword(ctx, registered.ID, "secret-pass", "brand-new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice_01", "secret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("old password still accepted after change")
	}
	if _, err := svc.Authenticate(ctx, "alice_01", "brand-new-pass"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice_01", "secret-pass")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.DeleteAccount(ctx, registered.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	if _, err := svc.GetProfile(ctx, registered.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("profile after delete = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteAccount(ctx, registered.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}
