package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/teamspace-service/internal/auth"
	"github.com/spec-kit/teamspace-service/internal/config"
	"github.com/spec-kit/teamspace-service/internal/domain"
)

// fakeUserRepo is an in-memory repository.UserRepository.
type fakeUserRepo struct {
	byUsername map[string]*domain.User
	nextID     int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byUsername: make(map[string]*domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.nextID++
	user.ID = r.nextID
	r.byUsername[user.Username] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	for _, user := range r.byUsername {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, errors.New("user not found")
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	user, ok := r.byUsername[username]
	if !ok {
		return nil, errors.New("user not found")
	}
	return user, nil
}

func (r *fakeUserRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	_, ok := r.byUsername[username]
	return ok, nil
}

func newTestAuthService() (*AuthService, *fakeUserRepo) {
	repo := newFakeUserRepo()
	codec := auth.NewTokenCodec("test-secret", 60)
	// Minimum bcrypt cost keeps the tests fast.
	svc := NewAuthService(config.AuthConfig{BcryptCost: 4}, repo, codec)
	return svc, repo
}

func TestAuthService_RegisterHashesPassword(t *testing.T) {
	svc, _ := newTestAuthService()

	user, err := svc.Register(context.Background(), "alice", "s3cret", "Alice P")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.ID == 0 {
		t.Error("user ID not assigned")
	}
	if user.PasswordHash == "s3cret" || user.PasswordHash == "" {
		t.Error("password stored unhashed")
	}
	if err := auth.ComparePassword(user.PasswordHash, "s3cret"); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
}

func TestAuthService_RegisterRejectsDuplicateUsername(t *testing.T) {
	svc, _ := newTestAuthService()

	if _, err := svc.Register(context.Background(), "alice", "s3cret", "Alice"); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "other", "Alice Two"); err == nil {
		t.Fatal("duplicate Register succeeded, want error")
	}
}

func TestAuthService_LoginIssuesVerifiableToken(t *testing.T) {
	svc, _ := newTestAuthService()

	registered, err := svc.Register(context.Background(), "alice", "s3cret", "Alice P")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	user, token, expiresAt, err := svc.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user.DisplayName != "Alice P" {
		t.Errorf("displayName = %q, want %q", user.DisplayName, "Alice P")
	}
	if expiresAt.IsZero() {
		t.Error("expiresAt not set")
	}

	identity, err := svc.TokenCodec().Verify(token)
	if err != nil {
		t.Fatalf("Verify issued token: %v", err)
	}
	if identity.UserID != registered.ID {
		t.Errorf("token userID = %d, want %d", identity.UserID, registered.ID)
	}
	if identity.SubjectName != "alice" {
		t.Errorf("token subject = %q, want %q", identity.SubjectName, "alice")
	}
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	svc, _ := newTestAuthService()
	if _, err := svc.Register(context.Background(), "alice", "s3cret", "Alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthService_LoginUnknownUser(t *testing.T) {
	svc, _ := newTestAuthService()
	if _, _, _, err := svc.Login(context.Background(), "ghost", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("err = %v, want ErrInvalidCredentials", err)
	}
}
