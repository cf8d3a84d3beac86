package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func adminOnlyStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := adminOnlyStore()

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStore())

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStore())

	token, err := manager.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected error for expired token")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("secret-one-secret-one", time.Hour, adminOnlyStore())
	verifier := NewAuthManager("secret-two-secret-two", time.Hour, adminOnlyStore())

	resp, err := issuer.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected error for token signed with another secret")
	}
}

func TestCreateEmployeeStoresPasswordHash(t *testing.T) {
	store := adminOnlyStore()
	manager := NewAuthManager("test-secret", time.Hour, store)

	employee, err := manager.CreateEmployee(domain.UserCreateRequest{
		Username: "kasirbaru",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create employee failed: %v", err)
	}
	if employee.Username != "kasirbaru" {
		t.Fatalf("unexpected username %s", employee.Username)
	}
	if employee.Role != domain.RoleEmployee {
		t.Fatalf("expected employee role, got %s", employee.Role)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "kasirbaru" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected employee to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected employee password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	_, err = manager.Login(domain.LoginRequest{
		Username: "kasirbaru",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed employee failed: %v", err)
	}
}

func TestCreateEmployeeRejectsAdminRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStore())

	_, err := manager.CreateEmployee(domain.UserCreateRequest{
		Username: "sneaky-admin",
		Password: "pass1234",
		Role:     domain.RoleAdmin,
	})
	if err == nil {
		t.Fatalf("expected error when requesting admin role")
	}
}

func TestCreateEmployeeValidatesInput(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStore())

	cases := []domain.UserCreateRequest{
		{Username: "ab", Password: "pass1234"},
		{Username: "has space", Password: "pass1234"},
		{Username: "validname", Password: "123"},
		{Username: "admin", Password: "pass1234"},
	}
	for _, req := range cases {
		if _, err := manager.CreateEmployee(req); err == nil {
			t.Fatalf("expected validation error for %+v", req)
		}
	}
}
