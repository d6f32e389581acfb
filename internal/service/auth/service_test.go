package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tetherapp/tether/internal/config"
	"github.com/tetherapp/tether/internal/model"
)

// memoryUserStore 内存用户表
type memoryUserStore struct {
	users map[string]*model.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*model.User)}
}

func (m *memoryUserStore) CreateUser(user *model.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memoryUserStore) GetUserByID(id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("record not found")
}

func (m *memoryUserStore) GetUserByEmail(email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.New("record not found")
}

func (m *memoryUserStore) GetUserByUsername(username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, errors.New("record not found")
}

// ========== 注册测试 ==========

func TestService_Register(t *testing.T) {
	svc := NewService(newMemoryUserStore(), config.AuthConfig{})

	info, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if info.Username != "ada" || info.Email != "ada@example.com" {
		t.Errorf("Register() info = %+v", info)
	}
	if info.ID == "" {
		t.Error("Register() should assign an id")
	}
}

func TestService_Register_Duplicates(t *testing.T) {
	svc := NewService(newMemoryUserStore(), config.AuthConfig{})

	if _, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "ada", Email: "ada@example.com", Password: "secret123",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "other", Email: "ada@example.com", Password: "secret123",
	})
	if err == nil || !strings.Contains(err.Error(), "email already exists") {
		t.Errorf("duplicate email error = %v", err)
	}

	_, err = svc.Register(context.Background(), &RegisterRequest{
		Username: "ada", Email: "new@example.com", Password: "secret123",
	})
	if err == nil || !strings.Contains(err.Error(), "username already exists") {
		t.Errorf("duplicate username error = %v", err)
	}
}

// ========== 登录与令牌测试 ==========

func TestService_LoginAndValidateToken(t *testing.T) {
	svc := NewService(newMemoryUserStore(), config.AuthConfig{})

	if _, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "ada", Email: "ada@example.com", Password: "secret123",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	resp, err := svc.Login(context.Background(), &LoginRequest{
		Email: "ada@example.com", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.Token == "" {
		t.Fatal("Login() should return a token")
	}
	if resp.User.Email != "ada@example.com" {
		t.Errorf("Login() user = %+v", resp.User)
	}

	user, err := svc.ValidateToken(context.Background(), resp.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if user.Username != "ada" {
		t.Errorf("ValidateToken() user = %+v", user)
	}
}

func TestService_Login_WrongPassword(t *testing.T) {
	svc := NewService(newMemoryUserStore(), config.AuthConfig{})
	svc.Register(context.Background(), &RegisterRequest{
		Username: "ada", Email: "ada@example.com", Password: "secret123",
	})

	tests := []struct {
		name  string
		email string
		pass  string
	}{
		{"wrong password", "ada@example.com", "wrong-pass"},
		{"unknown email", "ghost@example.com", "secret123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), &LoginRequest{Email: tt.email, Password: tt.pass})
			// 不泄露邮箱是否存在，两种失败同文案
			if err == nil || err.Error() != "invalid email or password" {
				t.Errorf("Login() error = %v", err)
			}
		})
	}
}

func TestService_Login_DisabledAccount(t *testing.T) {
	store := newMemoryUserStore()
	svc := NewService(store, config.AuthConfig{})

	info, err := svc.Register(context.Background(), &RegisterRequest{
		Username: "ada", Email: "ada@example.com", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	resp, err := svc.Login(context.Background(), &LoginRequest{
		Email: "ada@example.com", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	store.users[info.ID].IsActive = false

	if _, err := svc.Login(context.Background(), &LoginRequest{
		Email: "ada@example.com", Password: "secret123",
	}); err == nil || err.Error() != "account is disabled" {
		t.Errorf("Login() on disabled account = %v", err)
	}

	// 已签发的令牌在账号停用后同样失效
	if _, err := svc.ValidateToken(context.Background(), resp.Token); err == nil {
		t.Error("ValidateToken() should reject a disabled account")
	}
}

func TestService_ConfiguredSecret(t *testing.T) {
	store := newMemoryUserStore()
	a := NewService(store, config.AuthConfig{JWTSecret: "shared-secret"})
	b := NewService(store, config.AuthConfig{JWTSecret: "shared-secret"})

	if _, err := a.Register(context.Background(), &RegisterRequest{
		Username: "ada", Email: "ada@example.com", Password: "secret123",
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	resp, err := a.Login(context.Background(), &LoginRequest{
		Email: "ada@example.com", Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// 配置相同密钥的实例互认令牌
	if _, err := b.ValidateToken(context.Background(), resp.Token); err != nil {
		t.Errorf("ValidateToken() across instances = %v", err)
	}

	// 未配置密钥的实例使用随机密钥，拒绝他人签发的令牌
	c := NewService(store, config.AuthConfig{})
	if _, err := c.ValidateToken(context.Background(), resp.Token); err == nil {
		t.Error("ValidateToken() with a different secret should fail")
	}
}

func TestService_ValidateToken_Garbage(t *testing.T) {
	svc := NewService(newMemoryUserStore(), config.AuthConfig{})

	tests := []string{
		"",
		"not-a-token",
		"eyJhbGciOiJIUzI1NiJ9.e30.invalid-signature",
	}
	for _, token := range tests {
		if _, err := svc.ValidateToken(context.Background(), token); err == nil {
			t.Errorf("ValidateToken(%q) should fail", token)
		}
	}
}
