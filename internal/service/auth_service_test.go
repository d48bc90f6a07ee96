package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"student-roster/config"
	"student-roster/internal/dto"
	"student-roster/pkg/credential"
	"student-roster/pkg/jwt"
)

func setupTestAuthService(t *testing.T) (AuthService, *jwt.Manager) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("生成哈希失败: %v", err)
	}

	authCfg := &config.AuthConfig{
		JWTSecret:      "test-secret-key-for-unit-tests",
		AccessTokenTTL: 30 * time.Minute,
		Users:          []config.UserCredential{{Username: "admin", PasswordHash: string(hash)}},
	}
	jwtMgr := jwt.NewManager(authCfg)
	verifier := credential.NewStaticVerifier(authCfg.Users)

	return NewAuthService(verifier, jwtMgr, zap.NewNop()), jwtMgr
}

// ── 登录测试 ──

func TestLogin_Success(t *testing.T) {
	svc, jwtMgr := setupTestAuthService(t)

	result, err := svc.Login(context.Background(), &dto.LoginRequest{Username: " admin ", Password: "password123"})
	if err != nil {
		t.Fatalf("Login 应成功，但返回错误: %v", err)
	}
	if result.AccessToken == "" {
		t.Error("AccessToken 不应为空")
	}
	if result.ExpiresIn != 1800 {
		t.Errorf("期望 ExpiresIn=1800，实际=%d", result.ExpiresIn)
	}

	claims, err := jwtMgr.ParseToken(result.AccessToken)
	if err != nil {
		t.Fatalf("签发的令牌应可解析: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("期望 Username=admin，实际=%s", claims.Username)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := setupTestAuthService(t)

	_, err := svc.Login(context.Background(), &dto.LoginRequest{Username: "admin", Password: "wrong_password"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("期望 ErrInvalidCredentials，实际: %v", err)
	}
}

func TestLogin_UserNotFound(t *testing.T) {
	svc, _ := setupTestAuthService(t)

	_, err := svc.Login(context.Background(), &dto.LoginRequest{Username: "nobody", Password: "password123"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("期望 ErrInvalidCredentials，实际: %v", err)
	}
}

func TestLogin_Disabled(t *testing.T) {
	svc := NewAuthService(nil, nil, zap.NewNop())

	_, err := svc.Login(context.Background(), &dto.LoginRequest{Username: "admin", Password: "x"})
	if !errors.Is(err, ErrLoginDisabled) {
		t.Errorf("期望 ErrLoginDisabled，实际: %v", err)
	}
}
