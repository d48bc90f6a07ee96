package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"student-roster/internal/dto"
	"student-roster/pkg/credential"
	"student-roster/pkg/jwt"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrLoginDisabled      = errors.New("未配置登录账号")
)

// AuthService 认证业务接口
type AuthService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error)
}

type authService struct {
	verifier credential.Verifier
	jwtMgr   *jwt.Manager
	logger   *zap.Logger
}

// NewAuthService 创建 AuthService 实例
// verifier 为 nil 时登录接口始终拒绝
func NewAuthService(verifier credential.Verifier, jwtMgr *jwt.Manager, logger *zap.Logger) AuthService {
	return &authService{
		verifier: verifier,
		jwtMgr:   jwtMgr,
		logger:   logger,
	}
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.TokenResponse, error) {
	if s.verifier == nil || s.jwtMgr == nil {
		return nil, ErrLoginDisabled
	}

	// 1. 校验凭据
	identity, ok := s.verifier.Verify(ctx, strings.TrimSpace(req.Username), req.Password)
	if !ok {
		s.logger.Info("登录失败", zap.String("username", req.Username))
		return nil, ErrInvalidCredentials
	}

	// 2. 签发访问令牌
	accessToken, err := s.jwtMgr.GenerateAccessToken(identity.Username)
	if err != nil {
		s.logger.Error("生成 AccessToken 失败", zap.Error(err))
		return nil, err
	}

	return &dto.TokenResponse{
		Success:     true,
		AccessToken: accessToken,
		ExpiresIn:   int(s.jwtMgr.AccessTokenTTL().Seconds()),
		Username:    identity.Username,
	}, nil
}
