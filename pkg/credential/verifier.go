package credential

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"student-roster/config"
)

// Identity 通过校验后的调用者身份
type Identity struct {
	Username string
}

// Verifier 凭据校验能力，由路由层注入，处理器不关心具体比对方式
type Verifier interface {
	Verify(ctx context.Context, username, secret string) (Identity, bool)
}

// StaticVerifier 基于配置文件中 bcrypt 哈希的校验器
type StaticVerifier struct {
	hashes map[string][]byte
}

// 用户名不存在时也做一次比对，避免通过响应耗时探测账号
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("student-roster-dummy"), bcrypt.DefaultCost)

// NewStaticVerifier 从配置构建校验器
func NewStaticVerifier(users []config.UserCredential) *StaticVerifier {
	hashes := make(map[string][]byte, len(users))
	for _, u := range users {
		if u.Username == "" || u.PasswordHash == "" {
			continue
		}
		hashes[u.Username] = []byte(u.PasswordHash)
	}
	return &StaticVerifier{hashes: hashes}
}

// Verify 校验用户名与口令
func (v *StaticVerifier) Verify(_ context.Context, username, secret string) (Identity, bool) {
	hash, ok := v.hashes[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return Identity{}, false
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return Identity{}, false
	}
	return Identity{Username: username}, true
}

// Len 已配置的账号数
func (v *StaticVerifier) Len() int {
	return len(v.hashes)
}
