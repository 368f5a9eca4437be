package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

var ErrWrongKind = errors.New("token kind mismatch")

type Claims struct {
	UID  string `json:"uid"`
	Role string `json:"role"` // "user" or "admin"
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// JWTer 一个实例对应一种 token（access 或 refresh），各自独立的密钥和有效期
type JWTer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Kind   string // 为空按 access 处理
}

func (j *JWTer) kind() string {
	if j.Kind == "" {
		return KindAccess
	}
	return j.Kind
}

func (j *JWTer) Issue(uid, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UID:  uid,
		Role: role,
		Kind: j.kind(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

func (j *JWTer) Parse(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected alg")
		}
		return j.Secret, nil
	}, jwt.WithIssuer(j.Issuer), jwt.WithLeeway(60*time.Second))

	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Kind != "" && c.Kind != j.kind() {
		return nil, ErrWrongKind
	}
	return c, nil
}

// Pair access + refresh
type Pair struct {
	Access  *JWTer
	Refresh *JWTer
}

func (p Pair) Issue(uid, role string) (access, refresh string, err error) {
	if access, err = p.Access.Issue(uid, role); err != nil {
		return "", "", err
	}
	if refresh, err = p.Refresh.Issue(uid, role); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
