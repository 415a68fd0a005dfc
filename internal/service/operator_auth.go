package service

import (
	"errors"
	"strings"
	"time"

	"github.com/parcelsync/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrJWTSecretMissing = errors.New("jwt secret missing")
	ErrOperatorInvalid  = errors.New("operator name invalid")
	ErrTokenInvalid     = errors.New("token invalid")
)

// OperatorClaims 运营接口 JWT 声明
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// OperatorAuthService 运营令牌签发与校验
type OperatorAuthService struct {
	cfg config.JWTConfig
}

// NewOperatorAuthService 创建运营令牌服务
func NewOperatorAuthService(cfg config.JWTConfig) *OperatorAuthService {
	return &OperatorAuthService{cfg: cfg}
}

// GenerateToken 签发令牌，ttl 为 0 时使用配置的过期小时数
func (s *OperatorAuthService) GenerateToken(operator string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return "", time.Time{}, ErrJWTSecretMissing
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", time.Time{}, ErrOperatorInvalid
	}
	if ttl <= 0 {
		hours := s.cfg.ExpireHours
		if hours <= 0 {
			hours = 24
		}
		ttl = time.Duration(hours) * time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken 校验签名、有效期与签发方
func (s *OperatorAuthService) ParseToken(tokenString string) (*OperatorClaims, error) {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return nil, ErrJWTSecretMissing
	}
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.cfg.Issuer))
	}
	parser := jwt.NewParser(options...)
	claims := &OperatorClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil || !token.Valid || strings.TrimSpace(claims.Operator) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
