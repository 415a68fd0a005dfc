package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/parcelsync/internal/authz"
	"github.com/parcelsync/internal/config"
	"github.com/parcelsync/internal/logger"
	"github.com/parcelsync/internal/models"
	"github.com/parcelsync/internal/service"
)

// 为运营人员签发访问 /api/v1/admin 的令牌，可同时覆盖其角色
func main() {
	var operator string
	var roles string
	var ttl time.Duration
	flag.StringVar(&operator, "operator", "", "运营人员标识")
	flag.StringVar(&roles, "roles", "", "逗号分隔的角色，留空则保持现有角色 ("+strings.Join(authz.RoleNames(), "/")+")")
	flag.DurationVar(&ttl, "ttl", 0, "有效期，默认取 jwt.expire_hours")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if strings.TrimSpace(roles) != "" {
		if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{}, false); err != nil {
			stdLog.Fatalf("数据库初始化失败: %v", err)
		}
		authzService, err := authz.NewService(models.DB)
		if err != nil {
			stdLog.Fatalf("权限服务初始化失败: %v", err)
		}
		if err := authzService.BootstrapBuiltinRoles(); err != nil {
			stdLog.Fatalf("预置角色初始化失败: %v", err)
		}
		if err := authzService.AssignRoles(operator, splitRoles(roles)); err != nil {
			stdLog.Fatalf("角色分配失败: %v", err)
		}
		stdLog.Printf("operator=%s roles=%s", operator, roles)
	}

	authService := service.NewOperatorAuthService(cfg.JWT)
	token, expiresAt, err := authService.GenerateToken(operator, ttl)
	if err != nil {
		stdLog.Fatalf("签发令牌失败: %v", err)
	}
	fmt.Println(token)
	stdLog.Printf("operator=%s expires_at=%s", operator, expiresAt.Format(time.RFC3339))
}

func splitRoles(raw string) []string {
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		if role := strings.TrimSpace(part); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
