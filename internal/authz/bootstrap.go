package authz

import (
	"fmt"
	"strings"
)

// 预置角色
const (
	RoleViewer     = "viewer"
	RoleShipper    = "shipper"
	RoleReconciler = "reconciler"
	RoleSupervisor = "supervisor"
)

type routeGrant struct {
	route  string
	method string
}

type roleSeed struct {
	name     string
	inherits []string
	grants   []routeGrant
}

// viewer 只读；shipper 可下单；reconciler 可触发对账；supervisor 兼有两者
var builtinRoles = []roleSeed{
	{
		name: RoleViewer,
		grants: []routeGrant{
			{route: "/admin/orders", method: "GET"},
			{route: "/admin/orders/:id/tracking", method: "GET"},
			{route: "/admin/reconcile/last", method: "GET"},
			{route: "/admin/me/permissions", method: "GET"},
		},
	},
	{
		name:     RoleShipper,
		inherits: []string{RoleViewer},
		grants: []routeGrant{
			{route: "/admin/orders/:id/shipment", method: "POST"},
		},
	},
	{
		name:     RoleReconciler,
		inherits: []string{RoleViewer},
		grants: []routeGrant{
			{route: "/admin/orders/:id/reconcile", method: "POST"},
			{route: "/admin/reconcile/run", method: "POST"},
		},
	},
	{
		name:     RoleSupervisor,
		inherits: []string{RoleShipper, RoleReconciler},
	},
}

// RoleNames 预置角色名称
func RoleNames() []string {
	names := make([]string, 0, len(builtinRoles))
	for _, seed := range builtinRoles {
		names = append(names, seed.name)
	}
	return names
}

func lookupRole(raw string) (string, bool) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), rolePrefix))
	for _, seed := range builtinRoles {
		if seed.name == name {
			return name, true
		}
	}
	return "", false
}

// BootstrapBuiltinRoles 写入预置角色的继承关系与路由策略，可重复执行
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}
	for _, seed := range builtinRoles {
		role := rolePrefix + seed.name
		for _, parent := range seed.inherits {
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, rolePrefix+parent); err != nil {
				return fmt.Errorf("link role %s to %s failed: %w", seed.name, parent, err)
			}
		}
		for _, grant := range seed.grants {
			if _, err := s.enforcer.AddPolicy(role, NormalizeObject(grant.route), normalizeMethod(grant.method)); err != nil {
				return fmt.Errorf("grant %s %s to %s failed: %w", grant.method, grant.route, seed.name, err)
			}
		}
	}
	return nil
}
