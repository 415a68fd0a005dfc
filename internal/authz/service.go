package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	"github.com/casbin/casbin/v3/util"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

var (
	ErrUnavailable      = errors.New("authz service unavailable")
	ErrOperatorRequired = errors.New("operator is required")
	ErrUnknownRole      = errors.New("unknown operator role")
)

const (
	apiV1Prefix     = "/api/v1"
	casbinTableName = "casbin_rule"
	operatorPrefix  = "operator:"
	rolePrefix      = "role:"
)

// 运营人员只通过角色获得路由权限，策略中不出现运营人员主体
const operatorRouteModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && r.act == p.act
`

// Policy 角色可访问的一条运营路由
type Policy struct {
	Role   string `json:"role"`
	Route  string `json:"route"`
	Method string `json:"method"`
}

// OperatorAccess 运营人员的直接角色与经继承展开后的路由权限
type OperatorAccess struct {
	Operator string   `json:"operator"`
	Roles    []string `json:"roles"`
	Policies []Policy `json:"policies"`
}

// Service 运营接口的路由授权，策略持久化在 casbin_rule 表
type Service struct {
	enforcer *casbin.SyncedEnforcer
}

// NewService 创建授权服务
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("authz db is nil")
	}

	adapter, err := gormadapter.NewAdapterByDBUseTableName(db, "", casbinTableName)
	if err != nil {
		return nil, fmt.Errorf("create authz adapter failed: %w", err)
	}
	m, err := model.NewModelFromString(operatorRouteModel)
	if err != nil {
		return nil, fmt.Errorf("load authz model failed: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("init authz enforcer failed: %w", err)
	}
	enforcer.AddFunction("keyMatch2", util.KeyMatch2Func)
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("load authz policy failed: %w", err)
	}
	return &Service{enforcer: enforcer}, nil
}

// CanAccess 判定运营人员能否以 method 访问 route，route 可以是 gin 路由模板或实际路径
func (s *Service) CanAccess(operator, route, method string) (bool, error) {
	if s == nil || s.enforcer == nil {
		return false, ErrUnavailable
	}
	subject, err := operatorSubject(operator)
	if err != nil {
		return false, err
	}
	return s.enforcer.Enforce(subject, NormalizeObject(route), normalizeMethod(method))
}

// AssignRoles 覆盖运营人员的角色，只接受预置角色；空列表即撤销全部角色
func (s *Service) AssignRoles(operator string, roles []string) error {
	if s == nil || s.enforcer == nil {
		return ErrUnavailable
	}
	subject, err := operatorSubject(operator)
	if err != nil {
		return err
	}
	resolved := make([]string, 0, len(roles))
	for _, role := range roles {
		name, ok := lookupRole(role)
		if !ok {
			return fmt.Errorf("%w: %q (known: %s)", ErrUnknownRole, role, strings.Join(RoleNames(), ", "))
		}
		resolved = append(resolved, rolePrefix+name)
	}

	if _, err := s.enforcer.RemoveFilteredNamedGroupingPolicy("g", 0, subject); err != nil {
		return fmt.Errorf("clear operator roles failed: %w", err)
	}
	for _, role := range resolved {
		if _, err := s.enforcer.AddNamedGroupingPolicy("g", subject, role); err != nil {
			return fmt.Errorf("assign operator role failed: %w", err)
		}
	}
	return nil
}

// Describe 查询运营人员的角色与生效路由
func (s *Service) Describe(operator string) (*OperatorAccess, error) {
	if s == nil || s.enforcer == nil {
		return nil, ErrUnavailable
	}
	subject, err := operatorSubject(operator)
	if err != nil {
		return nil, err
	}

	direct, err := s.enforcer.GetRolesForUser(subject)
	if err != nil {
		return nil, fmt.Errorf("get operator roles failed: %w", err)
	}
	access := &OperatorAccess{
		Operator: strings.TrimPrefix(subject, operatorPrefix),
		Roles:    make([]string, 0, len(direct)),
		Policies: []Policy{},
	}
	for _, role := range direct {
		access.Roles = append(access.Roles, strings.TrimPrefix(role, rolePrefix))
	}
	sort.Strings(access.Roles)

	implicit, err := s.enforcer.GetImplicitRolesForUser(subject)
	if err != nil {
		return nil, fmt.Errorf("get implicit roles failed: %w", err)
	}
	for _, role := range implicit {
		rules, err := s.enforcer.GetFilteredPolicy(0, role)
		if err != nil {
			return nil, fmt.Errorf("get role policies failed: %w", err)
		}
		for _, rule := range rules {
			if len(rule) < 3 {
				continue
			}
			access.Policies = append(access.Policies, Policy{
				Role:   strings.TrimPrefix(rule[0], rolePrefix),
				Route:  rule[1],
				Method: rule[2],
			})
		}
	}
	sort.Slice(access.Policies, func(i, j int) bool {
		a, b := access.Policies[i], access.Policies[j]
		if a.Route != b.Route {
			return a.Route < b.Route
		}
		return a.Method < b.Method
	})
	return access, nil
}

func operatorSubject(operator string) (string, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", ErrOperatorRequired
	}
	return operatorPrefix + operator, nil
}

// NormalizeObject 去掉 /api/v1 前缀，使路由模板与策略中的写法一致
func NormalizeObject(object string) string {
	normalized := strings.TrimSpace(object)
	if normalized == "" {
		return "/"
	}
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasPrefix(normalized, apiV1Prefix+"/") {
		return strings.TrimPrefix(normalized, apiV1Prefix)
	}
	if normalized == apiV1Prefix {
		return "/"
	}
	return normalized
}

func normalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
