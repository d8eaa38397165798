// Package access implements the Permission predicate (spec §6): "verify(actor,
// requested_mask) returning allow/deny; ADMIN can see/modify all; RECORDER
// can modify only own entries." This is strictly an authorization policy
// consumed through a narrow interface — the spec's Non-goals explicitly
// exclude building an authentication scheme, and this package issues no
// tokens and checks no credentials; it only evaluates a policy against an
// already-authenticated actor.
package access

import (
	"fmt"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/util"
)

// Mask is the bitmask of operations an actor is requesting.
type Mask int

const (
	MaskView Mask = 1 << iota
	MaskModify
	MaskDelete
)

// Actor is the already-authenticated caller the engine evaluates a
// request on behalf of.
type Actor struct {
	ID   string
	Role string // "ADMIN" or "RECORDER"
}

const (
	RoleAdmin    = "ADMIN"
	RoleRecorder = "RECORDER"
)

func maskString(m Mask) string {
	switch m {
	case MaskView:
		return "view"
	case MaskModify:
		return "modify"
	case MaskDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Permission is the interface the engine calls before any mutation that
// originates from an external actor (admin API, rule engine acting on a
// user's behalf). ownerID is the entry's Owner field; Verify must allow
// RECORDER actors to act only on entries they own.
type Permission interface {
	Verify(actor Actor, mask Mask, ownerID string) bool
}

// casbinPermission implements Permission with an RBAC model: ADMIN matches
// any resource, RECORDER matches only resources whose owner equals the
// actor's id.
type casbinPermission struct {
	mu       sync.Mutex
	enforcer *casbin.Enforcer
}

// rbacModelText is the casbin model: requests are (role, owner, actor, mask).
const rbacModelText = `
[request_definition]
r = role, owner, actor, mask

[policy_definition]
p = role, mask

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = (p.role == r.role && (r.role == "ADMIN" || r.owner == r.actor)) && keyMatch(r.mask, p.mask)
`

// New builds the default policy: ADMIN may view/modify/delete anything,
// RECORDER may view/modify/delete only entries it owns.
func New() (Permission, error) {
	m, err := model.NewModelFromString(rbacModelText)
	if err != nil {
		return nil, fmt.Errorf("access: model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("access: enforcer: %w", err)
	}
	e.AddFunction("keyMatch", func(args ...any) (any, error) {
		return util.KeyMatch(args[0].(string), args[1].(string)), nil
	})

	for _, mask := range []string{"view", "modify", "delete"} {
		if _, err := e.AddPolicy(RoleAdmin, mask); err != nil {
			return nil, err
		}
		if _, err := e.AddPolicy(RoleRecorder, mask); err != nil {
			return nil, err
		}
	}
	return &casbinPermission{enforcer: e}, nil
}

func (p *casbinPermission) Verify(actor Actor, mask Mask, ownerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok, err := p.enforcer.Enforce(actor.Role, ownerID, actor.ID, maskString(mask))
	if err != nil {
		return false
	}
	return ok
}
