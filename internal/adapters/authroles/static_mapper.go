package authroles

import (
	"strings"

	domainauth "github.com/srbenoit/mathops-sub032/internal/domain/auth"
	"github.com/srbenoit/mathops-sub032/internal/ports"
)

var _ ports.RoleMapper = StaticRoleMapper{}

// StaticRoleMapper maps IdP groups to roles from a fixed table. When several
// groups match, the role with the most authority wins. Group names compare
// case-insensitively; directory DNs match on their leading CN as well.
type StaticRoleMapper struct {
	Groups  map[string]domainauth.Role
	Default domainauth.Role
}

// NewStaticRoleMapper normalizes the table keys.
func NewStaticRoleMapper(groups map[string]domainauth.Role, def domainauth.Role) StaticRoleMapper {
	norm := make(map[string]domainauth.Role, len(groups))
	for g, r := range groups {
		norm[strings.ToLower(strings.TrimSpace(g))] = r
	}
	if def == "" {
		def = domainauth.RoleStudent
	}
	return StaticRoleMapper{Groups: norm, Default: def}
}

// Map implements ports.RoleMapper.
func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	best := domainauth.Role("")
	for _, g := range groups {
		role, ok := m.lookup(g)
		if !ok {
			continue
		}
		if best == "" || (role.AtLeast(best) && role != best) {
			best = role
		}
	}
	if best == "" {
		return m.Default
	}
	return best
}

func (m StaticRoleMapper) lookup(group string) (domainauth.Role, bool) {
	key := strings.ToLower(strings.TrimSpace(group))
	if r, ok := m.Groups[key]; ok {
		return r, true
	}
	if cn, ok := strings.CutPrefix(key, "cn="); ok {
		if i := strings.IndexByte(cn, ','); i >= 0 {
			cn = cn[:i]
		}
		r, ok := m.Groups[cn]
		return r, ok
	}
	return "", false
}
