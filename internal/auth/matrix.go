package auth

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"clubapi.org/internal/store"
)

// knownMethods are the only verbs a matrix or resource declaration may grant.
var knownMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Matrix is the process-wide role -> resource -> method permission table.
// It is loaded once at startup, validated, and read-only afterwards, so
// concurrent lookups need no synchronization.
type Matrix struct {
	roles map[string]map[string]map[string]bool
}

// NewMatrix validates and builds a matrix from its literal form. Malformed
// entries are rejected here, not at decision time.
func NewMatrix(roles map[string]map[string][]string) (*Matrix, error) {
	m := &Matrix{roles: make(map[string]map[string]map[string]bool, len(roles))}
	for role, resources := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			return nil, fmt.Errorf("permission matrix: empty role name")
		}
		byResource := make(map[string]map[string]bool, len(resources))
		for resource, methods := range resources {
			resource = strings.TrimSpace(resource)
			if resource == "" {
				return nil, fmt.Errorf("permission matrix: role %q grants an empty resource name", role)
			}
			set := make(map[string]bool, len(methods))
			for _, method := range methods {
				method = strings.ToUpper(strings.TrimSpace(method))
				if !knownMethods[method] {
					return nil, fmt.Errorf("permission matrix: role %q resource %q: unknown method %q", role, resource, method)
				}
				set[method] = true
			}
			byResource[resource] = set
		}
		m.roles[role] = byResource
	}
	return m, nil
}

// LoadMatrix reads a YAML document of the form role -> resource -> [methods].
func LoadMatrix(r io.Reader) (*Matrix, error) {
	var raw map[string]map[string][]string
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("permission matrix: decode: %w", err)
	}
	return NewMatrix(raw)
}

// LoadMatrixFile loads the matrix from a YAML file.
func LoadMatrixFile(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("permission matrix: %w", err)
	}
	defer f.Close()
	return LoadMatrix(f)
}

// Allows reports whether the role grants the method on the resource. Absence
// of any entry means denied.
func (m *Matrix) Allows(role, resource, method string) bool {
	if m == nil {
		return false
	}
	return m.roles[role][resource][method]
}

// AnyRoleAllows ORs Allows over the caller's currently unexpired role
// assignments.
func (m *Matrix) AnyRoleAllows(assignments []store.RoleAssignment, resource, method string, now time.Time) bool {
	for _, a := range assignments {
		if a.Expired(now) {
			continue
		}
		if m.Allows(a.Role, resource, method) {
			return true
		}
	}
	return false
}

// RoleGrant is one role's grants in listable form, served by GET /roles.
type RoleGrant struct {
	Name        string              `json:"name"`
	Permissions map[string][]string `json:"permissions"`
}

// Snapshot returns the matrix contents sorted by role name.
func (m *Matrix) Snapshot() []RoleGrant {
	out := make([]RoleGrant, 0, len(m.roles))
	for role, resources := range m.roles {
		grant := RoleGrant{Name: role, Permissions: make(map[string][]string, len(resources))}
		for resource, methods := range resources {
			list := make([]string, 0, len(methods))
			for method := range methods {
				list = append(list, method)
			}
			sort.Strings(list)
			grant.Permissions[resource] = list
		}
		out = append(out, grant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
