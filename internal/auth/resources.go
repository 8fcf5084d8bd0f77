package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Relation describes how a document field reaches into another collection.
// Declared per resource so ownership paths are resolved from static metadata
// instead of runtime schema introspection.
type Relation struct {
	// Collection is the related collection name.
	Collection string
	// LocalField is the field on this resource's documents.
	LocalField string
	// RemoteField is the field on the related documents compared against
	// LocalField.
	RemoteField string
}

// Metadata is the per-resource declaration the engine authorizes against.
type Metadata struct {
	Name string

	// PublicMethods need no credential at all.
	PublicMethods []string
	// UserMethods are open to any authenticated user.
	UserMethods []string
	// OwnerMethods are open to the owner of the targeted item.
	OwnerMethods []string

	// OwnerFields are the candidate owner fields, OR-combined. A field may
	// be a single-hop dotted path "relation.field" where "relation" names
	// an entry in Relations.
	OwnerFields []string

	// Relations declares the traversals used by dotted owner fields.
	Relations map[string]Relation

	// PublicItemLookup controls whether the existence of an item may be
	// revealed to callers that are denied access to it (403 vs 404).
	PublicItemLookup bool
}

// Validate checks internal consistency. Any violation is a ConfigurationError:
// the resource must be refused at startup, loudly, rather than producing
// surprise decisions at request time.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: resource name is empty", ErrConfiguration)
	}
	for _, set := range [][]string{m.PublicMethods, m.UserMethods, m.OwnerMethods} {
		for _, method := range set {
			if !knownMethods[method] {
				return fmt.Errorf("%w: resource %q declares unknown method %q", ErrConfiguration, m.Name, method)
			}
		}
	}
	if len(m.OwnerMethods) > 0 && len(m.OwnerFields) == 0 {
		return fmt.Errorf("%w: resource %q has owner methods but no owner fields", ErrConfiguration, m.Name)
	}
	for _, field := range m.OwnerFields {
		if field == "" {
			return fmt.Errorf("%w: resource %q declares an empty owner field", ErrConfiguration, m.Name)
		}
		parts := strings.Split(field, ".")
		switch len(parts) {
		case 1:
		case 2:
			rel, ok := m.Relations[parts[0]]
			if !ok {
				return fmt.Errorf("%w: resource %q owner field %q references undeclared relation", ErrConfiguration, m.Name, field)
			}
			if rel.Collection == "" || rel.LocalField == "" || rel.RemoteField == "" {
				return fmt.Errorf("%w: resource %q relation %q is incomplete", ErrConfiguration, m.Name, parts[0])
			}
		default:
			return fmt.Errorf("%w: resource %q owner field %q: only single-hop relation paths are supported", ErrConfiguration, m.Name, field)
		}
	}
	return nil
}

// MethodPublic reports whether the method needs no credential.
func (m Metadata) MethodPublic(method string) bool { return methodIn(m.PublicMethods, method) }

// MethodForUsers reports whether the method is open to authenticated users.
func (m Metadata) MethodForUsers(method string) bool { return methodIn(m.UserMethods, method) }

// MethodForOwners reports whether the method is open to item owners.
func (m Metadata) MethodForOwners(method string) bool { return methodIn(m.OwnerMethods, method) }

func methodIn(set []string, method string) bool {
	for _, m := range set {
		if m == method {
			return true
		}
	}
	return false
}

// Registry maps resource names to their metadata. Populated and validated at
// startup; read-only afterwards.
type Registry struct {
	resources map[string]Metadata
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]Metadata)}
}

// Register validates and adds a resource. A duplicate name or invalid
// metadata is a ConfigurationError.
func (r *Registry) Register(meta Metadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	if _, ok := r.resources[meta.Name]; ok {
		return fmt.Errorf("%w: resource %q registered twice", ErrConfiguration, meta.Name)
	}
	r.resources[meta.Name] = meta
	return nil
}

// Lookup returns the metadata for a resource name.
func (r *Registry) Lookup(name string) (Metadata, bool) {
	meta, ok := r.resources[name]
	return meta, ok
}

// Names lists the registered resources in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.resources))
	for name := range r.resources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
