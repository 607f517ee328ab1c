// Package schemareg resolves a "name@version" schema reference to a JSON
// Schema document on disk. This is an out-of-core, thin convenience used
// by cmd/ares so operators can submit jobs by schema name instead of
// pasting a schema document inline; it intentionally stays on the
// standard library since nothing in the retrieved examples shows a richer
// registry pattern for this exact shape, and the spec calls this
// resolution out of scope for the core itself.
package schemareg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andreabozzo/ares/internal/domain"
)

// ErrNotFound is returned when no schema file matches the reference.
type ErrNotFound struct {
	Ref string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("schema %q not found", e.Ref)
}

// Registry resolves schema references against a root directory containing
// files named "<name>@<version>.json".
type Registry struct {
	root string
}

// New builds a Registry rooted at dir.
func New(dir string) *Registry {
	return &Registry{root: dir}
}

// Resolve loads and parses the schema document for ref (e.g.
// "product@v2"). A ref with no "@version" suffix resolves to
// "<name>@latest.json".
func (r *Registry) Resolve(ref string) (domain.JSONBMap, error) {
	name, version, ok := strings.Cut(ref, "@")
	if !ok {
		version = "latest"
	}
	if err := rejectPathTraversal(name); err != nil {
		return nil, fmt.Errorf("invalid schema ref %q: %w", ref, err)
	}
	if err := rejectPathTraversal(version); err != nil {
		return nil, fmt.Errorf("invalid schema ref %q: %w", ref, err)
	}

	fileName := fmt.Sprintf("%s@%s.json", name, version)
	path := filepath.Join(r.root, fileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{Ref: ref}
		}
		return nil, fmt.Errorf("read schema %q: %w", ref, err)
	}

	var schema domain.JSONBMap
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", ref, err)
	}
	return schema, nil
}

// rejectPathTraversal rejects a name/version component that could escape
// r.root once joined into a filename, since ref comes straight from an
// operator-supplied CLI flag.
func rejectPathTraversal(component string) error {
	if component == "" {
		return fmt.Errorf("empty component")
	}
	if strings.ContainsAny(component, "/\\") || component == "." || component == ".." {
		return fmt.Errorf("component %q must not contain path separators or refer to a parent directory", component)
	}
	return nil
}
