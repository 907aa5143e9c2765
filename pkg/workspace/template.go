package workspace

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
)

// DefaultTemplate is the starter file set written into fresh workspaces.
const DefaultTemplate = "react-vite"

// MarkerFile marks a workspace as initialized. The supervisor refuses to
// start a dev server until it exists.
const MarkerFile = "package.json"

//go:embed template
var templateFS embed.FS

// WriteTemplate materializes an embedded starter template into the
// workspace root. An empty name selects the default template. Existing
// files with the same paths are overwritten.
func (s *Store) WriteTemplate(name string) error {
	if name == "" {
		name = DefaultTemplate
	}
	base := path.Join("template", name)
	if _, err := fs.Stat(templateFS, base); err != nil {
		return fmt.Errorf("unknown template %q", name)
	}
	sub, err := fs.Sub(templateFS, base)
	if err != nil {
		return fmt.Errorf("failed to open template %q: %w", name, err)
	}

	return fs.WalkDir(sub, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(sub, p)
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", p, err)
		}
		if err := s.Write(p, data); err != nil {
			return fmt.Errorf("failed to materialize template file %s: %w", p, err)
		}
		return nil
	})
}

// Initialized reports whether the workspace carries the project marker.
func (s *Store) Initialized() (bool, error) {
	return s.Exists(MarkerFile)
}
