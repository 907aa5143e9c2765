package e2e

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// Workspace file API — listings, nested writes, recursive
// walks, deletes, and the containment contract.
// ────────────────────────────────────────────────────────────

func TestE2E_FileTree(t *testing.T) {
	app := NewTestApp(t)
	token := app.RegisterUser(t, "files@example.com")
	appID, _ := app.CreateApp(t, token, "File App")

	// The root listing shows the template, directories first.
	root := app.getJSON(t, fmt.Sprintf("/files/app/%d", appID), token, http.StatusOK)
	entries, _ := root["files"].([]interface{})
	require.NotEmpty(t, entries)
	first, _ := entries[0].(map[string]interface{})
	assert.Equal(t, "src", first["name"])
	assert.Equal(t, true, first["isDir"])
	assert.ElementsMatch(t, []string{"src", "index.html", "package.json", "vite.config.js"}, fileNames(root))

	assert.Contains(t, app.ReadWorkspaceFile(t, token, appID, "package.json"), `"react"`)

	// Writing a nested path creates the missing parents.
	const button = "export default function Button() {\n  return <button>Click</button>\n}\n"
	app.WriteWorkspaceFile(t, token, appID, "src/components/Button.jsx", button)
	assert.Equal(t, button, app.ReadWorkspaceFile(t, token, appID, "src/components/Button.jsx"))

	// Reading a directory returns its listing, not content.
	srcListing := app.getJSON(t, fmt.Sprintf("/files/app/%d/src", appID), token, http.StatusOK)
	assert.Contains(t, fileNames(srcListing), "components")
	assert.Contains(t, fileNames(srcListing), "App.jsx")

	// Recursive walks cover the tree but prune dependency directories.
	app.WriteWorkspaceFile(t, token, appID, "node_modules/react/index.js", "module.exports = {}\n")
	recursive := app.getJSON(t, fmt.Sprintf("/files/app/%d?recursive=true", appID), token, http.StatusOK)
	paths := filePaths(recursive)
	assert.Contains(t, paths, "src/App.jsx")
	assert.Contains(t, paths, "src/components/Button.jsx")
	assert.NotContains(t, paths, "node_modules/react/index.js")

	// The shallow root listing still shows the pruned directory itself.
	root = app.getJSON(t, fmt.Sprintf("/files/app/%d", appID), token, http.StatusOK)
	assert.Contains(t, fileNames(root), "node_modules")

	// Overwrites are last-writer-wins.
	app.WriteWorkspaceFile(t, token, appID, "src/components/Button.jsx", "// gone\n")
	assert.Equal(t, "// gone\n", app.ReadWorkspaceFile(t, token, appID, "src/components/Button.jsx"))

	// Deleting a directory removes its contents.
	status, _ := app.request(t, http.MethodDelete, fmt.Sprintf("/files/app/%d/src/components", appID), token, nil)
	require.Equal(t, http.StatusNoContent, status)
	status, body := app.request(t, http.MethodGet, fmt.Sprintf("/files/app/%d/src/components/Button.jsx", appID), token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "file not found")

	status, _ = app.request(t, http.MethodDelete, fmt.Sprintf("/files/app/%d/no-such-file.txt", appID), token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestE2E_PathContainment(t *testing.T) {
	app := NewTestApp(t)
	token := app.RegisterUser(t, "traversal@example.com")
	appID, _ := app.CreateApp(t, token, "Locked App")

	// Dot segments that resolve outside the workspace are rejected before
	// any filesystem access, on reads and writes alike.
	status, body := app.request(t, http.MethodPut,
		fmt.Sprintf("/files/app/%d/src/../../escape.txt", appID), token,
		map[string]interface{}{"content": "pwned"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, body, "path escapes workspace root")

	status, body = app.request(t, http.MethodGet,
		fmt.Sprintf("/files/app/%d/src/../../../etc/passwd", appID), token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, body, "path escapes workspace root")

	// The workspace parent directory stayed clean.
	status, _ = app.request(t, http.MethodGet, fmt.Sprintf("/files/app/%d/escape.txt", appID), token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// A write needs a path.
	status, body = app.request(t, http.MethodPut,
		fmt.Sprintf("/files/app/%d/", appID), token,
		map[string]interface{}{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "file path is required")

	// Dot segments that stay inside the workspace are allowed.
	app.WriteWorkspaceFile(t, token, appID, "src/nested/../inside.txt", "fine")
	assert.Equal(t, "fine", app.ReadWorkspaceFile(t, token, appID, "src/inside.txt"))
}

// Workspaces are rooted per app: files written in one never show up in
// another, even for the same owner.
func TestE2E_WorkspaceIsolation(t *testing.T) {
	app := NewTestApp(t)
	token := app.RegisterUser(t, "isolation@example.com")
	firstID, _ := app.CreateApp(t, token, "First")
	secondID, _ := app.CreateApp(t, token, "Second")

	app.WriteWorkspaceFile(t, token, firstID, "notes.txt", "only in first")

	status, _ := app.request(t, http.MethodGet, fmt.Sprintf("/files/app/%d/notes.txt", secondID), token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "only in first", app.ReadWorkspaceFile(t, token, firstID, "notes.txt"))
}

// filePaths projects a files API response to its path list.
func filePaths(resp map[string]interface{}) []string {
	raw, _ := resp["files"].([]interface{})
	paths := make([]string, 0, len(raw))
	for _, f := range raw {
		entry, _ := f.(map[string]interface{})
		if p, ok := entry["path"].(string); ok {
			paths = append(paths, p)
		}
	}
	return paths
}
