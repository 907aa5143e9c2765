package stream

import (
	"encoding/json"
	"fmt"

	"github.com/webforge-labs/webforge/pkg/llm"
	"github.com/webforge-labs/webforge/pkg/workspace"
)

// Tool names exposed to the model. The set is closed: the model cannot reach
// anything outside the workspace store.
const (
	toolWriteFile  = "writeFile"
	toolReadFile   = "readFile"
	toolListFiles  = "listFiles"
	toolDeleteFile = "deleteFile"
)

// ToolDefinitions returns the tool schemas advertised to the model. Declared
// once; both provider bindings consume the same schemas.
func ToolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        toolWriteFile,
			Description: "Create or overwrite a file in the project. Missing parent directories are created. Always provide the complete file contents.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Project-relative file path, e.g. src/App.jsx",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Complete contents of the file",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        toolReadFile,
			Description: "Read a file from the project and return its contents.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Project-relative file path",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        toolListFiles,
			Description: "List the files in a project directory. Omit path to list the project root.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Project-relative directory path; empty for the root",
					},
				},
			},
		},
		{
			Name:        toolDeleteFile,
			Description: "Delete a file or directory from the project.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Project-relative path to delete",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// ToolRunner executes the model's tool calls against one workspace store,
// inheriting its path-safety contract.
type ToolRunner struct {
	store *workspace.Store
}

// NewToolRunner binds the tool set to a workspace.
func NewToolRunner(store *workspace.Store) *ToolRunner {
	return &ToolRunner{store: store}
}

// ToolOutcome is the result of one tool invocation. Result is the JSON
// payload returned to the model. Mutated marks a successful workspace
// change; Path and Summary then feed the client's fileUpdate frame.
type ToolOutcome struct {
	Result  string
	Path    string
	Summary string
	Mutated bool
}

// Execute runs a single tool call. Failures come back as structured
// {success:false, error} results, never as Go errors, so the model can
// observe them and adapt.
func (r *ToolRunner) Execute(call llm.ToolCall) ToolOutcome {
	switch call.Name {
	case toolWriteFile:
		return r.writeFile(call.Input)
	case toolReadFile:
		return r.readFile(call.Input)
	case toolListFiles:
		return r.listFiles(call.Input)
	case toolDeleteFile:
		return r.deleteFile(call.Input)
	default:
		return toolFailure(fmt.Sprintf("unknown tool %q", call.Name))
	}
}

func (r *ToolRunner) writeFile(input json.RawMessage) ToolOutcome {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolFailure("invalid writeFile arguments: " + err.Error())
	}
	if err := r.store.Write(args.Path, []byte(args.Content)); err != nil {
		return toolFailure(err.Error())
	}
	return ToolOutcome{
		Result: toolJSON(map[string]any{
			"success": true,
			"path":    args.Path,
			"message": "file written",
		}),
		Path:    args.Path,
		Summary: "Updated " + args.Path,
		Mutated: true,
	}
}

func (r *ToolRunner) readFile(input json.RawMessage) ToolOutcome {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolFailure("invalid readFile arguments: " + err.Error())
	}
	data, err := r.store.Read(args.Path)
	if err != nil {
		return toolFailure(err.Error())
	}
	return ToolOutcome{
		Result: toolJSON(map[string]any{
			"success": true,
			"path":    args.Path,
			"content": string(data),
		}),
	}
}

func (r *ToolRunner) listFiles(input json.RawMessage) ToolOutcome {
	var args struct {
		Path string `json:"path"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return toolFailure("invalid listFiles arguments: " + err.Error())
		}
	}
	entries, err := r.store.List(args.Path)
	if err != nil {
		return toolFailure(err.Error())
	}

	type listEntry struct {
		Name        string `json:"name"`
		IsDirectory bool   `json:"isDirectory"`
	}
	files := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		files = append(files, listEntry{Name: e.Name, IsDirectory: e.IsDir})
	}
	return ToolOutcome{
		Result: toolJSON(map[string]any{
			"success": true,
			"files":   files,
		}),
	}
}

func (r *ToolRunner) deleteFile(input json.RawMessage) ToolOutcome {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return toolFailure("invalid deleteFile arguments: " + err.Error())
	}
	if err := r.store.Delete(args.Path); err != nil {
		return toolFailure(err.Error())
	}
	return ToolOutcome{
		Result: toolJSON(map[string]any{
			"success": true,
			"path":    args.Path,
			"message": "file deleted",
		}),
		Path:    args.Path,
		Summary: "Deleted " + args.Path,
		Mutated: true,
	}
}

func toolFailure(msg string) ToolOutcome {
	return ToolOutcome{Result: toolJSON(map[string]any{
		"success": false,
		"error":   msg,
	})}
}

func toolJSON(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return `{"success":false,"error":"failed to encode tool result"}`
	}
	return string(data)
}
