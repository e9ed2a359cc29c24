package engine

import (
	"fmt"
	"strings"
)

// InputFile points at an uploaded file inside the session workspace.
// The executor places the session's input files under the
// "uploaded_files" key of input_data before Execute is driven.
type InputFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

const inputFilesKey = "uploaded_files"

func FilesFromInput(inputData map[string]any) []InputFile {
	raw, ok := inputData[inputFilesKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []InputFile:
		return v
	case []any:
		files := make([]InputFile, 0, len(v))
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := entry["name"].(string)
			path, _ := entry["path"].(string)
			if name == "" || path == "" {
				continue
			}
			files = append(files, InputFile{Name: name, Path: path})
		}
		return files
	default:
		return nil
	}
}

// RenderTask appends the uploaded-file listing to a task description.
// The wrapped frameworks reference inputs by absolute path, so every
// file is rendered as "name -> path" in a trailing section.
func RenderTask(task string, files []InputFile) string {
	if len(files) == 0 {
		return task
	}
	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nUploaded files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s -> %s\n", f.Name, f.Path)
	}
	return b.String()
}
