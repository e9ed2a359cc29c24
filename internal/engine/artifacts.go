package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CollectArtifacts walks the session's output directory and returns a
// descriptor for every regular file found. The wrapped frameworks write
// their results to disk rather than returning them inline, so this runs
// after a completed terminal output.
func CollectArtifacts(outputDir string) ([]Artifact, error) {
	info, err := os.Stat(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat output dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("output path %s is not a directory", outputDir)
	}

	var artifacts []Artifact
	err = filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		artifacts = append(artifacts, Artifact{
			Type: artifactType(path),
			Name: filepath.Base(path),
			Path: path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output dir: %w", err)
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return artifacts, nil
}

func artifactType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".pdf", ".docx", ".tex":
		return "document"
	case ".png", ".jpg", ".jpeg", ".svg", ".gif":
		return "visualization"
	case ".csv", ".json", ".parquet", ".xlsx":
		return "data"
	case ".py", ".go", ".sh", ".ipynb":
		return "code"
	default:
		return "file"
	}
}
