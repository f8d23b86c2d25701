package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	unsafeNameChars     = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BuildStagingKey returns "<jobID>/<name>" where name is the sanitized base
// name of the uploaded file, or "upload" when nothing usable remains.
func BuildStagingKey(jobID, fileName string) (string, error) {
	if !keyComponentPattern.MatchString(jobID) {
		return "", fmt.Errorf("invalid job id: %q", jobID)
	}
	return path.Join(jobID, sanitizeFileName(fileName)), nil
}

// NormalizeKey cleans a relative key and rejects traversal outside the root.
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "upload"
	}
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	return name
}
