package storage

import (
	"fmt"
	"mime"
	"path"
	"strings"
)

// CleanPath normalises a caller supplied relative path. The root is "".
// Traversal segments, control characters and backslashes are rejected.
func CleanPath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.ContainsAny(raw, "\\\x00") {
		return "", ErrInvalidPath
	}
	for _, r := range raw {
		if r < 0x20 || r == 0x7f {
			return "", ErrInvalidPath
		}
	}
	segments := strings.Split(strings.Trim(raw, "/"), "/")
	out := segments[:0]
	for _, segment := range segments {
		switch segment {
		case "":
			continue
		case ".", "..":
			return "", ErrInvalidPath
		}
		out = append(out, segment)
	}
	return strings.Join(out, "/"), nil
}

// DocumentPath joins a folder and a file name, validating both.
func DocumentPath(folder, fileName string) (string, error) {
	folder, err := validateSegment("folder", folder)
	if err != nil {
		return "", err
	}
	fileName, err = validateSegment("fileName", fileName)
	if err != nil {
		return "", err
	}
	return folder + "/" + fileName, nil
}

// ContentTypeFor guesses a download content type from the file extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	if guessed := mime.TypeByExtension(path.Ext(name)); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidPath, name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("%w: %s contains path separators", ErrInvalidPath, name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("%w: %s contains a traversal sequence", ErrInvalidPath, name)
	}
	return value, nil
}

func joinPath(base, rel string) string {
	base = strings.TrimRight(base, "/")
	if rel == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return base + "/" + rel
}
