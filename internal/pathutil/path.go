// Package pathutil provides path manipulation for slash-separated archive paths.
package pathutil

import "strings"

// Normalize converts a user-provided path to fs.ValidPath form.
//
//   - Strips leading and trailing slashes: "/etc/nginx/" → "etc/nginx"
//   - Collapses consecutive slashes: "etc//nginx" → "etc/nginx"
//   - Converts "" and "/" to "."
//
// "." and ".." elements are preserved so that validation can reject them.
func Normalize(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return "."
	}
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return "."
	}
	return strings.Join(result, "/")
}

// DirPrefix converts a directory path to its prefix form.
// For ".", returns "" (empty prefix matches all).
// For other paths, appends "/" to match children.
func DirPrefix(name string) string {
	if name == "." {
		return ""
	}
	return name + "/"
}

// Under reports whether path is dir itself or lies below it.
func Under(path, dir string) bool {
	if dir == "." || path == dir {
		return true
	}
	return strings.HasPrefix(path, DirPrefix(dir))
}
