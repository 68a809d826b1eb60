package server

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountPath normalizes the API prefix to "" or "/a[/b...]" with no trailing slash.
func mountPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	if p = path.Clean("/" + p); p == "/" {
		return ""
	}
	return p
}

// projectDir validates the dir of PUT /project. Only trailing separators may be
// dropped by cleaning; anything else would change the encoded URL segment the
// server sees, so "." and ".." elements are rejected instead of resolved.
func projectDir(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("dir is required")
	}
	return cleanAbs("dir", raw)
}

func cleanAbs(param, raw string) (string, error) {
	if !filepath.IsAbs(raw) {
		return "", fmt.Errorf("%s %q must be absolute", param, raw)
	}
	clean := filepath.Clean(raw)
	if trimmed := strings.TrimRight(raw, string(filepath.Separator)); clean != raw && clean != trimmed {
		return "", fmt.Errorf("%s %q must not contain relative elements", param, raw)
	}
	return clean, nil
}

// executableArg validates the path of GET /resolve: either a clean absolute path
// or a bare command name such as "opencode" or "opencode.cmd".
func executableArg(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("path is required")
	}
	if filepath.IsAbs(raw) {
		return cleanAbs("path", raw)
	}
	if strings.Contains(raw, "..") {
		return "", fmt.Errorf("path %q must not contain ..", raw)
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return "", fmt.Errorf("path %q is neither absolute nor a bare command name", raw)
		}
	}
	return raw, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
}
