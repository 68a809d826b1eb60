package supervisor

import (
	"encoding/base64"
	"net"
	"strconv"
)

// BaseURL is the server's origin, e.g. http://127.0.0.1:14096.
func BaseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// BuildURL appends the project directory, base64 encoded with padding, as the first
// path segment. Without a project directory it is just the base URL.
func BuildURL(host string, port int, projectDir string) string {
	base := BaseURL(host, port)
	if projectDir == "" {
		return base
	}
	return base + "/" + EncodeProjectSegment(projectDir)
}

// EncodeProjectSegment encodes a project directory for use in a server URL.
func EncodeProjectSegment(projectDir string) string {
	return base64.StdEncoding.EncodeToString([]byte(projectDir))
}

// DecodeProjectSegment reverses EncodeProjectSegment.
func DecodeProjectSegment(seg string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(seg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
