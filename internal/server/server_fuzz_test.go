package server

import (
	"path/filepath"
	"strings"
	"testing"
)

func FuzzExecutableArg(f *testing.F) {
	for _, s := range []string{"opencode", "opencode.cmd", "", "..", "../etc/passwd", "a/b", `a\b`, "name\x00", "한글", "/usr/bin/opencode"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		got, err := executableArg(raw)
		if err != nil {
			return
		}
		if filepath.IsAbs(raw) {
			if got != filepath.Clean(raw) {
				t.Fatalf("executableArg(%q) = %q, not clean", raw, got)
			}
			return
		}
		if got != raw || strings.Contains(raw, "..") || strings.ContainsAny(raw, `/\`) {
			t.Fatalf("executableArg(%q) accepted %q", raw, got)
		}
	})
}

func FuzzProjectDir(f *testing.F) {
	for _, s := range []string{"/safe/path", "", "/", "relative", "/a/../b", "/a/./b", "/a//b", `C:\Windows`, "/with space", "/x/"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		got, err := projectDir(raw)
		if err != nil {
			return
		}
		if !filepath.IsAbs(got) || got != filepath.Clean(got) {
			t.Fatalf("projectDir(%q) = %q", raw, got)
		}
		if got != strings.TrimRight(raw, string(filepath.Separator)) && got != raw {
			t.Fatalf("projectDir(%q) rewrote more than trailing separators: %q", raw, got)
		}
	})
}

func FuzzMountPath(f *testing.F) {
	for _, s := range []string{"", "/", "/api", "/api/", "api", "  /api/v1/  ", "//x//", "/../a"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, bp string) {
		got := mountPath(bp)
		if got == "" {
			return
		}
		if !strings.HasPrefix(got, "/") || strings.HasSuffix(got, "/") || strings.Contains(got, "//") {
			t.Fatalf("mountPath(%q) = %q", bp, got)
		}
	})
}
