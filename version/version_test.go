package version

import (
	"strings"
	"testing"
)

func restore() func() {
	v, c, b := Version, GitCommit, BuildTime
	return func() { Version, GitCommit, BuildTime = v, c, b }
}

func TestGetDev(t *testing.T) {
	defer restore()()
	Version, GitCommit, BuildTime = "dev", "", ""

	info := Get()
	if info.Version != "dev" || info.Release {
		t.Errorf("info = %+v", info)
	}
	if len(info.GitCommit) > 7 {
		t.Errorf("commit not shortened: %q", info.GitCommit)
	}
}

func TestGetRelease(t *testing.T) {
	defer restore()()
	Version, GitCommit, BuildTime = "v1.4.0", "0123456789abcdef", "2024-06-01T10:00:00Z"

	info := Get()
	if !info.Release || info.GitCommit != "0123456" || info.BuildTime != "2024-06-01T10:00:00Z" {
		t.Errorf("info = %+v", info)
	}
	if !strings.HasPrefix(Short(), "v1.4.0-0123456") {
		t.Errorf("Short() = %q", Short())
	}
	s := info.String()
	if !strings.Contains(s, "whisper-subtitle v1.4.0 (0123456)") || !strings.Contains(s, "built 2024-06-01") {
		t.Errorf("String() = %q", s)
	}
}

func TestDirtyVersionIsNotRelease(t *testing.T) {
	defer restore()()
	Version = "v1.4.0-dirty"
	if Get().Release {
		t.Error("dirty build reported as release")
	}
}
