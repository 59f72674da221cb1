package version

import (
	"strings"
	"testing"
)

func TestGoVersion(t *testing.T) {
	vsn := GoVersion()
	if vsn == "" {
		t.Error("expected a non-empty Go version")
	}
	if strings.HasPrefix(vsn, "go") {
		t.Errorf("expected the go prefix to be trimmed; got %q", vsn)
	}
}
