package instance

import (
	"strings"
	"testing"
)

func TestIDPrefersOverride(t *testing.T) {
	t.Setenv(EnvInstanceID, "publisher-7")
	if got := ID("outbox-publisher"); got != "publisher-7" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestIDDerived(t *testing.T) {
	t.Setenv(EnvInstanceID, " ")
	got := ID("outbox-publisher")
	if !strings.HasPrefix(got, "outbox-publisher@") || !strings.Contains(got, ":") {
		t.Fatalf("unexpected derived id %q", got)
	}
}
