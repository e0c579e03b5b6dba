package version

import (
	"strings"
	"testing"
)

func TestStringUsesCommitOverride(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })
	Commit = "abc123"
	got := String()
	if !strings.HasPrefix(got, "jukeboxd "+Version+" (abc123,") {
		t.Fatalf("banner = %q", got)
	}
}
