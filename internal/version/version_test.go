package version

import "testing"

func TestString(t *testing.T) {
	if got, want := String(), "icrag dev (commit unknown, built unknown)"; got != want {
		t.Errorf("unstamped String() = %q, want %q", got, want)
	}

	v, c, d := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = v, c, d })
	Version, Commit, BuildDate = "v0.3.0", "1a2b3c4", "2026-10-14T09:00:00Z"

	if got, want := String(), "icrag v0.3.0 (commit 1a2b3c4, built 2026-10-14T09:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
