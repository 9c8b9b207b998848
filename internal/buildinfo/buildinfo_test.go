package buildinfo

import "testing"

func TestSummaryFormats(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })

	Version, Commit, Date = "v1.2.0", "abc123", "2026-08-29"
	if got := Summary(); got != "v1.2.0 (abc123 2026-08-29)" {
		t.Fatalf("Summary() = %q", got)
	}

	Version, Commit, Date = "v1.2.0", "", "2026-08-29"
	if got := Summary(); got != "v1.2.0 (2026-08-29)" {
		t.Fatalf("Summary() = %q", got)
	}

	Version, Commit, Date = "v1.2.0", "", ""
	if got := Summary(); got != "v1.2.0" {
		t.Fatalf("Summary() = %q", got)
	}
}
