package diff

import "testing"

func TestTextDiffLines(t *testing.T) {
	before := "alpha\nbeta\n"
	after := "alpha\ngamma\n"
	hunks := TextDiff(before, after)
	if len(hunks) == 0 {
		t.Fatalf("expected hunks")
	}
	lines := hunks[0].Lines
	if len(lines) == 0 {
		t.Fatalf("expected lines")
	}
	foundAdded := false
	foundRemoved := false
	for _, line := range lines {
		if line.Type == LineAdded {
			foundAdded = true
		}
		if line.Type == LineRemoved {
			foundRemoved = true
		}
	}
	if !foundAdded || !foundRemoved {
		t.Fatalf("expected added and removed lines")
	}
}

func TestComputeStats(t *testing.T) {
	before := "a\nb\nc\n"
	after := "a\nx\ny\nc\n"
	stats := ComputeStats(before, after)
	if stats.LinesRemoved != 1 {
		t.Fatalf("expected 1 removed line, got %d", stats.LinesRemoved)
	}
	if stats.LinesAdded != 2 {
		t.Fatalf("expected 2 added lines, got %d", stats.LinesAdded)
	}
}

func TestTextDiffWithLimit(t *testing.T) {
	_, truncated := TextDiffWithLimit("a\nb\n", "a\nc\n", 1)
	if !truncated {
		t.Fatalf("expected truncation below the line budget")
	}
	hunks, truncated := TextDiffWithLimit("a\nb\n", "a\nc\n", 100)
	if truncated || len(hunks) == 0 {
		t.Fatalf("expected full diff under the budget")
	}
}
