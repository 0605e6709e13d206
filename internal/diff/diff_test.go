package diff

import (
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
	}{
		{
			name:   "single line replaced",
			before: "a\nb\nc\n",
			after:  "a\nB\nc\n",
		},
		{
			name:   "line inserted",
			before: "a\nb\nc\n",
			after:  "a\nb\nx\nc\n",
		},
		{
			name:   "line deleted",
			before: "a\nb\nc\n",
			after:  "a\nc\n",
		},
		{
			name:   "new file",
			before: "",
			after:  "package main\n\nfunc main() {}\n",
		},
		{
			name:   "file emptied",
			before: "a\nb\n",
			after:  "",
		},
		{
			name:   "no trailing newline before",
			before: "a\nb",
			after:  "a\nb\n",
		},
		{
			name:   "no trailing newline after",
			before: "a\nb\n",
			after:  "a\nb",
		},
		{
			name:   "no trailing newline either side",
			before: "a\nb",
			after:  "a\nc",
		},
		{
			name:   "change at end of file",
			before: "a\nb\nc\n",
			after:  "a\nb\nC\n",
		},
		{
			name: "two distant hunks",
			before: "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n" +
				"11\n12\n13\n14\n15\n16\n17\n18\n19\n20\n",
			after: "1\ntwo\n3\n4\n5\n6\n7\n8\n9\n10\n" +
				"11\n12\n13\n14\n15\n16\n17\n18\nnineteen\n20\n",
		},
		{
			name:   "adjacent hunks merge",
			before: "1\n2\n3\n4\n5\n6\n7\n8\n",
			after:  "1\nX\n3\n4\n5\nY\n7\n8\n",
		},
		{
			name:   "full rewrite",
			before: "old content\nmore old\n",
			after:  "entirely new\n",
		},
		{
			name:   "blank lines in context",
			before: "a\n\nb\n\nc\n",
			after:  "a\n\nb\n\nC\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Create("src/file.txt", tt.before, tt.after)
			if d == "" {
				t.Fatal("Create returned empty diff for differing contents")
			}
			got, err := Apply(tt.before, d)
			if err != nil {
				t.Fatalf("Apply: %v\ndiff:\n%s", err, d)
			}
			if got != tt.after {
				t.Errorf("round trip mismatch\ndiff:\n%s\ngot:  %q\nwant: %q", d, got, tt.after)
			}
		})
	}
}

func TestCreateIdentical(t *testing.T) {
	if d := Create("f.txt", "same\n", "same\n"); d != "" {
		t.Errorf("expected empty diff, got %q", d)
	}
}

func TestCreateHeaders(t *testing.T) {
	d := Create("src/a.ts", "x\n", "y\n")
	if !strings.HasPrefix(d, "--- a/src/a.ts\n+++ b/src/a.ts\n") {
		t.Errorf("missing file headers:\n%s", d)
	}
	if !strings.Contains(d, "@@ -1 +1 @@") {
		t.Errorf("unexpected hunk header:\n%s", d)
	}
}

func TestApplyContextMismatch(t *testing.T) {
	d := Create("f.txt", "a\nb\nc\n", "a\nB\nc\n")
	_, err := Apply("a\nDIFFERENT\nc\n", d)
	if err == nil {
		t.Fatal("expected error applying against drifted content")
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Errorf("error should name the mismatch, got %v", err)
	}
}

func TestApplyMalformed(t *testing.T) {
	tests := []struct {
		name string
		diff string
	}{
		{"empty", ""},
		{"no hunks", "--- a/f\n+++ b/f\n"},
		{"garbage body", "@@ -1 +1 @@\n*what\n"},
		{"count mismatch", "@@ -1,2 +1,2 @@\n-a\n+b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Apply("a\n", tt.diff); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestApplyToleratesGitHeaders(t *testing.T) {
	d := "diff --git a/f.txt b/f.txt\n" +
		"index 0000000..1111111 100644\n" +
		"--- a/f.txt\n" +
		"+++ b/f.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" a\n" +
		"-b\n" +
		"+B\n" +
		" c\n"
	got, err := Apply("a\nb\nc\n", d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != "a\nB\nc\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyInsertionIntoEmpty(t *testing.T) {
	d := Create("f.txt", "", "hello\nworld\n")
	got, err := Apply("", d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got != "hello\nworld\n" {
		t.Errorf("got %q", got)
	}
}

func TestExtractPath(t *testing.T) {
	tests := []struct {
		name string
		diff string
		want string
	}{
		{"with prefix", "--- a/src/x.go\n+++ b/src/x.go\n@@ -1 +1 @@\n-a\n+b\n", "src/x.go"},
		{"dev null new side", "--- a/x\n+++ /dev/null\n", ""},
		{"no headers", "@@ -1 +1 @@\n-a\n+b\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPath(tt.diff); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyPreservesOriginalOnError(t *testing.T) {
	original := "keep\nme\nintact\n"
	d := "@@ -1 +1 @@\n-nope\n+changed\n"
	got, err := Apply(original, d)
	if err == nil {
		t.Fatalf("expected error, got %q", got)
	}
	if got != "" {
		t.Errorf("failed Apply should return empty content, got %q", got)
	}
}
