// Package test provides testing utilities for the peri checker.
//
// This follows esbuild's testing patterns with helper functions
// for assertions and diffs of rendered output.
package test

import (
	"fmt"
	"strings"
	"testing"
)

// AssertEqual checks if two values are equal and reports a test error if not.
func AssertEqual[T comparable](t *testing.T, actual, expected T) {
	t.Helper()
	if actual != expected {
		t.Errorf("\nexpected: %v\nactual:   %v", expected, actual)
	}
}

// AssertEqualWithDiff checks if two strings are equal and shows a diff if not.
func AssertEqualWithDiff(t *testing.T, actual, expected string) {
	t.Helper()
	if actual != expected {
		t.Errorf("\n%s", Diff(expected, actual))
	}
}

// AssertContains checks that s contains every one of the substrings.
func AssertContains(t *testing.T, s string, substrings ...string) {
	t.Helper()
	for _, sub := range substrings {
		if !strings.Contains(s, sub) {
			t.Errorf("expected output to contain %q, got:\n%s", sub, s)
		}
	}
}

// AssertNotContains checks that s contains none of the substrings.
func AssertNotContains(t *testing.T, s string, substrings ...string) {
	t.Helper()
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			t.Errorf("expected output not to contain %q, got:\n%s", sub, s)
		}
	}
}

// Diff produces a line-by-line diff between two strings. Differing lines
// are prefixed with -/+ and their 1-based line number, since most rendered
// output in this module points at source lines itself.
func Diff(expected, actual string) string {
	want := strings.Split(expected, "\n")
	got := strings.Split(actual, "\n")

	var sb strings.Builder
	sb.WriteString("--- expected\n+++ actual\n")

	for i := range max(len(want), len(got)) {
		var w, g string
		if i < len(want) {
			w = want[i]
		}
		if i < len(got) {
			g = got[i]
		}

		switch {
		case w == g:
			fmt.Fprintf(&sb, "   %4d  %s\n", i+1, w)
		default:
			if i < len(want) {
				fmt.Fprintf(&sb, "-  %4d  %s\n", i+1, w)
			}
			if i < len(got) {
				fmt.Fprintf(&sb, "+  %4d  %s\n", i+1, g)
			}
		}
	}

	return sb.String()
}
