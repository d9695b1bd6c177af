package engine

import (
	"reflect"
	"testing"
)

func TestFindRuns(t *testing.T) {
	flags := []bool{false, false, true, true, true, false, true, true}

	marked := FindRuns(flags, 3)
	want := []bool{false, false, true, true, true, false, false, false}
	if !reflect.DeepEqual(marked, want) {
		t.Fatalf("expected %v, got %v", want, marked)
	}
}

func TestFindRunsAtEnd(t *testing.T) {
	flags := []bool{false, true, true, true}

	marked := FindRuns(flags, 3)
	want := []bool{false, true, true, true}
	if !reflect.DeepEqual(marked, want) {
		t.Fatalf("trailing run should be flushed: %v", marked)
	}
}

func TestFindRunsWholeSequence(t *testing.T) {
	marked := FindRuns([]bool{true, true, true}, 3)
	if !marked[0] || !marked[1] || !marked[2] {
		t.Fatalf("entire sequence is one run: %v", marked)
	}
}

func TestFindRunsNoneLongEnough(t *testing.T) {
	marked := FindRuns([]bool{true, true, false, true, false, true, true}, 3)
	for i, m := range marked {
		if m {
			t.Fatalf("index %d should not be marked", i)
		}
	}
}

func TestFindRunsEmptyAndMinRun(t *testing.T) {
	if got := FindRuns(nil, 3); len(got) != 0 {
		t.Fatalf("empty input should yield empty output, got %v", got)
	}

	marked := FindRuns([]bool{true}, 1)
	if !marked[0] {
		t.Fatal("min run of 1 marks every anomalous shift")
	}
}
