package util

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("lock")
	if !strings.HasPrefix(id, "lock_") || len(id) != len("lock_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("lock") == id {
		t.Fatal("ids should not repeat")
	}
}

func TestNewRunIDSortsByStart(t *testing.T) {
	earlier := NewRunID(time.Date(2024, 1, 10, 7, 30, 15, 0, time.UTC))
	later := NewRunID(time.Date(2024, 1, 10, 7, 30, 16, 0, time.UTC))
	if !strings.HasPrefix(earlier, "run_20240110T073015Z_") {
		t.Fatalf("unexpected run id %q", earlier)
	}
	if earlier >= later {
		t.Fatalf("expected %q < %q", earlier, later)
	}
}
