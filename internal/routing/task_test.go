package routing

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskOpen, TaskInProgress, true},
		{TaskOpen, TaskCompleted, true},
		{TaskInProgress, TaskClosed, true},
		{TaskClosed, TaskOpen, true},
		{TaskCompleted, TaskOpen, false},
		{TaskCompleted, TaskInProgress, false},
		{TaskClosed, TaskInProgress, false},
		{TaskOpen, TaskOpen, false},
		{TaskOpen, "archived", false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDefaultTitle(t *testing.T) {
	if got := defaultTitle("support"); got != "Support Task" {
		t.Fatalf("got %q", got)
	}
	if got := defaultTitle(""); got != "Task" {
		t.Fatalf("got %q", got)
	}
}
