package coreerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"idle timeout", New(IdleTimeout, "no output", nil), true},
		{"hard timeout", New(HardTimeout, "wall clock exceeded", nil), true},
		{"non zero exit", New(NonZeroExit, "exit 1", nil), true},
		{"cancelled is benign", New(Cancelled, "user interrupt", nil), false},
		{"config invalid is fatal not transient", New(ConfigInvalid, "bad yaml", nil), false},
		{"plain error", errors.New("boom"), false},
		{"wrapped transient", fmt.Errorf("context: %w", New(SpawnFailed, "no binary", nil)), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", New(AmbiguousRouting, "dup trigger", nil))
	if KindOf(err) != AmbiguousRouting {
		t.Fatalf("expected AmbiguousRouting, got %v", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain error should have empty Kind")
	}
}
