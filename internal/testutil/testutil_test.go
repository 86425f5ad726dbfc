package testutil

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"testing"

	"github.com/banshee-data/robosim/internal/geom"
)

// recordingTB captures failures instead of failing the real test.
type recordingTB struct {
	testing.TB
	failures []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func (r *recordingTB) Fatalf(format string, args ...any) { r.Errorf(format, args...) }

func (r *recordingTB) Fatal(args ...any) { r.failures = append(r.failures, fmt.Sprint(args...)) }

func TestAssertStatusCode(t *testing.T) {
	tb := &recordingTB{TB: t}
	AssertStatusCode(tb, http.StatusOK, http.StatusOK)
	if len(tb.failures) != 0 {
		t.Fatalf("unexpected failures: %v", tb.failures)
	}
	AssertStatusCode(tb, http.StatusOK, http.StatusBadRequest)
	if len(tb.failures) != 1 {
		t.Fatalf("expected one failure, got %v", tb.failures)
	}
}

func TestAssertErrors(t *testing.T) {
	tb := &recordingTB{TB: t}
	AssertNoError(tb, nil)
	AssertError(tb, errors.New("boom"))
	if len(tb.failures) != 0 {
		t.Fatalf("unexpected failures: %v", tb.failures)
	}
	AssertNoError(tb, errors.New("boom"))
	AssertError(tb, nil)
	if len(tb.failures) != 2 {
		t.Fatalf("expected two failures, got %v", tb.failures)
	}
}

func TestAssertAngleNear(t *testing.T) {
	tests := []struct {
		name      string
		got, want float64
		fail      bool
	}{
		{"equal", 1, 1, false},
		{"wraps past zero", 2*math.Pi - 0.001, 0.001, false},
		{"negative", -math.Pi / 2, 3 * math.Pi / 2, false},
		{"opposite", 0, math.Pi, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := &recordingTB{TB: t}
			AssertAngleNear(tb, tt.got, tt.want, 0.01)
			if failed := len(tb.failures) > 0; failed != tt.fail {
				t.Errorf("failed = %v, want %v (%v)", failed, tt.fail, tb.failures)
			}
		})
	}
}

func TestAssertPoseNear(t *testing.T) {
	tb := &recordingTB{TB: t}
	AssertPoseNear(tb, geom.Pose{X: 1, Y: 2, Theta: 0}, geom.Pose{X: 1.0001, Y: 2, Theta: 2 * math.Pi}, 1e-3)
	if len(tb.failures) != 0 {
		t.Fatalf("unexpected failures: %v", tb.failures)
	}
	AssertPoseNear(tb, geom.Pose{X: 1, Y: 2}, geom.Pose{X: 1.1, Y: 2}, 1e-3)
	if len(tb.failures) != 1 {
		t.Fatalf("expected one failure, got %v", tb.failures)
	}
}
