// Package testutil provides shared test assertions for the simulator's
// packages.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/robosim/internal/geom"
	"github.com/banshee-data/robosim/internal/units"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertAngleNear compares two headings in radians modulo 2π.
func AssertAngleNear(t testing.TB, got, want, tol float64) {
	t.Helper()
	if d := angleDiff(got, want); d > tol {
		t.Errorf("angle = %.6f rad, want %.6f rad (±%g, off by %g)", got, want, tol, d)
	}
}

// AssertPoseNear compares position within tol meters and heading within
// tol radians.
func AssertPoseNear(t testing.TB, got, want geom.Pose, tol float64) {
	t.Helper()
	if math.Abs(got.X-want.X) > tol || math.Abs(got.Y-want.Y) > tol || angleDiff(got.Theta, want.Theta) > tol {
		t.Errorf("pose = %v, want %v (±%g)", got, want, tol)
	}
}

func angleDiff(a, b float64) float64 {
	d := units.NormalizeRadians(a - b)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return math.Abs(d)
}
