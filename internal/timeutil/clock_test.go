package timeutil

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

func TestRealClock_Ticker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	if d := clock.Since(time.Now().Add(-time.Second)); d < time.Second {
		t.Errorf("Since() = %v, want >= 1s", d)
	}
}

func TestMockClock_Advance(t *testing.T) {
	clock := NewMockClock(epoch)
	clock.Advance(90 * time.Second)

	if got := clock.Since(epoch); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
}

func TestMockClock_SleepAdvances(t *testing.T) {
	clock := NewMockClock(epoch)
	clock.Sleep(time.Second)
	clock.Sleep(250 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 250*time.Millisecond {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if got := clock.Now(); !got.Equal(epoch.Add(1250 * time.Millisecond)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestMockClock_Ticker(t *testing.T) {
	clock := NewMockClock(epoch)
	ticker := clock.NewTicker(10 * time.Millisecond)

	clock.Advance(5 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticked early")
	default:
	}

	clock.Advance(5 * time.Millisecond)
	select {
	case got := <-ticker.C():
		if !got.Equal(epoch.Add(10 * time.Millisecond)) {
			t.Errorf("tick at %v", got)
		}
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}
}

func TestMockTicker_TriggerDropsUnread(t *testing.T) {
	clock := NewMockClock(epoch)
	ticker := clock.NewTicker(time.Hour).(*MockTicker)

	ticker.Trigger(epoch)
	ticker.Trigger(epoch.Add(time.Second))

	if got := <-ticker.C(); !got.Equal(epoch) {
		t.Errorf("first tick = %v, want %v", got, epoch)
	}
	select {
	case <-ticker.C():
		t.Error("second tick should have been dropped")
	default:
	}
}
