package oscillator

import "testing"

func TestSyncPhaseResetsOnRisingEdge(t *testing.T) {
	o := New(48000.0)
	o.SetFrequency(220.0)

	for i := 0; i < 100; i++ {
		o.Sine()
	}
	if o.phase == 0 {
		t.Fatal("phase should have advanced away from 0 before any sync")
	}

	if fired := o.SyncPhase(0); fired {
		t.Fatal("a non-positive trigger must not fire sync")
	}
	if fired := o.SyncPhase(1.0); !fired {
		t.Fatal("a rising edge from 0 to 1 should fire sync")
	}
	if o.phase != 0 {
		t.Errorf("phase after sync = %v, want 0", o.phase)
	}

	if fired := o.SyncPhase(1.0); fired {
		t.Fatal("sustaining a high trigger must not refire sync")
	}
}

func TestSyncPhaseOnlyFiresOnRisingEdge(t *testing.T) {
	o := New(48000.0)
	edges := 0
	trigger := []float64{0, 0, 1, 1, 0, 1, 0, 0, 1}
	for _, v := range trigger {
		if o.SyncPhase(v) {
			edges++
		}
	}
	if edges != 3 {
		t.Errorf("counted %d sync edges over %v, want 3", edges, trigger)
	}
}
