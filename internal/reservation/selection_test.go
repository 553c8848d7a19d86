package reservation

import (
	"math/rand"
	"testing"
)

func slot(hhmm string, minute, present, free int) Slot {
	return Slot{Time: hhmm, Minute: minute, Present: present, Free: free}
}

func TestChooseSlotFullFlightBeatsEarlierTime(t *testing.T) {
	// 7:30 is out of range, 7:50 has two seats, 8:10 is wide open.
	slots := []Slot{
		slot("07:30", 7*60+30, 0, 4),
		slot("07:50", 7*60+50, 2, 2),
		slot("08:10", 8*60+10, 0, 4),
	}
	got, ok := ChooseSlot(slots, 7*60+50, 9*60)
	if !ok {
		t.Fatal("expected a slot")
	}
	if got.Time != "08:10" {
		t.Errorf("chose %s, want 08:10 (full-capacity tier first)", got.Time)
	}
}

func TestChooseSlotEarliestWithinTier(t *testing.T) {
	slots := []Slot{
		slot("09:00", 9*60, 0, 4),
		slot("08:00", 8*60, 0, 4),
		slot("08:30", 8*60+30, 0, 4),
	}
	got, ok := ChooseSlot(slots, 0, 24*60)
	if !ok || got.Time != "08:00" {
		t.Errorf("chose %v, want 08:00", got.Time)
	}
}

func TestChooseSlotFallsThroughTiers(t *testing.T) {
	slots := []Slot{
		slot("10:00", 10*60, 3, 1),
		slot("09:00", 9*60, 2, 2),
	}
	got, ok := ChooseSlot(slots, 0, 24*60)
	if !ok || got.Free != 2 {
		t.Errorf("chose free=%d at %s, want the 2-seat tier", got.Free, got.Time)
	}
}

func TestChooseSlotRespectsWindow(t *testing.T) {
	slots := []Slot{
		slot("07:00", 7*60, 0, 4),
		slot("14:00", 14*60, 0, 4),
	}
	if _, ok := ChooseSlot(slots, 8*60, 13*60); ok {
		t.Fatal("selected a slot outside the window")
	}
	// Window bounds are inclusive.
	got, ok := ChooseSlot(slots, 7*60, 13*60)
	if !ok || got.Minute != 7*60 {
		t.Errorf("inclusive lower bound not honored: %v %v", got, ok)
	}
}

func TestChooseSlotEmpty(t *testing.T) {
	if _, ok := ChooseSlot(nil, 0, 24*60); ok {
		t.Fatal("empty slot list must select nothing")
	}
}

func TestFastVariantAgrees(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 500; trial++ {
		n := rng.Intn(12)
		slots := make([]Slot, 0, n)
		for i := 0; i < n; i++ {
			free := rng.Intn(5)
			slots = append(slots, slot("", 6*60+10*rng.Intn(60), 4-free, free))
		}
		lo := 6*60 + 10*rng.Intn(30)
		hi := lo + 10*rng.Intn(40)

		a, okA := ChooseSlot(slots, lo, hi)
		b, okB := ChooseSlotFast(slots, lo, hi)
		if okA != okB || (okA && (a.Minute != b.Minute || a.Free != b.Free)) {
			t.Fatalf("trial %d: slow=(%v,%v) fast=(%v,%v) slots=%v window=[%d,%d]",
				trial, a, okA, b, okB, slots, lo, hi)
		}
		if okA {
			if a.Minute < lo || a.Minute > hi {
				t.Fatalf("trial %d: selection outside window: %v not in [%d,%d]", trial, a, lo, hi)
			}
			// A full-capacity in-range slot must never lose.
			for _, s := range slots {
				if s.Minute >= lo && s.Minute <= hi && s.Free > a.Free {
					t.Fatalf("trial %d: picked free=%d while free=%d was in range", trial, a.Free, s.Free)
				}
			}
		}
	}
}
