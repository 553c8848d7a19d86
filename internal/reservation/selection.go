package reservation

// ChooseSlot picks a slot inside [earliest, latest] (minutes of day,
// inclusive). Capacity tiers are evaluated with the most seats remaining
// first, down to a single seat: a fully open slot beats a half-full one even
// at a worse time, and within a tier the earliest time wins. Returns false if
// no slot is in range.
func ChooseSlot(slots []Slot, earliest, latest int) (Slot, bool) {
	maxFree := 0
	for _, s := range slots {
		if s.Free > maxFree {
			maxFree = s.Free
		}
	}
	for want := maxFree; want >= 1; want-- {
		var best Slot
		found := false
		for _, s := range slots {
			if s.Free != want || s.Minute < earliest || s.Minute > latest {
				continue
			}
			if !found || s.Minute < best.Minute {
				best = s
				found = true
			}
		}
		if found {
			return best, true
		}
	}
	return Slot{}, false
}

// ChooseSlotFast is ChooseSlot without the per-tier full scan: slots are
// walked once in time order per tier and the first in-range hit wins. The
// choice is identical; it only avoids building candidate sets for crowded
// sheets.
func ChooseSlotFast(slots []Slot, earliest, latest int) (Slot, bool) {
	maxFree := 0
	for _, s := range slots {
		if s.Free > maxFree {
			maxFree = s.Free
		}
	}
	order := byMinute(slots)
	for want := maxFree; want >= 1; want-- {
		for _, i := range order {
			s := slots[i]
			if s.Free == want && s.Minute >= earliest && s.Minute <= latest {
				return s, true
			}
		}
	}
	return Slot{}, false
}

// byMinute returns index order sorted by minute of day, stable for ties.
func byMinute(slots []Slot) []int {
	idx := make([]int, len(slots))
	for i := range idx {
		idx[i] = i
	}
	// insertion sort; slot lists are tiny
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && slots[idx[j]].Minute < slots[idx[j-1]].Minute; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}
