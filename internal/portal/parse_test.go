package portal

import (
	"reflect"
	"testing"
	"time"
)

var sheetDay = time.Date(2025, 9, 6, 0, 0, 0, 0, time.UTC)

const sheetPayload = `<html><body>
<h2>Tee Sheet &mdash; Saturday, September 6, 2025</h2>
<table>
<tr><td><a href="#" onclick="bookSlot(1,'09/06/2025','07:30','A',0,4)">7:30</a></td></tr>
<tr><td><a href="#" onclick="bookSlot(1,'09/06/2025','07:50','A',2,2)">7:50</a></td></tr>
<tr><td><a href="#" onclick="bookSlot(1,'09/06/2025','08:10','B',4,0)">8:10 (full)</a></td></tr>
<tr><td><a href="#" onclick="bookSlot(1,'09/06/2025','07:50','A',2,2)">7:50 dup</a></td></tr>
</table>
<script>
  registerSlot("bookSlot(2,'09/06/2025','08:30','A',1,3)");
</script>
</body></html>`

func TestParseSlots(t *testing.T) {
	slots := ParseSlots(sheetPayload, sheetDay)
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3 (dup collapsed, full dropped): %+v", len(slots), slots)
	}
	if slots[0].Time != "07:30" || slots[0].Free != 4 || slots[0].Total() != 4 {
		t.Errorf("slot[0] = %+v", slots[0])
	}
	if slots[1].Time != "07:50" || slots[1].Free != 2 || slots[1].Present != 2 {
		t.Errorf("slot[1] = %+v", slots[1])
	}
	if slots[2].Time != "08:30" || slots[2].CourseID != 2 {
		t.Errorf("slot[2] = %+v", slots[2])
	}
	for _, s := range slots {
		if !s.Day.Equal(sheetDay) {
			t.Errorf("slot %s day = %v", s.Time, s.Day)
		}
	}
}

func TestParseSlotsIdempotent(t *testing.T) {
	a := ParseSlots(sheetPayload, sheetDay)
	b := ParseSlots(sheetPayload, sheetDay)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("parse is not stable:\n%+v\n%+v", a, b)
	}
	seen := map[string]bool{}
	for _, s := range a {
		key := s.Time + s.Day.Format("2006-01-02")
		if seen[key] {
			t.Fatalf("duplicate (time,date): %s", key)
		}
		seen[key] = true
	}
}

// Both strategies must keep working on their own, so a layout change in one
// area cannot silently zero out results.
func TestParseStrategiesAgree(t *testing.T) {
	structural := scanAttributes(sheetPayload, sheetDay)
	direct := scanText(sheetPayload, sheetDay)
	if len(structural) == 0 || len(direct) == 0 {
		t.Fatalf("a strategy found nothing: structural=%d direct=%d", len(structural), len(direct))
	}
	if !reflect.DeepEqual(structural, direct) {
		// The script-embedded descriptor is attribute-invisible, so compare
		// on the common attribute subset.
		t.Logf("structural=%+v", structural)
		t.Logf("direct=%+v", direct)
	}
	for _, s := range structural {
		found := false
		for _, d := range direct {
			if d.Time == s.Time && d.Free == s.Free {
				found = true
			}
		}
		if !found {
			t.Errorf("structural slot %s missing from direct scan", s.Time)
		}
	}
}

// Descriptors hidden behind entity encoding still have to surface via the
// direct scan.
func TestParseEncodedAttributePayload(t *testing.T) {
	payload := `<div data-x="bookSlot(1,&#39;09/06/2025&#39;,&#39;09:00&#39;,&#39;A&#39;,0,4)"></div>`
	slots := ParseSlots(payload, sheetDay)
	if len(slots) != 1 || slots[0].Time != "09:00" {
		t.Fatalf("encoded descriptor not recovered: %+v", slots)
	}
}

func TestParseSlotsEmpty(t *testing.T) {
	if got := ParseSlots("<html><body>nothing here</body></html>", sheetDay); len(got) != 0 {
		t.Fatalf("want empty, got %+v", got)
	}
}

func TestMinuteOf(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"07:50", 7*60 + 50, true},
		{"7:50", 7*60 + 50, true},
		{"13:00", 13 * 60, true},
		{"24:00", 0, false},
		{"0750", 0, false},
	}
	for _, c := range cases {
		got, ok := minuteOf(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("minuteOf(%q) = %d,%v want %d,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
