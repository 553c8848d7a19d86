package history

import "testing"

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`<b>Booking failed.</b> Try &amp; call the office.`, "Booking failed. Try & call the office."},
		{"plain text", "plain text"},
		{`  <div>  spaced  </div> `, "spaced"},
		{"", ""},
	}
	for _, c := range cases {
		if got := sanitize(c.in); got != c.want {
			t.Errorf("sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
