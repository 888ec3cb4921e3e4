package escrow

import "testing"

func TestConfirmationWindowIsSevenDays(t *testing.T) {
	if ConfirmationWindow != 604_800 {
		t.Fatalf("window = %d seconds", ConfirmationWindow)
	}
}

// Every instant must satisfy exactly one side of the boundary.
func TestWindowElapsedPartitionsTime(t *testing.T) {
	const confirmedAt int64 = 1_700_000_000
	deadline := ConfirmationDeadline(confirmedAt)

	cases := []struct {
		name    string
		now     int64
		elapsed bool
	}{
		{"at confirmation", confirmedAt, false},
		{"mid window", confirmedAt + ConfirmationWindow/2, false},
		{"one second before deadline", deadline - 1, false},
		{"deadline instant", deadline, false},
		{"one second past deadline", deadline + 1, true},
		{"long after", deadline + 90*24*60*60, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WindowElapsed(confirmedAt, tc.now); got != tc.elapsed {
				t.Fatalf("WindowElapsed(%d, %d) = %v, want %v", confirmedAt, tc.now, got, tc.elapsed)
			}
		})
	}
}
