package database

import "testing"

func TestStatusValid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusIn, true},
		{StatusOut, true},
		{StatusBreak, true},
		{StatusLunch, true},
		{"in", false},
		{"NOT_MARKED", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Errorf("Status(%q).Valid() = %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}
