package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRejoinHyphens(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "word split across lines",
			input: []string{"the ceiling height of habit-", "able rooms shall be"},
			want:  []string{"the ceiling height of habitable rooms shall be"},
		},
		{
			name:  "capitalized continuation is kept",
			input: []string{"see Table 9.5.3.1.-", "A for values"},
			want:  []string{"see Table 9.5.3.1.-", "A for values"},
		},
		{
			name:  "uppercase next line is a new sentence",
			input: []string{"non-", "Combustible"},
			want:  []string{"non-", "Combustible"},
		},
		{
			name:  "chained breaks",
			input: []string{"over-", "head clear-", "ance"},
			want:  []string{"overhead clearance"},
		},
		{
			name:  "empty",
			input: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RejoinHyphens(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("RejoinHyphens() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
