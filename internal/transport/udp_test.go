package transport

import "testing"

func TestIdealAndMaxSize(t *testing.T) {
	tests := []struct {
		name      string
		mtu       int
		wantIdeal int
		wantMax   int
	}{
		{"ethernet", 1500, 1500 - 28, 9000 - 28},
		{"jumbo", 9000, 9000 - 28, 9000 - 28},
		{"tiny", 500, 500 - 28, 9000 - 28},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ideal, max := IdealAndMaxSize(tt.mtu)
			if ideal != tt.wantIdeal {
				t.Errorf("ideal = %d, want %d", ideal, tt.wantIdeal)
			}
			if max != tt.wantMax {
				t.Errorf("max = %d, want %d", max, tt.wantMax)
			}
		})
	}
}
