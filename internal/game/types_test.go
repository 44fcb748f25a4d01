package game

import "testing"

func TestParseResult(t *testing.T) {
	tests := []struct {
		in   string
		want Result
		ok   bool
	}{
		{"1-0", WhiteWin, true},
		{"0-1", BlackWin, true},
		{"1/2-1/2", Draw, true},
		{"*", Unknown, true},
		{"", Unknown, false},
		{"1-1", Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseResult(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseResult(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
			if ok && got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestValidECO(t *testing.T) {
	for _, s := range []string{"A00", "B12", "E99"} {
		if !ValidECO(s) {
			t.Errorf("ValidECO(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "F00", "a00", "B1", "B123", "B1x"} {
		if ValidECO(s) {
			t.Errorf("ValidECO(%q) = true, want false", s)
		}
	}
}

func TestDate_String(t *testing.T) {
	tests := []struct {
		d    Date
		want string
	}{
		{Date{}, "????.??.??"},
		{Date{Year: 2013, Month: 1, Day: 7}, "2013.01.07"},
		{Date{Year: 1999}, "1999.??.??"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.d, got, tt.want)
		}
	}
}
