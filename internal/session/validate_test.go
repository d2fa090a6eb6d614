package session

import "testing"

func TestValidateName(t *testing.T) {
	for _, tc := range []struct {
		name  string
		valid bool
	}{
		{"default", true},
		{"work-phone", true},
		{"User_2", true},
		{"", false},
		{"../escape", false},
		{".hidden", false},
		{"has space", false},
		{"x/y", false},
	} {
		err := ValidateName(tc.name)
		if tc.valid && err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", tc.name)
		}
	}
}
