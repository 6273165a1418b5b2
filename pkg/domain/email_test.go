package domain

import "testing"

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already normal", "user@example.com", "user@example.com"},
		{"mixed case", "User@Example.COM", "user@example.com"},
		{"surrounding whitespace", " User@Example.com ", "user@example.com"},
		{"tabs and newline", "\tpartner@x.com\n", "partner@x.com"},
		{"decomposed accent", "jose\u0301@x.com", "jos\u00e9@x.com"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeEmail(tt.in); got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSameEmail(t *testing.T) {
	if !SameEmail(" User@Example.com ", "user@example.com") {
		t.Error("expected padded mixed-case email to match its normalized form")
	}
	if SameEmail("a@x.com", "b@x.com") {
		t.Error("different mailboxes must not match")
	}
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"partner@x.com", true},
		{" Partner@X.com ", true},
		{"partner", false},
		{"@x.com", false},
		{"partner@", false},
		{"partner@localhost", false},
		{"par tner@x.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ValidEmail(tt.in); got != tt.valid {
				t.Errorf("ValidEmail(%q) = %v, want %v", tt.in, got, tt.valid)
			}
		})
	}
}
