package privacy

import (
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "plain arabic text",
			input:    "أشعر بالتعب ولا أستطيع النوم",
			expected: "أشعر بالتعب ولا أستطيع النوم",
		},
		{
			name:     "short numbers kept",
			input:    "slept 4 hours since 2024-05-01",
			expected: "slept 4 hours since 2024-05-01",
		},
		{
			name:     "international phone",
			input:    "call me on +966 50 123 4567 please",
			expected: "call me on [PHONE] please",
		},
		{
			name:     "arabic-indic digits",
			input:    "رقمي ٠٥٠١٢٣٤٥٦٧",
			expected: "رقمي [PHONE]",
		},
		{
			name:     "email",
			input:    "write to sara.k@example.com",
			expected: "write to [EMAIL]",
		},
		{
			name:     "otp code",
			input:    "my otp: 482913",
			expected: "my otp:[REDACTED]",
		},
		{
			name:     "password assignment",
			input:    "password=hunter22",
			expected: "password=[REDACTED]",
		},
		{
			name:     "bearer token",
			input:    "Bearer abcdefghijklmnopqrstuvwxyz123456",
			expected: "[REDACTED]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.input); got != tt.expected {
				t.Errorf("Redact(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestContainsPersonalData(t *testing.T) {
	if ContainsPersonalData("I feel better today") {
		t.Error("plain text reported as personal data")
	}
	if !ContainsPersonalData("email me at a@b.co") {
		t.Error("email not detected")
	}
}
