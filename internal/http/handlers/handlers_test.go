package handlers

import "testing"

func TestCallbackStateValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		provider string
		expected string
		got      string
		want     bool
	}{
		{name: "matching state", provider: "sap", expected: "s1", got: "s1", want: true},
		{name: "forged state", provider: "sap", expected: "s1", got: "s2", want: false},
		{name: "sap without started flow", provider: "sap", got: "s1", want: false},
		{name: "dynamics without state", provider: "dynamics", want: false},
		{name: "businesscentral handover", provider: "businesscentral", want: true},
		{name: "businesscentral started flow", provider: "businesscentral", expected: "s1", got: "s2", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := callbackStateValid(tt.provider, tt.expected, tt.got); got != tt.want {
				t.Fatalf("callbackStateValid(%q, %q, %q) = %v, want %v", tt.provider, tt.expected, tt.got, got, tt.want)
			}
		})
	}
}
