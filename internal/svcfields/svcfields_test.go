package svcfields

import "testing"

func TestSubsystem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{name: "empty", parts: nil, want: ""},
		{name: "single", parts: []string{"rpc"}, want: "rpc"},
		{name: "joined", parts: []string{"rpc", "credentials"}, want: "rpc.credentials"},
		{name: "trims fragments", parts: []string{" rpc.", "", ".dispatch "}, want: "rpc.dispatch"},
		{name: "all blank", parts: []string{"", " . "}, want: ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Subsystem(tc.parts...); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestWithSubsystemNilLogger(t *testing.T) {
	t.Parallel()

	if WithSubsystem(nil, "rpc") == nil {
		t.Fatalf("expected a usable logger for nil input")
	}
	if WithSubsystem(nil, "") == nil {
		t.Fatalf("expected a usable logger for empty subsystem")
	}
}
