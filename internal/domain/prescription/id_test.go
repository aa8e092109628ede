package prescription

import "testing"

func TestNewIDRoundTrip(t *testing.T) {
	cases := []struct {
		flowType FlowType
		num      int64
	}{
		{FlowTypeStatutory, 1},
		{FlowTypeStatutory, 4711},
		{FlowTypeDirectAssignment, 123456789},
		{FlowTypePrivate, 999999999999},
		{FlowTypeDirectAssignmentPrivate, 42},
	}

	for _, tc := range cases {
		id := NewID(tc.flowType, tc.num)
		s := id.String()

		parsed, err := Parse(s)
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		if parsed.FlowType() != tc.flowType || parsed.DatabaseID() != tc.num {
			t.Fatalf("round trip %s: got (%d, %d), want (%d, %d)",
				s, parsed.FlowType(), parsed.DatabaseID(), tc.flowType, tc.num)
		}
	}
}

func TestIDStringFormat(t *testing.T) {
	id := NewID(FlowTypeStatutory, 4711)
	s := id.String()
	// 160.000.000.004.711.cc
	if len(s) != 22 {
		t.Fatalf("formatted length = %d, want 22 (%s)", len(s), s)
	}
	if s[:19] != "160.000.000.004.711" {
		t.Fatalf("unexpected prefix %q", s[:19])
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	good := NewID(FlowTypeStatutory, 4711).String()
	// Flip the checksum digits.
	bad := good[:len(good)-2] + "00"
	if bad == good {
		bad = good[:len(good)-2] + "01"
	}
	if _, err := Parse(bad); err == nil {
		t.Fatalf("expected checksum error for %s", bad)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := []string{
		"",
		"160.000.000.004.711",       // missing checksum group
		"160-000-000-004-711-22",    // wrong separators
		"999.000.000.004.711.22",    // unknown workflow type
		"160.000.000.004.71a.22",    // non-digit
		"160.000.000.004.711.22.33", // too many groups
	}
	for _, s := range cases {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected error for %q", s)
		}
	}
}

func TestFlowTypePrivate(t *testing.T) {
	if FlowTypeStatutory.Private() || FlowTypeDirectAssignment.Private() {
		t.Fatal("statutory workflows must not count as private")
	}
	if !FlowTypePrivate.Private() || !FlowTypeDirectAssignmentPrivate.Private() {
		t.Fatal("private workflows must count as private")
	}
}
