package status

import "testing"

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"PENDING", "pending", "IN_PROGRESS", "in-progress", "In_Progress",
		"IN-DEVELOPMENT", "completed", "CANCELLED", "deferred", "ARCHIVED",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	for _, ct := range ValidContainerTypes() {
		for _, s := range ValidStatuses(ct) {
			up := Denormalize(s)
			if got := Normalize(up); got != s {
				t.Errorf("%s: round trip %q -> %q -> %q", ct, s, up, got)
			}
			if !IsValidStatus(up, ct) {
				t.Errorf("%s: denormalized form %q should parse", ct, up)
			}
		}
	}
}

func TestParseStatusBothForms(t *testing.T) {
	tests := []struct {
		in   string
		ct   ContainerType
		want string
		ok   bool
	}{
		{"IN_PROGRESS", ContainerTask, "in-progress", true},
		{"in-progress", ContainerTask, "in-progress", true},
		{"In_Progress", ContainerTask, "in-progress", true},
		{"PENDING", ContainerTask, "pending", true},
		{"deferred", ContainerTask, "deferred", true},
		{"IN_DEVELOPMENT", ContainerFeature, "in-development", true},
		{"in-review", ContainerFeature, "in-review", true},
		{"ARCHIVED", ContainerProject, "archived", true},
		{"bogus", ContainerTask, "", false},
		{"in-review", ContainerProject, "", false},
		{"pending", ContainerProject, "", false},
	}
	for _, tt := range tests {
		switch tt.ct {
		case ContainerTask:
			got, ok := ParseTaskStatus(tt.in)
			if ok != tt.ok || string(got) != tt.want {
				t.Errorf("ParseTaskStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		case ContainerFeature:
			got, ok := ParseFeatureStatus(tt.in)
			if ok != tt.ok || string(got) != tt.want {
				t.Errorf("ParseFeatureStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		case ContainerProject:
			got, ok := ParseProjectStatus(tt.in)
			if ok != tt.ok || string(got) != tt.want {
				t.Errorf("ParseProjectStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		}
	}
}

func TestParseContainerType(t *testing.T) {
	tests := []struct {
		in   string
		want ContainerType
		ok   bool
	}{
		{"project", ContainerProject, true},
		{"FEATURE", ContainerFeature, true},
		{" task ", ContainerTask, true},
		{"epic", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseContainerType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseContainerType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDependencyType(t *testing.T) {
	tests := []struct {
		in   string
		want DependencyType
		ok   bool
	}{
		{"BLOCKS", DependencyBlocks, true},
		{"blocks", DependencyBlocks, true},
		{"is-blocked-by", DependencyIsBlockedBy, true},
		{"IS_BLOCKED_BY", DependencyIsBlockedBy, true},
		{"relates_to", DependencyRelatesTo, true},
		{"depends", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDependencyType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDependencyType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPriorityRank(t *testing.T) {
	if !(PriorityHigh.Rank() > PriorityMedium.Rank() && PriorityMedium.Rank() > PriorityLow.Rank()) {
		t.Error("priority ranks must order high > medium > low")
	}
	if Priority("").Rank() >= PriorityLow.Rank() {
		t.Error("unknown priority must rank below low")
	}
}
