package platform

import "testing"

func TestRanks_PickByOS_MostSpecificWins(t *testing.T) {
	r := Ranks{"all": 0, "posix": 3, "linux": 10, "ubuntu": 20}

	got, ok := r.PickByOS([]string{"all", "posix", "linux", "ubuntu"})
	if !ok {
		t.Fatalf("expected a match")
	}
	if got != "ubuntu" {
		t.Errorf("expected ubuntu (highest rank), got %s", got)
	}
}

func TestRanks_PickByOS_NoCandidatesMatch(t *testing.T) {
	r := Ranks{"all": 0}

	got, ok := r.PickByOS([]string{"windows", "macos"})
	if ok {
		t.Errorf("expected no match, got %q", got)
	}
}

func TestRanks_PickByOS_UnknownTagRanksBelowAll(t *testing.T) {
	r := Ranks{"all": 0}

	got, ok := r.PickByOS([]string{"all", "bogus-tag"})
	if !ok || got != "all" {
		t.Errorf("expected 'all' to win over an unranked tag, got %q ok=%v", got, ok)
	}
}

func TestRanks_Rank_UnknownTagIsNegativeOne(t *testing.T) {
	r := Ranks{"all": 0}
	if got := r.Rank("nonexistent"); got != -1 {
		t.Errorf("expected unknown tag to rank -1, got %d", got)
	}
}

func TestDetect_AlwaysRanksAllAndAny(t *testing.T) {
	r := Detect()
	if r.Rank("all") != 0 {
		t.Errorf("expected 'all' tag to always be ranked 0, got %d", r.Rank("all"))
	}
	if r.Rank("any") != 0 {
		t.Errorf("expected 'any' tag to always be ranked 0, got %d", r.Rank("any"))
	}
}
