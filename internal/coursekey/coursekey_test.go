package coursekey

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"course-v1:Org+Num+Run":             "course-v1:Org+Num+Run",
		"  course-v1:Org+Num+Run  ":         "course-v1:Org+Num+Run",
		"course-v1:Org Num Run":             "course-v1:Org+Num+Run",
		"course-v1%3AOrg%2BNum%2BRun":       "course-v1:Org+Num+Run",
		"course-v1%3AOrg%20Num%20Run":       "course-v1:Org+Num+Run",
		"course-v1%253AOrg%252BNum%252BRun": "course-v1:Org+Num+Run",
		"course-v1:Org+Num Run":             "course-v1:Org+Num Run",
		"Org/Num/Run":                       "Org/Num/Run",
		"Org%2FNum%2FRun":                   "Org/Num/Run",
		"legacy with spaces":                "legacy with spaces",
		"bad%zzescape":                      "bad%zzescape",
		"":                                  "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"course-v1:Org+Num+Run",
		"course-v1:Org Num Run",
		"course-v1%3AOrg%20Num%20Run",
		"%2520course-v1%253AA%2520B%2520C",
		"course-v1:Org+Num Run",
		"bad%zzescape",
		"%",
		"%25",
		"  padded  ",
		"Org/Num/Run",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestParse(t *testing.T) {
	key, err := Parse("course-v1:Org+Num+Run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Org != "Org" || key.Course != "Num" || key.Run != "Run" || key.Legacy {
		t.Errorf("unexpected key: %+v", key)
	}
	if key.String() != "course-v1:Org+Num+Run" {
		t.Errorf("unexpected string form %q", key.String())
	}

	key, err = Parse("course-v1:edX+Demo_X+2024+branch@draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Suffix != "+branch@draft" || key.DisplayName() != "Demo X" {
		t.Errorf("unexpected key: %+v", key)
	}

	key, err = Parse("MITx/6.002x/2012_Fall")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !key.Legacy || key.String() != "MITx/6.002x/2012_Fall" {
		t.Errorf("unexpected legacy key: %+v", key)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"course-v1:",
		"course-v1:Org+Num",
		"course-v1:Org Num Run",
		"course-v1:Org+Num+Run+extra",
		"Org/Num",
		"Org/Num/Run/More",
		"not a key",
	} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}
