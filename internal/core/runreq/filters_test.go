package runreq

import (
	"testing"

	"github.com/ChrisPatten/haven-sub004/internal/platform/testkit"
)

func TestFiltersNilMatchesEverything(t *testing.T) {
	var f *Filters
	if !f.Match("docs/report.pdf") {
		t.Fatal("nil filters should include everything")
	}
}

func TestFiltersExcludeWins(t *testing.T) {
	f := &Filters{
		DefaultAction: ActionInclude,
		Rules: []Rule{
			{Action: ActionInclude, Pattern: "*.pdf"},
			{Action: ActionExclude, Pattern: "draft-*"},
		},
	}
	if !f.Match("docs/report.pdf") {
		t.Fatal("report.pdf should pass")
	}
	if f.Match("docs/draft-report.pdf") {
		t.Fatal("draft prefix should be excluded even though *.pdf matches")
	}
}

func TestFiltersCaseInsensitiveGlobOnPathAndBasename(t *testing.T) {
	f := &Filters{
		DefaultAction: ActionExclude,
		Rules:         []Rule{{Action: ActionInclude, Pattern: "*.PDF"}},
	}
	if !f.Match("Docs/Report.pdf") {
		t.Fatal("basename glob should match case-insensitively")
	}
	if f.Match("docs/report.txt") {
		t.Fatal("non-matching extension should fall to default exclude")
	}
}

func TestFiltersCombinationModes(t *testing.T) {
	rules := []Rule{
		{Action: ActionInclude, Pattern: "*.txt"},
		{Action: ActionInclude, Pattern: "notes-*"},
	}

	anyMode := &Filters{CombinationMode: "any", DefaultAction: ActionExclude, Rules: rules}
	if !anyMode.Match("misc.txt") {
		t.Fatal("any: one matching include should suffice")
	}

	allMode := &Filters{CombinationMode: "all", DefaultAction: ActionExclude, Rules: rules}
	if allMode.Match("misc.txt") {
		t.Fatal("all: partial match should fall to default")
	}
	if !allMode.Match("notes-2024.txt") {
		t.Fatal("all: full match should include")
	}
}

func TestFiltersDefaultActionNoRules(t *testing.T) {
	inc := &Filters{DefaultAction: ActionInclude}
	exc := &Filters{DefaultAction: ActionExclude}
	if !inc.Match("anything") || exc.Match("anything") {
		t.Fatal("default action should decide when no rules exist")
	}
}

func TestLoadSourcesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := testkit.WriteFile(t, dir, "rules.txt", []byte("# comment\n*.md\n! *.tmp\n\n"))

	t.Setenv("HAVEN_TEST_FILTERS", "*.csv\n!secret-*")

	f := &Filters{DefaultAction: ActionExclude}
	if err := f.LoadSources([]string{file}, "HAVEN_TEST_FILTERS"); err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(f.Rules) != 4 {
		t.Fatalf("expected 4 rules, got %d: %+v", len(f.Rules), f.Rules)
	}
	if !f.Match("readme.md") || !f.Match("data.csv") {
		t.Fatal("file and env includes should apply")
	}
	if f.Match("scratch.tmp") || f.Match("secret-keys.csv") {
		t.Fatal("file and env excludes should apply")
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	f := &Filters{}
	if err := f.LoadSources([]string{"/does/not/exist.rules"}, ""); err == nil {
		t.Fatal("missing filter file should error")
	}
}
