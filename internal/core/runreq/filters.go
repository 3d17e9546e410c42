package runreq

import (
	"bufio"
	"os"
	"path"
	"strings"

	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
)

// FilterAction is what a matching rule does with an item
type FilterAction string

// Filter actions
const (
	ActionInclude FilterAction = "include"
	ActionExclude FilterAction = "exclude"
)

// Rule is one include/exclude pattern. Patterns use glob syntax and match
// case-insensitively against both the full relative path and the basename
type Rule struct {
	Action  FilterAction
	Pattern string
}

// Filters is the compiled filter set for a run.
//
// Evaluation: any matching exclude rule rejects the item. Otherwise, include
// rules vote per CombinationMode ("any": one match suffices, "all": every
// include rule must match). With no include rules, or when none matched,
// DefaultAction decides
type Filters struct {
	CombinationMode string // all | any, default any
	DefaultAction   FilterAction
	Rules           []Rule
}

// Match reports whether relPath passes the filter set
func (f *Filters) Match(relPath string) bool {
	if f == nil {
		return true
	}
	var includes []Rule
	for _, r := range f.Rules {
		if r.Action == ActionExclude {
			if matchPattern(r.Pattern, relPath) {
				return false
			}
			continue
		}
		includes = append(includes, r)
	}

	if len(includes) > 0 {
		matched := 0
		for _, r := range includes {
			if matchPattern(r.Pattern, relPath) {
				matched++
			}
		}
		if f.CombinationMode == "all" {
			if matched == len(includes) {
				return true
			}
		} else if matched > 0 {
			return true
		}
	}
	return f.DefaultAction != ActionExclude
}

// matchPattern applies a case-insensitive glob to the full relative path and
// to the basename; either hit counts
func matchPattern(pattern, relPath string) bool {
	p := strings.ToLower(pattern)
	full := strings.ToLower(relPath)
	if ok, err := path.Match(p, full); err == nil && ok {
		return true
	}
	base := path.Base(full)
	ok, err := path.Match(p, base)
	return err == nil && ok
}

// LoadSources resolves rules from the files and environment variable named in
// the wire request and appends them after the inline rules. File and env
// sources use one rule per line: an optional leading "!" marks an exclude,
// blank lines and "#" comments are skipped
func (f *Filters) LoadSources(files []string, envVar string) error {
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "filter file %q", name)
		}
		f.Rules = append(f.Rules, parseRuleLines(string(data))...)
	}
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			f.Rules = append(f.Rules, parseRuleLines(v)...)
		}
	}
	return nil
}

func parseRuleLines(s string) []Rule {
	var out []Rule
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		action := ActionInclude
		if strings.HasPrefix(line, "!") {
			action = ActionExclude
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}
		out = append(out, Rule{Action: action, Pattern: line})
	}
	return out
}
