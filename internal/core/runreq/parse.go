package runreq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/platform/net/http/bind"

	"github.com/go-playground/validator/v10"
)

// wire-level shapes, decoded strictly then normalized into RunRequest

type wireRequest struct {
	Mode              string          `json:"mode" validate:"required,oneof=simulate real"`
	Limit             *int            `json:"limit" validate:"omitempty,gt=0"`
	Order             string          `json:"order" validate:"omitempty,oneof=asc desc"`
	Concurrency       *int            `json:"concurrency"`
	DateRange         *wireDateRange  `json:"date_range"`
	TimeWindow        string          `json:"time_window"`
	Batch             *bool           `json:"batch"`
	BatchSize         *int            `json:"batch_size" validate:"omitempty,gt=0"`
	Scope             json.RawMessage `json:"scope"`
	Filters           *wireFilters    `json:"filters"`
	RedactionOverride map[string]bool `json:"redaction_override"`
	Force             bool            `json:"force"`
}

type wireDateRange struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

type wireFilters struct {
	CombinationMode     string     `json:"combination_mode" validate:"omitempty,oneof=all any"`
	DefaultAction       string     `json:"default_action" validate:"omitempty,oneof=include exclude"`
	Inline              []wireRule `json:"inline" validate:"omitempty,dive"`
	Files               []string   `json:"files" validate:"omitempty,dive,required"`
	EnvironmentVariable string     `json:"environment_variable"`
}

type wireRule struct {
	Action  string `json:"action" validate:"required,oneof=include exclude"`
	Pattern string `json:"pattern" validate:"required"`
}

var unknownFieldRe = regexp.MustCompile(`json: unknown field "([^"]+)"`)

// strictDecode rejects unknown keys at every nesting level and trailing data
func strictDecode(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if m := unknownFieldRe.FindStringSubmatch(err.Error()); m != nil {
			return perr.Validationf("unknown field %q", m[1])
		}
		return perr.JSONErrf("invalid JSON: %v", err)
	}
	if dec.More() {
		return perr.JSONErrf("unexpected trailing data")
	}
	return nil
}

func validateStruct(v any) error {
	if err := bind.Get().Validator.Struct(v); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return perr.Validationf("validation error")
		}
		field, msg := bind.ValidationFieldAndMessage(err)
		return perr.WithField(perr.Validationf("%s", msg), field)
	}
	return nil
}

// timestamp layouts accepted for date_range bounds, tried in order
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Parse validates raw as a run request for the given collector family.
// Validation failures return a structured error; recoverable oddities
// (clamped concurrency, dropped unparsable dates) land in Warnings
func Parse(raw []byte, family Family) (*RunRequest, error) {
	if !family.Valid() {
		return nil, perr.NotFoundf("unknown collector family %q", family)
	}

	var w wireRequest
	if err := strictDecode(raw, &w); err != nil {
		return nil, err
	}
	if err := validateStruct(&w); err != nil {
		return nil, err
	}
	if err := checkRedactionKeys(w.RedactionOverride); err != nil {
		return nil, err
	}

	req := &RunRequest{
		Family: family,
		Mode:   Mode(w.Mode),
		Limit:  w.Limit,
		Order:  OrderDesc,
		Force:  w.Force,
	}
	if w.Order != "" {
		req.Order = Order(w.Order)
	}
	if w.Batch != nil {
		req.Batch = *w.Batch
	}
	req.BatchSize = w.BatchSize
	if len(w.RedactionOverride) > 0 {
		req.RedactionOverride = w.RedactionOverride
	}

	req.Concurrency = clampConcurrency(w.Concurrency, &req.Warnings)
	parseDates(&w, req)

	if err := parseScope(w.Scope, family, req); err != nil {
		return nil, err
	}
	if err := parseFilters(w.Filters, req); err != nil {
		return nil, err
	}

	return req, nil
}

func clampConcurrency(c *int, warnings *[]string) int {
	if c == nil {
		return MinConcurrency
	}
	v := *c
	if v < MinConcurrency {
		*warnings = append(*warnings,
			fmt.Sprintf("concurrency %d below minimum, clamped to %d", v, MinConcurrency))
		return MinConcurrency
	}
	if v > MaxConcurrency {
		*warnings = append(*warnings,
			fmt.Sprintf("concurrency %d above maximum, clamped to %d", v, MaxConcurrency))
		return MaxConcurrency
	}
	return v
}

func parseDates(w *wireRequest, req *RunRequest) {
	rangePresent := w.DateRange != nil && (w.DateRange.Since != "" || w.DateRange.Until != "")
	if w.DateRange != nil {
		if w.DateRange.Since != "" {
			if t, ok := parseTimestamp(w.DateRange.Since); ok {
				req.DateRange.Since = &t
			} else {
				req.Warnings = append(req.Warnings,
					fmt.Sprintf("date_range.since %q is not a valid timestamp, ignoring", w.DateRange.Since))
			}
		}
		if w.DateRange.Until != "" {
			if t, ok := parseTimestamp(w.DateRange.Until); ok {
				req.DateRange.Until = &t
			} else {
				req.Warnings = append(req.Warnings,
					fmt.Sprintf("date_range.until %q is not a valid timestamp, ignoring", w.DateRange.Until))
			}
		}
	}

	if w.TimeWindow == "" {
		return
	}
	// date_range wins whenever the request carries one, even if no bound
	// parsed; falling back to time_window would silently widen the run
	if rangePresent {
		req.Warnings = append(req.Warnings, "time_window ignored because date_range is present")
		return
	}
	if d, ok := ParseISODuration(w.TimeWindow); ok {
		req.Window = &d
	} else {
		req.Warnings = append(req.Warnings,
			fmt.Sprintf("time_window %q is not a valid ISO-8601 duration, ignoring", w.TimeWindow))
	}
}

func checkRedactionKeys(m map[string]bool) error {
	var bad []string
	for k := range m {
		if !redactionCategories[k] {
			bad = append(bad, k)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return perr.WithField(
		perr.Validationf("unknown redaction categories %v", bad), "redaction_override")
}

func parseScope(raw json.RawMessage, family Family, req *RunRequest) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var err error
	switch family {
	case FamilyLocalfs:
		var s LocalfsScope
		if err = decodeScope(raw, &s); err == nil {
			if s.ArchiveDir != "" && s.DeleteAfterSubmit {
				return perr.WithField(
					perr.Validationf("archive_dir and delete_after_submit are mutually exclusive"), "scope")
			}
			req.Scope.Localfs = &s
		}
	case FamilyImapmail:
		var s ImapScope
		if err = decodeScope(raw, &s); err == nil {
			req.Scope.Imap = &s
		}
	case FamilyMessages:
		var s MessagesScope
		if err = decodeScope(raw, &s); err == nil {
			req.Scope.Messages = &s
		}
	case FamilyContacts:
		var s ContactsScope
		if err = decodeScope(raw, &s); err == nil {
			req.Scope.Contacts = &s
		}
	}
	return err
}

func decodeScope(raw json.RawMessage, dst any) error {
	if err := strictDecode(raw, dst); err != nil {
		return err
	}
	return validateStruct(dst)
}

func parseFilters(w *wireFilters, req *RunRequest) error {
	if w == nil {
		return nil
	}
	f := &Filters{
		CombinationMode: w.CombinationMode,
		DefaultAction:   ActionInclude,
	}
	if f.CombinationMode == "" {
		f.CombinationMode = "any"
	}
	if w.DefaultAction != "" {
		f.DefaultAction = FilterAction(w.DefaultAction)
	}
	for _, r := range w.Inline {
		f.Rules = append(f.Rules, Rule{Action: FilterAction(r.Action), Pattern: r.Pattern})
	}
	if err := f.LoadSources(w.Files, w.EnvironmentVariable); err != nil {
		return err
	}
	req.Filters = f
	return nil
}
