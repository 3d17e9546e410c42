// Package contacts reads a directory of vCard files, one or more cards per
// file, and submits each card as a document. The group restriction matches
// against CATEGORIES values
package contacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-vcard"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	perr "github.com/ChrisPatten/haven-sub004/internal/platform/errors"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
)

// card is one parsed vCard
type card struct {
	uid        string
	fullName   string
	emails     []string
	phones     []string
	org        string
	birthday   string
	categories []string

	file string
}

// Source reads vCards from a directory
type Source struct {
	scope *runreq.ContactsScope
}

// New builds a contacts source from its run scope
func New(scope *runreq.ContactsScope) *Source {
	return &Source{scope: scope}
}

// Name implements domain.Source
func (s *Source) Name() string { return "contacts" }

// Check verifies the card directory exists
func (s *Source) Check(_ context.Context, _ domain.Params) error {
	if s.scope == nil || s.scope.Path == "" {
		return perr.InvalidArgf("contacts: scope with path is required")
	}
	info, err := os.Stat(s.scope.Path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeNotFound, "contacts: path %s", s.scope.Path)
	}
	if !info.IsDir() {
		return perr.InvalidArgf("contacts: path %s is not a directory", s.scope.Path)
	}
	return nil
}

// Items parses every .vcf file in the directory and yields one item per card,
// ordered by full name for deterministic runs
func (s *Source) Items(ctx context.Context, p domain.Params) (domain.ItemIter, error) {
	entries, err := os.ReadDir(s.scope.Path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "contacts: read dir")
	}

	wantGroup := map[string]bool{}
	for _, g := range s.scope.Groups {
		wantGroup[strings.ToLower(g)] = true
	}

	var cards []card
	for _, ent := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := ent.Name()
		if ent.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".vcf") {
			continue
		}
		fpath := filepath.Join(s.scope.Path, name)
		parsed, ferr := parseFile(fpath)
		if ferr != nil {
			return nil, ferr
		}
		cards = append(cards, parsed...)
	}

	var kept []card
	for _, c := range cards {
		if len(wantGroup) > 0 && !inGroup(c, wantGroup) {
			continue
		}
		kept = append(kept, c)
	}

	sort.Slice(kept, func(i, j int) bool {
		if p.Order == runreq.OrderDesc {
			return kept[i].fullName > kept[j].fullName
		}
		return kept[i].fullName < kept[j].fullName
	})

	items := make([]*domain.Item, len(kept))
	for i, c := range kept {
		items[i] = s.item(c)
	}
	return &sliceIter{items: items}, nil
}

func inGroup(c card, want map[string]bool) bool {
	for _, g := range c.categories {
		if want[strings.ToLower(g)] {
			return true
		}
	}
	return false
}

func (s *Source) item(c card) *domain.Item {
	info, _ := os.Stat(c.file)
	item := &domain.Item{
		ID:   c.id(),
		Path: c.file + "#" + c.id(),
		Tags: c.categories,
	}
	if info != nil {
		item.Touched = info.ModTime().UTC()
	}

	text := c.render()
	item.Size = int64(len(text))
	item.Load = func(context.Context) (*domain.Content, error) {
		return &domain.Content{
			Text:  text,
			Title: c.fullName,
			Metadata: map[string]any{
				"uid":    c.uid,
				"groups": c.categories,
			},
		}, nil
	}
	return item
}

func (c card) id() string {
	if c.uid != "" {
		return c.uid
	}
	return c.fullName
}

// render flattens the card into a stable text document
func (c card) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.fullName)
	if c.org != "" {
		fmt.Fprintf(&b, "Organization: %s\n", c.org)
	}
	for _, e := range c.emails {
		fmt.Fprintf(&b, "Email: %s\n", e)
	}
	for _, p := range c.phones {
		fmt.Fprintf(&b, "Phone: %s\n", p)
	}
	if c.birthday != "" {
		fmt.Fprintf(&b, "Birthday: %s\n", c.birthday)
	}
	if len(c.categories) > 0 {
		fmt.Fprintf(&b, "Groups: %s\n", strings.Join(c.categories, ", "))
	}
	return b.String()
}

// parseFile reads all cards from one .vcf file
func parseFile(fpath string) ([]card, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "contacts: open %s", fpath)
	}
	defer func() { _ = f.Close() }()

	var cards []card
	dec := vcard.NewDecoder(f)
	for {
		c, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "contacts: parse %s", fpath)
		}
		cards = append(cards, fromCard(c, fpath))
	}
	return cards, nil
}

// fromCard flattens the decoded properties the renderer cares about
func fromCard(c vcard.Card, fpath string) card {
	out := card{
		uid:      c.Value(vcard.FieldUID),
		fullName: c.PreferredValue(vcard.FieldFormattedName),
		org:      strings.ReplaceAll(c.Value(vcard.FieldOrganization), ";", " "),
		birthday: c.Value(vcard.FieldBirthday),
		emails:   c.Values(vcard.FieldEmail),
		phones:   c.Values(vcard.FieldTelephone),
		file:     fpath,
	}
	for _, g := range c.Categories() {
		if g = strings.TrimSpace(g); g != "" {
			out.categories = append(out.categories, g)
		}
	}
	return out
}

type sliceIter struct {
	items []*domain.Item
	pos   int
}

func (it *sliceIter) Next(ctx context.Context) (*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.items) {
		return nil, io.EOF
	}
	item := it.items[it.pos]
	it.pos++
	return item, nil
}

func (it *sliceIter) Close() error { return nil }
