package contacts

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
	"github.com/ChrisPatten/haven-sub004/internal/services/collector/domain"
)

const cardsFile = "BEGIN:VCARD\r\n" +
	"VERSION:3.0\r\n" +
	"UID:c-1\r\n" +
	"FN:Ada Lovelace\r\n" +
	"ORG:Analytical Engines;R&D\r\n" +
	"EMAIL;TYPE=work:ada@example.com\r\n" +
	"TEL:+1-555-0100\r\n" +
	"CATEGORIES:friends,colleagues\r\n" +
	"END:VCARD\r\n" +
	"BEGIN:VCARD\r\n" +
	"UID:c-2\r\n" +
	"FN:Grace Hopper\r\n" +
	"NOTE:long note that folds across\r\n" +
	" two physical lines\r\n" +
	"CATEGORIES:navy\r\n" +
	"END:VCARD\r\n"

func writeCards(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "book.vcf"), []byte(cardsFile), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not a card"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func drain(t *testing.T, src *Source, p domain.Params) []*domain.Item {
	t.Helper()
	iter, err := src.Items(context.Background(), p)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	defer iter.Close()

	var out []*domain.Item
	for {
		item, err := iter.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, item)
	}
	return out
}

func TestCheckRejectsNonDirectory(t *testing.T) {
	dir := writeCards(t)
	src := New(&runreq.ContactsScope{Path: filepath.Join(dir, "book.vcf")})
	if err := src.Check(context.Background(), domain.Params{}); err == nil {
		t.Fatal("expected check failure for file path")
	}
}

func TestItemsParsesAllCards(t *testing.T) {
	src := New(&runreq.ContactsScope{Path: writeCards(t)})
	items := drain(t, src, domain.Params{Order: runreq.OrderAsc})
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	// ordered by full name
	if items[0].ID != "c-1" || items[1].ID != "c-2" {
		t.Fatalf("order: %s, %s", items[0].ID, items[1].ID)
	}

	c, err := items[0].Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Title != "Ada Lovelace" {
		t.Errorf("title = %q", c.Title)
	}
	for _, want := range []string{"Email: ada@example.com", "Phone: +1-555-0100", "Organization: Analytical Engines"} {
		if !strings.Contains(c.Text, want) {
			t.Errorf("rendered card missing %q:\n%s", want, c.Text)
		}
	}
}

func TestItemsGroupRestriction(t *testing.T) {
	src := New(&runreq.ContactsScope{Path: writeCards(t), Groups: []string{"Navy"}})
	items := drain(t, src, domain.Params{Order: runreq.OrderAsc})
	if len(items) != 1 || items[0].ID != "c-2" {
		t.Fatalf("group filter: %+v", items)
	}
}

func TestParseFileUnfoldsContinuations(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "one.vcf")
	if err := os.WriteFile(p, []byte(cardsFile), 0o644); err != nil {
		t.Fatal(err)
	}
	cards, err := parseFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 2 {
		t.Fatalf("cards = %d", len(cards))
	}
	if cards[1].fullName != "Grace Hopper" {
		t.Errorf("fn = %q", cards[1].fullName)
	}
}

func TestParseFileRejectsUnterminatedCard(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bad.vcf")
	if err := os.WriteFile(p, []byte("BEGIN:VCARD\nFN:Nobody\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := parseFile(p); err == nil {
		t.Fatal("expected unterminated card error")
	}
}
