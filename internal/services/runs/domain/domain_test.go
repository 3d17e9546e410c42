package domain

import (
	"testing"

	"github.com/ChrisPatten/haven-sub004/internal/core/runreq"
)

func TestRegistrySeedsFamilies(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	if len(list) != 4 {
		t.Fatalf("collectors = %d", len(list))
	}
	if list[0].ID != "contacts" || list[3].ID != "messages" {
		t.Fatalf("sort order: %+v", list)
	}
}

func TestRegistryScopedIDsDeriveFamily(t *testing.T) {
	r := NewRegistry()

	c, err := r.Get("localfs.docs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Family != runreq.FamilyLocalfs {
		t.Fatalf("family = %s", c.Family)
	}

	if _, err := r.Get("telegraph"); err == nil {
		t.Fatal("expected unknown collector error")
	}
	if _, err := r.Get("telegraph.feed"); err == nil {
		t.Fatal("expected unknown family error")
	}
}

func TestRegistryRegisterOverrides(t *testing.T) {
	r := NewRegistry()
	r.Register(Collector{ID: "imapmail", Family: runreq.FamilyImapmail, Description: "personal mailbox"})

	c, err := r.Get("imapmail")
	if err != nil {
		t.Fatal(err)
	}
	if c.Description != "personal mailbox" {
		t.Fatalf("description = %q", c.Description)
	}
}
