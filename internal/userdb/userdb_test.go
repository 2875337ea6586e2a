package userdb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const passwdFixture = `# system accounts
root:x:0:0:root:/root:/bin/bash
alice:x:1000:1000:Alice:/home/alice:/bin/zsh
bob:x:1001:1001::/home/bob:/bin/bash
`

const groupFixture = `root:x:0:
wheel:x:10:alice
alice:x:1000:
video:x:44:alice,bob
audio:x:63:bob
broken line without colons
`

func fixtureDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	passwd := filepath.Join(dir, "passwd")
	group := filepath.Join(dir, "group")
	if err := os.WriteFile(passwd, []byte(passwdFixture), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(group, []byte(groupFixture), 0644); err != nil {
		t.Fatal(err)
	}
	return OpenAt(passwd, group)
}

func TestLookup(t *testing.T) {
	db := fixtureDB(t)

	e, err := db.Lookup("alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.UID != 1000 || e.GID != 1000 {
		t.Errorf("uid/gid = %d/%d, want 1000/1000", e.UID, e.GID)
	}
	if e.Home != "/home/alice" || e.Shell != "/bin/zsh" {
		t.Errorf("home=%q shell=%q", e.Home, e.Shell)
	}
}

func TestLookupUnknown(t *testing.T) {
	db := fixtureDB(t)
	if _, err := db.Lookup("mallory"); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("err = %v, want ErrUnknownUser", err)
	}
}

func TestGroups(t *testing.T) {
	db := fixtureDB(t)

	gids, err := db.Groups("alice", 1000)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	// wheel and video, in file order; the primary group is excluded.
	want := []uint32{10, 44}
	if len(gids) != len(want) {
		t.Fatalf("gids = %v, want %v", gids, want)
	}
	for i := range want {
		if gids[i] != want[i] {
			t.Fatalf("gids = %v, want %v", gids, want)
		}
	}
}

func TestGroupsExcludesPrimary(t *testing.T) {
	db := fixtureDB(t)

	gids, err := db.Groups("bob", 63)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	for _, g := range gids {
		if g == 63 {
			t.Error("primary group listed as supplementary")
		}
	}
}
