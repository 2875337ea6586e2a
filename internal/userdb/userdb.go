package userdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultPasswdPath = "/etc/passwd"
	DefaultGroupPath  = "/etc/group"
)

var ErrUnknownUser = errors.New("unknown user")

// Entry is one /etc/passwd line.
type Entry struct {
	Name  string
	UID   uint32
	GID   uint32
	Gecos string
	Home  string
	Shell string
}

// DB resolves local users against the passwd and group files.
type DB struct {
	passwdPath string
	groupPath  string
}

func Open() *DB {
	return &DB{passwdPath: DefaultPasswdPath, groupPath: DefaultGroupPath}
}

// OpenAt is used by tests to point the resolver at fixture files.
func OpenAt(passwdPath, groupPath string) *DB {
	return &DB{passwdPath: passwdPath, groupPath: groupPath}
}

// Lookup returns the passwd entry for name.
func (db *DB) Lookup(name string) (*Entry, error) {
	f, err := os.Open(db.passwdPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 7 || parts[0] != name {
			continue
		}
		uid, err := atou32(parts[2], "passwd.uid")
		if err != nil {
			return nil, err
		}
		gid, err := atou32(parts[3], "passwd.gid")
		if err != nil {
			return nil, err
		}
		return &Entry{
			Name:  parts[0],
			UID:   uid,
			GID:   gid,
			Gecos: parts[4],
			Home:  parts[5],
			Shell: parts[6],
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
}

// Groups returns the supplementary group IDs of name, the primary group
// excluded. Order follows the group file.
func (db *DB) Groups(name string, primary uint32) ([]uint32, error) {
	f, err := os.Open(db.groupPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return nil, err
	}
	var gids []uint32
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 4 {
			continue
		}
		gid, err := atou32(parts[2], "group.gid")
		if err != nil {
			return nil, err
		}
		if gid == primary {
			continue
		}
		for _, m := range strings.Split(parts[3], ",") {
			if m == name {
				gids = append(gids, gid)
				break
			}
		}
	}
	return gids, nil
}

func readLines(r io.Reader) ([]string, error) {
	s := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 1024*1024)
	var lines []string
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func atou32(field, ctx string) (uint32, error) {
	n, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid int %q in %s: %w", field, ctx, err)
	}
	return uint32(n), nil
}
