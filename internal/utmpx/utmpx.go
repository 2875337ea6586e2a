//go:build linux

package utmpx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"
)

// Package utmpx maintains login accounting records in the utmp table, the
// file consumed by who(1) and w(1). Accounting is best-effort by contract:
// callers log failures and carry on.

const DefaultPath = "/var/run/utmp"

// ut_type values from utmp(5).
const (
	typeEmpty       = 0
	typeUserProcess = 7
	typeDeadProcess = 8
)

// entry mirrors the glibc struct utmp layout (384 bytes). Blank fields cover
// the compiler-inserted padding.
type entry struct {
	Type     int16
	_        [2]byte
	Pid      int32
	Line     [32]byte
	ID       [4]byte
	User     [32]byte
	Host     [256]byte
	Exit     [2]int16
	Session  int32
	TimeSec  int32
	TimeUsec int32
	AddrV6   [4]int32
	_        [20]byte
}

const entrySize = 384

// Record identifies one registration so it can be unregistered later.
type Record struct {
	Pid  int32
	Line string
	User string
	ID   string
}

type Recorder struct {
	path string
}

func NewRecorder(path string) *Recorder {
	if path == "" {
		path = DefaultPath
	}
	return &Recorder{path: path}
}

// Register appends a USER_PROCESS entry for the session child. Slots holding
// a dead or empty entry, or an entry for the same line, are reused the way
// pututline(3) reuses them.
func (r *Recorder) Register(pid int, line, user, id string) (*Record, error) {
	f, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE, 0664)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	now := time.Now()
	var e entry
	e.Type = typeUserProcess
	e.Pid = int32(pid)
	copy(e.Line[:], line)
	copy(e.ID[:], id)
	copy(e.User[:], user)
	e.TimeSec = int32(now.Unix())
	e.TimeUsec = int32(now.UnixMicro() % 1e6)

	slot, err := r.findSlot(f, line)
	if err != nil {
		return nil, err
	}
	if err := writeAt(f, slot, &e); err != nil {
		return nil, err
	}
	return &Record{Pid: int32(pid), Line: line, User: user, ID: id}, nil
}

// Unregister rewrites the record's slot as DEAD_PROCESS. A nil record or a
// record with no matching slot is a no-op, so crash-recovery paths can call
// it unconditionally.
func (r *Recorder) Unregister(rec *Record) error {
	if rec == nil {
		return nil
	}
	f, err := os.OpenFile(r.path, os.O_RDWR, 0664)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	for slot := int64(0); ; slot++ {
		var e entry
		if err := readAt(f, slot, &e); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
		if e.Type != typeUserProcess || e.Pid != rec.Pid || cstr(e.Line[:]) != rec.Line {
			continue
		}
		now := time.Now()
		e.Type = typeDeadProcess
		e.User = [32]byte{}
		e.Host = [256]byte{}
		e.TimeSec = int32(now.Unix())
		e.TimeUsec = int32(now.UnixMicro() % 1e6)
		return writeAt(f, slot, &e)
	}
}

// findSlot returns the index of the first reusable slot, or the index one
// past the last record when none can be reused.
func (r *Recorder) findSlot(f *os.File, line string) (int64, error) {
	for slot := int64(0); ; slot++ {
		var e entry
		if err := readAt(f, slot, &e); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return slot, nil
			}
			return 0, err
		}
		if e.Type == typeEmpty || e.Type == typeDeadProcess || cstr(e.Line[:]) == line {
			return slot, nil
		}
	}
}

func readAt(f *os.File, slot int64, e *entry) error {
	buf := make([]byte, entrySize)
	if _, err := f.ReadAt(buf, slot*entrySize); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.NativeEndian, e)
}

func writeAt(f *os.File, slot int64, e *entry) error {
	var buf bytes.Buffer
	buf.Grow(entrySize)
	if err := binary.Write(&buf, binary.NativeEndian, e); err != nil {
		return err
	}
	_, err := f.WriteAt(buf.Bytes(), slot*entrySize)
	return err
}

// cstr trims a NUL-padded fixed-size field.
func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
