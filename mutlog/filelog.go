package mutlog

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
)

// FileLog is an append-only journal of entries.  Each record is a 6 byte
// header (uint16 entry type, uint32 data size, little endian) followed by the
// msgpack-encoded entry.
type FileLog struct {
	path string
	f    *os.File
	sync.Mutex
}

// OpenJournal opens the journal at path for a new session and returns the
// decisions earlier sessions left pending.  If recovery is off, any such
// decisions are discarded in the journal so later recoveries skip them, and
// nil is returned.
func OpenJournal(path, session string, recover bool) (*FileLog, []labels.Decision, error) {
	entries, err := ReadFileLog(path)
	if err != nil {
		return nil, nil, err
	}
	pending := Pending(entries)
	fl, err := OpenFileLog(path)
	if err != nil {
		return nil, nil, err
	}
	if len(pending) == 0 {
		return fl, nil, nil
	}
	if recover {
		dvid.Infof("Found %d unsaved merges in %s\n", len(pending), path)
		return fl, pending, nil
	}
	dvid.Warningf("Discarding %d unsaved merges in %s, use recovery to keep them\n", len(pending), path)
	if err := fl.Record(NewEntry(DiscardEntry, session, labels.Decision{})); err != nil {
		fl.Close()
		return nil, nil, err
	}
	return fl, nil, nil
}

// OpenFileLog opens the journal at path for appending, creating it and its
// parent directory if necessary.
func OpenFileLog(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("can't create directory for mutation log %q: %v", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("can't open mutation log %q: %v", path, err)
	}
	dvid.Infof("Recording merge decisions to %s\n", path)
	return &FileLog{path: path, f: f}, nil
}

// Path returns the journal's file path.
func (fl *FileLog) Path() string {
	return fl.path
}

// Record appends the entry and syncs the file.
func (fl *FileLog) Record(e Entry) error {
	data, err := e.MarshalMsg(nil)
	if err != nil {
		return err
	}
	buf := make([]byte, 6, 6+len(data))
	binary.LittleEndian.PutUint16(buf[:2], uint16(e.Type))
	binary.LittleEndian.PutUint32(buf[2:], uint32(len(data)))
	buf = append(buf, data...)

	fl.Lock()
	defer fl.Unlock()
	if fl.f == nil {
		return fmt.Errorf("mutation log %q is closed", fl.path)
	}
	if _, err := fl.f.Write(buf); err != nil {
		return fmt.Errorf("bad write to mutation log %q: %v", fl.path, err)
	}
	return fl.f.Sync()
}

func (fl *FileLog) Close() error {
	fl.Lock()
	defer fl.Unlock()
	if fl.f == nil {
		return nil
	}
	err := fl.f.Close()
	fl.f = nil
	return err
}

// ReadFileLog returns all entries in the journal at path.  A missing file
// is an empty journal.
func ReadFileLog(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	hdrbuf := make([]byte, 6)
	for {
		_, err := io.ReadFull(r, hdrbuf)
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entryType := EntryType(binary.LittleEndian.Uint16(hdrbuf[0:2]))
		size := binary.LittleEndian.Uint32(hdrbuf[2:])
		databuf := make([]byte, size)
		if _, err = io.ReadFull(r, databuf); err != nil {
			return nil, err
		}
		var e Entry
		if _, err = e.UnmarshalMsg(databuf); err != nil {
			return nil, fmt.Errorf("corrupted mutation log entry %d: %v", len(entries), err)
		}
		if e.Type != entryType {
			return nil, fmt.Errorf("mutation log entry %d has header type %s but data type %s", len(entries), entryType, e.Type)
		}
		entries = append(entries, e)
	}
}
