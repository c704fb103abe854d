// Package savegame reads and writes LZ4-compressed save slots capturing the
// variable board and the resumable state of every unfinished run.
package savegame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pierrec/lz4"
	"go.uber.org/zap"

	"github.com/cueworks/stagehand/internal/director"
	"github.com/cueworks/stagehand/internal/vars"
)

// formatVersion guards against loading slots written by an incompatible build.
const formatVersion = 1

// slotExt is the save file suffix.
const slotExt = ".sav"

var (
	ErrSlotNotFound = errors.New("save slot not found")
	ErrBadSlotName  = errors.New("save slot name must be letters, digits, - or _")
)

// File is the decoded savegame payload.
type File struct {
	Version int                   `json:"version"`
	SavedAt time.Time             `json:"saved_at"`
	Tick    uint64                `json:"tick"`
	Vars    map[string]vars.Value `json:"vars"`
	Runs    []director.Snapshot   `json:"runs"`
}

// Info describes one slot on disk without decoding it.
type Info struct {
	Name    string
	SavedAt time.Time
	Size    int64
}

// Slots manages the directory of save files.
type Slots struct {
	dir string
	log *zap.Logger
}

// NewSlots creates a slot manager rooted at dir. The directory is created
// lazily on the first save.
//
// Precondition: logger must be non-nil.
func NewSlots(dir string, logger *zap.Logger) *Slots {
	return &Slots{dir: dir, log: logger}
}

// Save captures the director's variable board and every unfinished run into
// the named slot, overwriting any previous content.
//
// Postcondition: The slot file exists on disk or a non-nil error is returned.
func (s *Slots) Save(slot string, d *director.Director) error {
	path, err := s.path(slot)
	if err != nil {
		return err
	}

	file := File{
		Version: formatVersion,
		SavedAt: time.Now(),
		Tick:    d.Tick(),
		Vars:    d.Vars().Snapshot(),
		Runs:    d.SnapshotAll(),
	}

	raw, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encoding slot %q: %w", slot, err)
	}
	packed, err := compress(raw)
	if err != nil {
		return fmt.Errorf("compressing slot %q: %w", slot, err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating save directory: %w", err)
	}
	if err := os.WriteFile(path, packed, 0644); err != nil {
		return fmt.Errorf("writing slot %q: %w", slot, err)
	}

	s.log.Info("slot saved",
		zap.String("slot", slot),
		zap.Int("runs", len(file.Runs)),
		zap.Int("vars", len(file.Vars)),
		zap.Int("raw_bytes", len(raw)),
		zap.Int("packed_bytes", len(packed)),
	)
	return nil
}

// Load restores the named slot into the director: the variable board is
// replaced wholesale and each recorded run is rebuilt at its cursors. Runs
// that collide with a still-live run, or whose list has been removed, are
// skipped with a warning rather than failing the load.
//
// Postcondition: Returns the decoded File, or ErrSlotNotFound for a missing
// slot.
func (s *Slots) Load(slot string, d *director.Director) (File, error) {
	file, err := s.Peek(slot)
	if err != nil {
		return File{}, err
	}

	d.Vars().Restore(file.Vars)

	restored := 0
	for _, snap := range file.Runs {
		if err := d.RestoreRun(snap); err != nil {
			s.log.Warn("saved run not restored",
				zap.String("slot", slot),
				zap.String("run", snap.RunID.String()),
				zap.String("list", snap.ListID),
				zap.Error(err),
			)
			continue
		}
		restored++
	}

	s.log.Info("slot loaded",
		zap.String("slot", slot),
		zap.Int("runs", restored),
		zap.Int("vars", len(file.Vars)),
		zap.Time("saved_at", file.SavedAt),
	)
	return file, nil
}

// Peek decodes the named slot without touching any director state.
//
// Postcondition: Returns ErrSlotNotFound for a missing slot.
func (s *Slots) Peek(slot string) (File, error) {
	path, err := s.path(slot)
	if err != nil {
		return File{}, err
	}

	packed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, fmt.Errorf("%w: %q", ErrSlotNotFound, slot)
		}
		return File{}, fmt.Errorf("reading slot %q: %w", slot, err)
	}

	raw, err := decompress(packed)
	if err != nil {
		return File{}, fmt.Errorf("decompressing slot %q: %w", slot, err)
	}

	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return File{}, fmt.Errorf("decoding slot %q: %w", slot, err)
	}
	if file.Version != formatVersion {
		return File{}, fmt.Errorf("slot %q has format version %d, want %d", slot, file.Version, formatVersion)
	}
	return file, nil
}

// Delete removes the named slot.
//
// Postcondition: Returns ErrSlotNotFound when the slot does not exist.
func (s *Slots) Delete(slot string) error {
	path, err := s.path(slot)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrSlotNotFound, slot)
		}
		return fmt.Errorf("deleting slot %q: %w", slot, err)
	}
	return nil
}

// List returns the slots on disk, sorted by name.
//
// Postcondition: Returns a non-nil slice; a missing save directory is an
// empty list, not an error.
func (s *Slots) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("reading save directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), slotExt) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:    strings.TrimSuffix(entry.Name(), slotExt),
			SavedAt: fi.ModTime(),
			Size:    fi.Size(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// path validates the slot name and returns its file path. Names are kept to
// a safe character set so a slot can never escape the save directory.
func (s *Slots) path(slot string) (string, error) {
	if slot == "" {
		return "", ErrBadSlotName
	}
	for _, r := range slot {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return "", fmt.Errorf("%w: %q", ErrBadSlotName, slot)
		}
	}
	return filepath.Join(s.dir, slot+slotExt), nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
