package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oriys/fabric/internal/logging"
	"github.com/oriys/fabric/internal/metrics"
	"github.com/oriys/fabric/message"
)

// storeKindLocalDirectory is the "store" label recorded against this
// implementation's Prometheus counters.
const storeKindLocalDirectory = "localdir"

// LocalDirectory is a filesystem-backed store. Each stored value becomes a
// uniquely-named JSON file under Dir; Retrieve returns the first .json file
// that isn't currently reserved, using the absolute path as the handle. A
// positive ack deletes the file; a negative ack only releases the
// in-process reservation so the file is eligible again on the next
// Retrieve. Non-JSON entries and unreadable files are skipped with a
// warning rather than failing the whole Retrieve call.
type LocalDirectory struct {
	dir string

	mu       sync.Mutex
	reserved map[string]bool
}

// NewLocalDirectory returns a store rooted at dir, creating it if absent.
func NewLocalDirectory(dir string) (*LocalDirectory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %q: %w", dir, err)
	}
	return &LocalDirectory{dir: dir, reserved: make(map[string]bool)}, nil
}

// Store writes content to a freshly-named JSON file under Dir.
func (s *LocalDirectory) Store(_ context.Context, content message.Content) error {
	data, err := content.MarshalJSON()
	if err != nil {
		metrics.RecordStoreOp(storeKindLocalDirectory, "store", "error")
		return fmt.Errorf("store: marshal content: %w", err)
	}

	name := message.NewID() + ".json"
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		metrics.RecordStoreOp(storeKindLocalDirectory, "store", "error")
		return fmt.Errorf("store: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		metrics.RecordStoreOp(storeKindLocalDirectory, "store", "error")
		return fmt.Errorf("store: rename %q to %q: %w", tmp, path, err)
	}
	metrics.RecordStoreOp(storeKindLocalDirectory, "store", "success")
	return nil
}

// Retrieve returns the first unreserved .json file in Dir, in lexical
// (time-ordered, since filenames are time-ordered ids) order.
func (s *LocalDirectory) Retrieve(_ context.Context) (Handle, message.Content, bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		metrics.RecordStoreOp(storeKindLocalDirectory, "retrieve", "error")
		return "", message.Content{}, false, fmt.Errorf("store: read dir %q: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range names {
		path := filepath.Join(s.dir, name)
		if s.reserved[path] {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logging.Op().Warn("localdir store: skipping unreadable file", "path", path, "error", err)
			continue
		}

		var content message.Content
		if err := content.UnmarshalJSON(data); err != nil {
			logging.Op().Warn("localdir store: skipping non-JSON file", "path", path, "error", err)
			continue
		}

		s.reserved[path] = true
		metrics.RecordStoreOp(storeKindLocalDirectory, "retrieve", "hit")
		return Handle(path), content, true, nil
	}
	metrics.RecordStoreOp(storeKindLocalDirectory, "retrieve", "empty")
	return "", message.Content{}, false, nil
}

// Acknowledge resolves handle. success=true deletes the file; success=false
// releases the reservation, leaving the file in place.
func (s *LocalDirectory) Acknowledge(_ context.Context, h Handle, success bool) error {
	path := string(h)

	s.mu.Lock()
	reserved := s.reserved[path]
	if reserved {
		delete(s.reserved, path)
	}
	s.mu.Unlock()

	if !reserved {
		metrics.RecordStoreOp(storeKindLocalDirectory, "acknowledge", "error")
		return ErrUnknownHandle
	}

	if !success {
		metrics.RecordStoreOp(storeKindLocalDirectory, "acknowledge", "negative")
		return nil
	}
	if err := os.Remove(path); err != nil {
		metrics.RecordStoreOp(storeKindLocalDirectory, "acknowledge", "error")
		return fmt.Errorf("store: remove %q: %w", path, err)
	}
	metrics.RecordStoreOp(storeKindLocalDirectory, "acknowledge", "positive")
	return nil
}
