package rtree

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/kass/go-store-locator/pkg/models"
)

const snapshotVersion = 1

// IndexData represents the serializable form of the geo index
type IndexData struct {
	Version int
	Stores  []models.Store
	Count   int64
}

// SaveToFile writes a zstd-compressed gob snapshot of the index.
// The file is replaced atomically.
func (g *GeoIndex) SaveToFile(filename string) error {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return fmt.Errorf("failed to snapshot closed index")
	}
	data := IndexData{
		Version: snapshotVersion,
		Stores:  g.all(),
		Count:   g.itemCount.Load(),
	}
	g.mu.RUnlock()

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	if err := gob.NewEncoder(enc).Encode(data); err != nil {
		enc.Close()
		tmp.Close()
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush compressor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// LoadFromFile replaces the index content with a snapshot written by SaveToFile.
// Store identities are preserved. The swap is atomic for readers and a failed
// load leaves the index untouched.
func (g *GeoIndex) LoadFromFile(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return 0, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer dec.Close()

	var data IndexData
	if err := gob.NewDecoder(dec).Decode(&data); err != nil {
		return 0, fmt.Errorf("failed to decode data: %w", err)
	}
	if data.Version != snapshotVersion {
		return 0, fmt.Errorf("unsupported snapshot version %d", data.Version)
	}

	items := make([]*spatialStore, 0, len(data.Stores))
	for _, s := range data.Stores {
		if s.ID == "" {
			return 0, fmt.Errorf("snapshot store %q has no id", s.Name)
		}
		if err := validateRecord(s); err != nil {
			return 0, err
		}
		items = append(items, newSpatialStore(s))
	}

	if err := g.replace(items); err != nil {
		return 0, fmt.Errorf("failed to index stores: %w", err)
	}
	return len(items), nil
}
