package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"exhume/internal/fileutil"
)

// ErrNoRunID reports a manifest without a run identifier.
var ErrNoRunID = errors.New("manifest has no run_id")

// ErrNotObject reports a manifest whose top level is not a JSON object.
var ErrNotObject = errors.New("manifest is not a JSON object")

// Write atomically writes m to path.
func Write(path string, m Manifest) error {
	if m.Files == nil {
		m.Files = []File{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeAtomic(path, data)
}

// Read loads the manifest at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.RunID == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrNoRunID)
	}
	return &m, nil
}

// AppendIngestion records ing under the manifest's "ingestion" key, replacing
// any earlier block. Every other top-level key is written back unchanged.
func AppendIngestion(path string, ing Ingestion) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if doc == nil {
		return fmt.Errorf("%s: %w", path, ErrNotObject)
	}
	if ing.IngestedAt.IsZero() {
		ing.IngestedAt = time.Now().UTC()
	}
	block, err := json.Marshal(ing)
	if err != nil {
		return fmt.Errorf("marshal ingestion: %w", err)
	}
	doc["ingestion"] = block
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeAtomic(path, out)
}

func writeAtomic(path string, data []byte) error {
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return err
		}
		_, err := w.Write([]byte{'\n'})
		return err
	})
	if err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	return nil
}
