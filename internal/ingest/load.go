package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	commissionsFile = "commissions.json"
	recordsDir      = "records"
)

// LoadDir reads a scraped batch laid out as
//
//	<dir>/commissions.json
//	<dir>/records/*.json
//
// Each file holds a JSON array or a single object.
func LoadDir(dir string) (*Batch, error) {
	var b Batch
	if err := readJSONList(filepath.Join(dir, commissionsFile), &b.Commissions); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(dir, recordsDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		var recs []RawRecord
		if err := readJSONList(f, &recs); err != nil {
			return nil, err
		}
		b.Records = append(b.Records, recs...)
	}
	return &b, nil
}

func readJSONList[T any](path string, dst *[]T) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var one T
		if err := json.Unmarshal(data, &one); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		*dst = append(*dst, one)
		return nil
	}
	var many []T
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	*dst = append(*dst, many...)
	return nil
}
