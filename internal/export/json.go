// Package export writes a settled batch ledger to its output
// collaborators: a JSON report and an Excel workbook.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/qianyu2019/firedoor-extractor/internal/ledger"
	"github.com/qianyu2019/firedoor-extractor/internal/models"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

// CollectRecords returns the exportable documentKey -> record mapping of
// a settled ledger snapshot: entries that never settled with a non-empty
// record are logged and omitted.
func CollectRecords(snap map[string]ledger.Entry, log logger.Logger) map[string]*models.ExtractionRecord {
	if log == nil {
		log = logger.NewNop()
	}
	out := make(map[string]*models.ExtractionRecord, len(snap))
	for key, entry := range snap {
		if entry.Record == nil {
			log.Warn("document never settled, omitting from export", logger.String("document", key))
			continue
		}
		if entry.Record.IsEmpty() {
			log.Warn("document settled without data, omitting from export",
				logger.String("document", key),
				logger.Error(entry.Err),
			)
			continue
		}
		out[key] = entry.Record
	}
	return out
}

// SortedKeys returns the mapping's keys in stable order.
func SortedKeys(records map[string]*models.ExtractionRecord) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteJSON writes the batch mapping as an indented JSON object. Output
// is deterministic: encoding/json sorts map keys.
func WriteJSON(path string, records map[string]*models.ExtractionRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("export: can't create json dir: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("export: failed to marshal records: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("export: failed to write %s: %w", path, err)
	}
	return nil
}
