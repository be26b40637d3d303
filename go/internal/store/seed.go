package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/mcdev12/warboard/go/internal/models"
)

// LoadSeedFile reads a JSON object mapping war IDs to records in the
// producer's layout. IDs are returned sorted.
func LoadSeedFile(path string) ([]string, map[string]*models.War, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read seed file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse seed file: %w", err)
	}

	ids := make([]string, 0, len(raw))
	wars := make(map[string]*models.War, len(raw))
	for id, msg := range raw {
		war, err := DecodeWar(msg)
		if err != nil {
			return nil, nil, fmt.Errorf("war %s: %w", id, err)
		}
		ids = append(ids, id)
		wars[id] = war
	}
	sort.Strings(ids)
	return ids, wars, nil
}
