package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConflictConfig declares sets of task names that must never run
// concurrently because they mutate the same external system.
type ConflictConfig struct {
	ConflictGroups [][]string `json:"conflict_groups"`
}

// LoadConflictGroups reads task_conflict.json from the tasks folder.
// A missing file is not an error: the folder simply has no conflicting
// tasks. Malformed JSON is an error; silently running conflicting tasks in
// parallel would corrupt shared state.
func LoadConflictGroups(tasksFolder string) ([][]string, error) {
	path := filepath.Join(tasksFolder, ConflictFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg ConflictConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg.ConflictGroups, nil
}
