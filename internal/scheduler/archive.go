package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
)

const legacyDirName = "legacy_results"

// archiveLegacyResults moves artifacts left by a prior run of the same task
// into legacy_results/run<N>, with N incrementing monotonically across
// re-runs. A bare leftover log with no other artifacts carries nothing worth
// keeping and is deleted outright.
func archiveLegacyResults(outDir string) error {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read output dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Name() == legacyDirName {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil
	}

	if len(names) == 1 && names[0] == LogFileName {
		return os.Remove(filepath.Join(outDir, LogFileName))
	}

	runDir := filepath.Join(outDir, legacyDirName, fmt.Sprintf("run%d", nextRunNumber(outDir)))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	for _, name := range names {
		if err := os.Rename(filepath.Join(outDir, name), filepath.Join(runDir, name)); err != nil {
			return fmt.Errorf("archive %s: %w", name, err)
		}
	}
	return nil
}

// nextRunNumber returns one past the highest existing run<N> archive folder.
func nextRunNumber(outDir string) int {
	entries, err := os.ReadDir(filepath.Join(outDir, legacyDirName))
	if err != nil {
		return 1
	}

	highest := 0
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e.Name(), "run%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1
}
