package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aristath/benchrunner/internal/scheduler"
)

// enumerateTasks lists the task subdirectories of tasksFolder and builds the
// immutable task set for the run. Non-directories and hidden entries are
// skipped. When nameFilter is non-empty, only the named tasks survive.
func enumerateTasks(tasksFolder, dumpRoot string, nameFilter []string) ([]scheduler.Task, error) {
	entries, err := os.ReadDir(tasksFolder)
	if err != nil {
		return nil, fmt.Errorf("read tasks folder %s: %w", tasksFolder, err)
	}

	var wanted map[string]struct{}
	if len(nameFilter) > 0 {
		wanted = make(map[string]struct{}, len(nameFilter))
		for _, name := range nameFilter {
			wanted[name] = struct{}{}
		}
	}

	folderBase := filepath.Base(filepath.Clean(tasksFolder))

	var tasks []scheduler.Task
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[e.Name()]; !ok {
				continue
			}
		}
		tasks = append(tasks, scheduler.Task{
			ID:     folderBase + "/" + e.Name(),
			Name:   e.Name(),
			Dir:    filepath.Join(tasksFolder, e.Name()),
			OutDir: filepath.Join(dumpRoot, folderBase, e.Name()),
		})
	}
	return tasks, nil
}
