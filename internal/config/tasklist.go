package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadTaskList reads a newline-delimited task filter file. Blank lines and
// lines starting with '#' are ignored; entries are trimmed.
func LoadTaskList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task list %s: %w", path, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read task list %s: %w", path, err)
	}
	return names, nil
}
