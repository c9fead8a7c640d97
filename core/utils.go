package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Getwd returns the project root: the closest parent directory containing go.mod.
// Falls back to the current working directory.
func Getwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}

var timeSinceChunks = []struct {
	unit time.Duration
	name string
}{
	{365 * 24 * time.Hour, "year"},
	{30 * 24 * time.Hour, "month"},
	{7 * 24 * time.Hour, "week"},
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
}

// TimeSince renders the time elapsed since `t` as a human-relative string,
// e.g. "4 minutes", "2 hours", "1 week". Sub-minute ages render as "0 minutes".
func TimeSince(t time.Time, now ...time.Time) string {
	ref := time.Now()
	if len(now) > 0 {
		ref = now[0]
	}
	elapsed := ref.Sub(t)
	for _, chunk := range timeSinceChunks {
		if n := int(elapsed / chunk.unit); n >= 1 {
			if n == 1 {
				return fmt.Sprintf("1 %s", chunk.name)
			}
			return fmt.Sprintf("%d %ss", n, chunk.name)
		}
	}
	return "0 minutes"
}
