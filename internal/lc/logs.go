package lc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LogItem is one .build_logs entry for non-interactive listing.
type LogItem struct {
	Name     string
	Status   string
	Size     int64
	Archived bool
}

// ListBuildLogs enumerates .build_logs newest first.
func ListBuildLogs(repoDir string) ([]LogItem, error) {
	dir := logsDir(repoDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type stamped struct {
		item LogItem
		mod  int64
	}
	var items []stamped
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".log") && !strings.Contains(name, ".tar.") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, stamped{
			item: LogItem{
				Name:     name,
				Status:   logStatusFromName(name),
				Size:     info.Size(),
				Archived: strings.Contains(name, ".tar."),
			},
			mod: info.ModTime().UnixNano(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].mod > items[j].mod })

	out := make([]LogItem, 0, len(items))
	for _, s := range items {
		out = append(out, s.item)
	}
	return out, nil
}

// PrintBuildLogs renders `lc logs` output.
func PrintBuildLogs(repoDir string, items []LogItem) {
	if len(items) == 0 {
		colWarn.Printf("No build logs in %s\n", filepath.Join(repoDir, LogsDirName))
		return
	}
	for _, it := range items {
		kind := "log"
		if it.Archived {
			kind = "archive"
		}
		var col interface {
			Printf(format string, a ...interface{})
		} = colInfo
		switch it.Status {
		case "SUCCESS":
			col = colSuccess
		case "FAILED":
			col = colError
		case "PENDING":
			col = colWarn
		}
		col.Printf("  %-8s %-8s %8s  %s\n", it.Status, kind, humanSize(it.Size), it.Name)
	}
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%dB", n)
}
