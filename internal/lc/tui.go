package lc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type logEntry struct {
	path      string
	content   string
	status    string // PENDING, SUCCESS, FAILED, or "?" when unparsable
	archived  bool
	canDelete bool
}

var (
	tuiApp         *tview.Application
	tuiRepoDir     string
	tuiLogs        []logEntry
	tuiActiveIdx   int
	tuiPrevIdx     int
	tuiHeaderBox   *tview.TextView
	tuiLogView     *tview.TextView
	tuiFooterBox   *tview.TextView
	tuiUpdateChan  chan []logEntry
	tuiPrevContent map[string]string
	tuiScrollEnd   bool
)

// RunLogTUI opens the interactive viewer over a repository's .build_logs.
// Pending logs refresh live while their supervisor writes; archived
// transcripts render through the archive reader.
func RunLogTUI(repoDir string) int {
	tuiRepoDir = repoDir
	tuiUpdateChan = make(chan []logEntry, 10)
	tuiPrevContent = make(map[string]string)
	tuiPrevIdx = -1

	tuiApp = tview.NewApplication()

	tuiHeaderBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	tuiHeaderBox.SetBorder(true)
	tuiHeaderBox.SetTitle("lc Build Log Viewer")

	tuiLogView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true).
		SetChangedFunc(func() {
			tuiApp.Draw()
		})
	tuiLogView.SetBorder(true)

	tuiFooterBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	tuiFooterBox.SetBorder(true)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tuiHeaderBox, 3, 0, false).
		AddItem(tuiLogView, 0, 1, true).
		AddItem(tuiFooterBox, 4, 0, false)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			tuiApp.Stop()
			return nil
		case tcell.KeyLeft:
			tuiSwitch(-1)
			return nil
		case tcell.KeyRight:
			tuiSwitch(1)
			return nil
		case tcell.KeyHome:
			tuiLogView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			tuiLogView.ScrollToEnd()
			return nil
		case tcell.KeyUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 0 {
				tuiLogView.ScrollTo(row-1, 0)
			}
			return nil
		case tcell.KeyDown:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+1, 0)
			return nil
		case tcell.KeyPgUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 10 {
				tuiLogView.ScrollTo(row-10, 0)
			} else {
				tuiLogView.ScrollToBeginning()
			}
			return nil
		case tcell.KeyPgDn:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+10, 0)
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q':
				tuiApp.Stop()
				return nil
			case 'd':
				if tuiActiveIdx < len(tuiLogs) && tuiLogs[tuiActiveIdx].canDelete {
					os.Remove(tuiLogs[tuiActiveIdx].path)
					go func() {
						tuiUpdateChan <- readRepoLogs(tuiRepoDir)
					}()
				}
				return nil
			case 'h':
				tuiSwitch(-1)
				return nil
			case 'l':
				tuiSwitch(1)
				return nil
			}
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(400 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			logs := readRepoLogs(tuiRepoDir)
			select {
			case tuiUpdateChan <- logs:
			default:
			}
		}
	}()

	go func() {
		for logs := range tuiUpdateChan {
			var currentPath string
			if tuiActiveIdx < len(tuiLogs) {
				currentPath = tuiLogs[tuiActiveIdx].path
			}
			tuiLogs = logs
			if currentPath != "" {
				found := false
				for i, l := range tuiLogs {
					if l.path == currentPath {
						tuiActiveIdx = i
						found = true
						break
					}
				}
				if !found && tuiActiveIdx >= len(tuiLogs) && len(tuiLogs) > 0 {
					tuiActiveIdx = len(tuiLogs) - 1
				}
			}
			tuiApp.QueueUpdateDraw(func() {
				updateTUI()
			})
		}
	}()

	tuiApp.SetRoot(flex, true).SetFocus(tuiLogView)

	tuiLogs = readRepoLogs(tuiRepoDir)
	if len(tuiLogs) > 0 {
		tuiActiveIdx = 0
	}
	updateTUI()

	if err := tuiApp.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		return 1
	}
	return 0
}

func tuiSwitch(delta int) {
	if len(tuiLogs) == 0 {
		return
	}
	tuiActiveIdx = (tuiActiveIdx + delta + len(tuiLogs)) % len(tuiLogs)
	tuiScrollEnd = true
	updateTUI()
}

func statusColorTag(status string) string {
	switch status {
	case "SUCCESS":
		return "[green]"
	case "FAILED":
		return "[red]"
	case "PENDING":
		return "[yellow]"
	}
	return "[gray]"
}

func updateTUI() {
	if tuiApp == nil || tuiHeaderBox == nil || tuiLogView == nil || tuiFooterBox == nil {
		return
	}

	if len(tuiLogs) == 0 {
		tuiHeaderBox.SetText("[gray]No build logs found[white]")
	} else if tuiActiveIdx < len(tuiLogs) {
		l := tuiLogs[tuiActiveIdx]
		tuiHeaderBox.SetText(fmt.Sprintf("[gray]Log %d/%d: %s%s[white] %s",
			tuiActiveIdx+1, len(tuiLogs), statusColorTag(l.status), l.status, filepath.Base(l.path)))
	} else {
		tuiHeaderBox.SetText("[gray]No active log[white]")
	}

	if len(tuiLogs) == 0 {
		tuiLogView.SetText("No build log yet. Run 'lc build' or push to a forge to see logs here.")
	} else if tuiActiveIdx < len(tuiLogs) {
		l := tuiLogs[tuiActiveIdx]
		prevContent, hadPrev := tuiPrevContent[l.path]
		switched := tuiPrevIdx != tuiActiveIdx
		if switched {
			tuiPrevIdx = tuiActiveIdx
		}
		if l.content != prevContent || switched {
			row, _ := tuiLogView.GetScrollOffset()
			wasAtBottom := false
			if !switched && hadPrev {
				tuiLogView.ScrollTo(row+1, 0)
				newRow, _ := tuiLogView.GetScrollOffset()
				wasAtBottom = newRow == row
				tuiLogView.ScrollTo(row, 0)
			}
			tuiLogView.Clear()
			w := tview.ANSIWriter(tuiLogView)
			w.Write([]byte(l.content))
			switch {
			case switched || tuiScrollEnd:
				tuiLogView.ScrollToEnd()
				tuiScrollEnd = false
			case wasAtBottom:
				tuiLogView.ScrollToEnd()
			case hadPrev:
				prevLines := strings.Count(prevContent, "\n")
				newLines := strings.Count(l.content, "\n")
				if newLines > prevLines {
					tuiLogView.ScrollTo(row+(newLines-prevLines), 0)
				} else {
					tuiLogView.ScrollTo(row, 0)
				}
			}
			tuiPrevContent[l.path] = l.content
		}
	} else {
		tuiLogView.SetText("")
	}

	segments := []string{
		"Press 'q' or Ctrl+Q to quit",
		"← → (or h/l) to switch logs",
		"↑ ↓ to scroll",
		"Home/End to jump to start/end",
	}
	if len(tuiLogs) > 0 && tuiActiveIdx < len(tuiLogs) && tuiLogs[tuiActiveIdx].canDelete {
		segments = append(segments, "'d' to delete")
	}
	tuiFooterBox.SetText(fmt.Sprintf("[gray]%s[white]", strings.Join(segments, " | ")))
}

// logStatusFromName parses the STATUS token out of a .build_logs entry
// name, for both trigger logs and transcript archives.
func logStatusFromName(name string) string {
	for _, s := range []string{"PENDING", "SUCCESS", "FAILED"} {
		if strings.Contains(name, "-"+s+"-") || strings.Contains(name, "-"+s+".") {
			return s
		}
	}
	return "?"
}

// readRepoLogs scans .build_logs, newest first. Plain .log files are read
// directly (and refresh live while a supervisor appends); archives render
// member by member through the archive reader. Archive contents are cached
// per path, they never change after creation.
func readRepoLogs(repoDir string) []logEntry {
	dir := logsDir(repoDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".log") || strings.Contains(name, ".tar.") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		ai, err1 := os.Stat(paths[i])
		aj, err2 := os.Stat(paths[j])
		if err1 != nil || err2 != nil {
			return paths[i] > paths[j]
		}
		return ai.ModTime().After(aj.ModTime())
	})

	logs := make([]logEntry, 0, len(paths))
	for _, path := range paths {
		name := filepath.Base(path)
		status := logStatusFromName(name)
		l := logEntry{
			path:      path,
			status:    status,
			archived:  strings.Contains(name, ".tar."),
			canDelete: status != "PENDING",
		}
		if l.archived {
			if cached, ok := tuiPrevContent[path]; ok {
				l.content = cached
			} else if text, err := readArchiveText(path); err == nil {
				l.content = text
			} else {
				l.content = fmt.Sprintf("failed to read archive: %v", err)
			}
		} else {
			b, err := os.ReadFile(path)
			if err != nil {
				l.content = fmt.Sprintf("failed to read log: %v", err)
			} else {
				l.content = string(b)
			}
		}
		logs = append(logs, l)
	}
	return logs
}
