// Package logfilter projects the task log into per-task and per-group
// views. It is grounded on the original task runner's TaskLogsAPI.get:
// read the whole rolling log, filter by day window, filter by an "ID: x"
// substring tag (falling back to task-name matching if that yields
// nothing), then best-effort parse each surviving line into
// {timestamp, level, message}.
package logfilter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shaharia-lab/taskrunner/internal/httpaction"
)

// Entry is one parsed log line.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

var strictLine = regexp.MustCompile(`^(.+?) - (\S+) - (.*)$`)
var dateLeadingPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
var levelWord = regexp.MustCompile(`\b(INFO|ERROR|WARNING|DEBUG|CRITICAL)\b`)

// Reader reads and projects the task log file at path.
type Reader struct {
	path string
}

// New returns a Reader over the rolling log file at path
// (<dataDir>/logs/tasks.log).
func New(path string) *Reader {
	return &Reader{path: path}
}

// ForTask returns the log entries tagged for taskID (lines containing
// "ID: <taskID>" or "任务ID: <taskID>"), expanded by the HTTP action capture
// span (a tagged line that opens an HTTP action pulls in every following
// line up to the action's terminal marker, even if a continuation line
// carries no tag of its own). Newest constraints applied as: only the last
// `days` days are considered (days<=0 means no day filter), then only the
// most recent `lines` entries are kept (lines<=0 means no line cap).
// taskName is used as a fallback substring filter if the ID tag matches
// nothing, mirroring the original handler's behavior.
func (r *Reader) ForTask(taskID, taskName string, lines, days int) ([]Entry, error) {
	raw, err := r.readLines()
	if err != nil {
		return nil, err
	}
	raw = filterByDays(raw, days)

	idTagged := captureFilter(raw, taskTagMatcher(taskID))
	if len(idTagged) == 0 && taskName != "" {
		idTagged = captureFilter(raw, containsMatcher(taskName))
	}

	return parseAndCap(idTagged, lines), nil
}

// ForGroup returns the union of lines tagged for groupID or its name
// ("ID: <groupID>" / "任务组: <name>") together with the per-task
// projection of every member task, all sorted by timestamp.
func (r *Reader) ForGroup(groupID, groupName string, memberTaskIDs []string, memberNames map[string]string, lines, days int) ([]Entry, error) {
	raw, err := r.readLines()
	if err != nil {
		return nil, err
	}
	raw = filterByDays(raw, days)

	tagged := captureFilter(raw, groupTagMatcher(groupID, groupName))

	for _, taskID := range memberTaskIDs {
		name := memberNames[taskID]
		taskLines := captureFilter(raw, taskTagMatcher(taskID))
		if len(taskLines) == 0 && name != "" {
			taskLines = captureFilter(raw, containsMatcher(name))
		}
		tagged = append(tagged, taskLines...)
	}

	entries := parseAll(dedupe(tagged))
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return capEntries(entries, lines), nil
}

// All returns every entry in the log, subject to the same days/lines
// windowing as the per-task projection.
func (r *Reader) All(lines, days int) ([]Entry, error) {
	raw, err := r.readLines()
	if err != nil {
		return nil, err
	}
	raw = filterByDays(raw, days)
	return parseAndCap(raw, lines), nil
}

// Clear truncates the log file, first copying its current contents to
// tasks_backup_<yyyymmddHHMMSS>.log alongside it. If days > 0, only
// entries within the last days days survive truncation (older entries are
// dropped); days <= 0 clears everything.
func (r *Reader) Clear(days int) error {
	raw, err := r.readLines()
	if err != nil {
		return err
	}

	if err := r.backup(); err != nil {
		return err
	}

	var keep []string
	if days > 0 {
		keep = filterByDays(raw, days)
	}

	f, err := os.Create(r.path) //nolint:gosec // path is operator-configured log dir
	if err != nil {
		return fmt.Errorf("truncating log file %q: %w", r.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range keep {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ClearTagged backs up the log, then removes every line tagged "ID: <id>"
// while leaving all other entries (including untagged ones) intact. If
// days > 0, only tagged lines within that window are removed; older tagged
// lines are left alone (they are presumed already covered by a prior
// retention clear).
func (r *Reader) ClearTagged(id string, days int) error {
	raw, err := r.readLines()
	if err != nil {
		return err
	}

	if err := r.backup(); err != nil {
		return err
	}

	tag := fmt.Sprintf("ID: %s", id)
	keep := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.Contains(line, tag) && (days <= 0 || withinDays(line, days)) {
			continue
		}
		keep = append(keep, line)
	}

	f, err := os.Create(r.path) //nolint:gosec // path is operator-configured log dir
	if err != nil {
		return fmt.Errorf("truncating log file %q: %w", r.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range keep {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
	}
	return w.Flush()
}

func withinDays(line string, days int) bool {
	lines := filterByDays([]string{line}, days)
	return len(lines) == 1
}

func (r *Reader) backup() error {
	src, err := os.Open(r.path) //nolint:gosec // path is operator-configured log dir
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening log file %q: %w", r.path, err)
	}
	defer src.Close()

	backupName := fmt.Sprintf("tasks_backup_%s.log", time.Now().UTC().Format("20060102150405"))
	dst, err := os.Create(filepath.Join(filepath.Dir(r.path), backupName)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("creating log backup: %w", err)
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func (r *Reader) readLines() ([]string, error) {
	f, err := os.Open(r.path) //nolint:gosec // path is operator-configured log dir
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading log file %q: %w", r.path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text()+"\n")
	}
	return lines, scanner.Err()
}

func filterByDays(lines []string, days int) []string {
	if days <= 0 {
		return lines
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		datePart := l
		if idx := strings.Index(l, " "); idx > 0 {
			datePart = l[:idx]
		}
		if datePart >= cutoff {
			out = append(out, l)
		}
	}
	return out
}

// captureFilter retains every line matches accepts, plus every line that
// falls inside an HTTP action capture span opened by a retained line --
// i.e. it drives InCaptureSpan over the full, chronologically ordered
// input rather than over the already-tag-filtered subset, so a
// continuation line lacking its own tag is still pulled in.
func captureFilter(lines []string, matches func(string) bool) []string {
	out := make([]string, 0)
	capturing := false
	for _, l := range lines {
		include := matches(l) || capturing
		capturing, _ = InCaptureSpan(l, capturing)
		if include {
			out = append(out, l)
		}
	}
	return out
}

func taskTagMatcher(taskID string) func(string) bool {
	idTag := fmt.Sprintf("ID: %s", taskID)
	cnTag := fmt.Sprintf("任务ID: %s", taskID)
	return func(line string) bool {
		return strings.Contains(line, idTag) || strings.Contains(line, cnTag)
	}
}

func groupTagMatcher(groupID, groupName string) func(string) bool {
	idTag := fmt.Sprintf("ID: %s", groupID)
	nameTag := fmt.Sprintf("任务组: %s", groupName)
	return func(line string) bool {
		return strings.Contains(line, idTag) || strings.Contains(line, nameTag)
	}
}

func containsMatcher(needle string) func(string) bool {
	return func(line string) bool { return strings.Contains(line, needle) }
}

func dedupe(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func parseAndCap(lines []string, limit int) []Entry {
	return capEntries(parseAll(lines), limit)
}

func capEntries(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

func parseAll(lines []string) []Entry {
	entries := make([]Entry, 0, len(lines))
	for _, raw := range lines {
		line := strings.TrimRight(raw, "\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, parseLine(line))
	}
	return entries
}

// parseLine mirrors the original handler's two-tier parse: split on " - "
// into exactly 3 parts first; if that fails, fall back to extracting a
// leading ISO date and a recognized level word, defaulting to INFO with an
// empty timestamp if even that fails.
func parseLine(line string) Entry {
	if m := strictLine.FindStringSubmatch(line); m != nil {
		return Entry{Timestamp: strings.TrimSpace(m[1]), Level: strings.TrimSpace(m[2]), Message: strings.TrimSpace(m[3])}
	}

	if !dateLeadingPrefix.MatchString(line) {
		return Entry{Timestamp: "", Level: "INFO", Message: line}
	}

	spaceIdx := strings.Index(line[10:], " ")
	if spaceIdx < 0 {
		return Entry{Timestamp: "", Level: "INFO", Message: line}
	}
	spaceIdx += 10
	timestamp := line[:spaceIdx]
	rest := strings.TrimSpace(line[spaceIdx+1:])

	level := "INFO"
	message := rest
	if lm := levelWord.FindString(rest); lm != "" {
		level = lm
		message = strings.TrimSpace(strings.Replace(rest, lm, "", 1))
	}
	return Entry{Timestamp: timestamp, Level: level, Message: message}
}

// InCaptureSpan reports whether line opens, continues, or closes an
// httpaction multi-line capture span, used by callers that want to
// reassemble a single HTTP action's request/response log block rather
// than treat every physical line independently.
func InCaptureSpan(line string, capturing bool) (stillCapturing bool, isBoundary bool) {
	switch {
	case strings.Contains(line, httpaction.MarkerStart):
		return true, true
	case strings.Contains(line, httpaction.MarkerDone),
		strings.Contains(line, httpaction.MarkerError),
		strings.Contains(line, httpaction.MarkerTaskDone):
		return false, true
	default:
		return capturing, false
	}
}
