package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
)

type entry struct {
	ID              string  `json:"id"`
	SectionID       string  `json:"sectionId"`
	SubjectID       string  `json:"subjectId"`
	TeacherID       string  `json:"teacherId"`
	RoomID          string  `json:"roomId"`
	SlotID          string  `json:"slotId"`
	CombinedClassID *string `json:"combinedClassId,omitempty"`
	ElectiveBlockID *string `json:"electiveBlockId,omitempty"`
}

type conflict struct {
	Severity     string `json:"severity"`
	ConflictType string `json:"conflictType"`
	Message      string `json:"message"`
	SectionID    *string `json:"sectionId,omitempty"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		apiBase string
		runA    string
		runB    string
		timeout time.Duration
	)

	flag.StringVar(&apiBase, "api-base", "http://localhost:8080", "CORE API base URL")
	flag.StringVar(&runA, "run-a", "", "first run id (baseline)")
	flag.StringVar(&runB, "run-b", "", "second run id (candidate)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if runA == "" || runB == "" {
		log.Fatal("both -run-a and -run-b are required")
	}

	client := &http.Client{Timeout: timeout}

	entriesA, err := fetchEntries(client, apiBase, runA)
	if err != nil {
		log.Fatalf("fetch entries for run %s: %v", runA, err)
	}
	entriesB, err := fetchEntries(client, apiBase, runB)
	if err != nil {
		log.Fatalf("fetch entries for run %s: %v", runB, err)
	}
	conflictsA, err := fetchConflicts(client, apiBase, runA)
	if err != nil {
		log.Fatalf("fetch conflicts for run %s: %v", runA, err)
	}
	conflictsB, err := fetchConflicts(client, apiBase, runB)
	if err != nil {
		log.Fatalf("fetch conflicts for run %s: %v", runB, err)
	}

	entryDiff := diffEntries(entriesA, entriesB)
	conflictDiff := diffConflicts(conflictsA, conflictsB)

	printReport(runA, runB, entryDiff, conflictDiff)

	if len(entryDiff.removed) > 0 || len(entryDiff.changed) > 0 || conflictDiff.newErrors > 0 {
		os.Exit(1)
	}
}

func fetchEntries(client *http.Client, base, runID string) ([]entry, error) {
	var entries []entry
	if err := getJSON(client, base, fmt.Sprintf("/api/v1/timetable/runs/%s/entries", runID), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func fetchConflicts(client *http.Client, base, runID string) ([]conflict, error) {
	var conflicts []conflict
	if err := getJSON(client, base, fmt.Sprintf("/api/v1/timetable/runs/%s/conflicts", runID), &conflicts); err != nil {
		return nil, err
	}
	return conflicts, nil
}

func getJSON(client *http.Client, base, path string, out interface{}) error {
	url := strings.TrimRight(base, "/") + path
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, body)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Data, out)
}

// entryKey identifies the same logical placement across two runs: one
// section, one subject, one slot. The room/teacher/combined-class-id are
// compared as the payload, not the key, so a changed room shows up as a
// diff instead of an add+remove pair.
func entryKey(e entry) string {
	return e.SectionID + "|" + e.SubjectID + "|" + e.SlotID
}

type entryDiffResult struct {
	added   []entry
	removed []entry
	changed []entryChange
}

type entryChange struct {
	key    string
	before entry
	after  entry
}

func diffEntries(a, b []entry) entryDiffResult {
	byKeyA := map[string]entry{}
	for _, e := range a {
		byKeyA[entryKey(e)] = e
	}
	byKeyB := map[string]entry{}
	for _, e := range b {
		byKeyB[entryKey(e)] = e
	}

	var result entryDiffResult
	for key, eb := range byKeyB {
		ea, ok := byKeyA[key]
		if !ok {
			result.added = append(result.added, eb)
			continue
		}
		if ea.RoomID != eb.RoomID || ea.TeacherID != eb.TeacherID {
			result.changed = append(result.changed, entryChange{key: key, before: ea, after: eb})
		}
	}
	for key, ea := range byKeyA {
		if _, ok := byKeyB[key]; !ok {
			result.removed = append(result.removed, ea)
		}
	}

	sort.Slice(result.added, func(i, j int) bool { return entryKey(result.added[i]) < entryKey(result.added[j]) })
	sort.Slice(result.removed, func(i, j int) bool { return entryKey(result.removed[i]) < entryKey(result.removed[j]) })
	sort.Slice(result.changed, func(i, j int) bool { return result.changed[i].key < result.changed[j].key })
	return result
}

type conflictDiffResult struct {
	newConflicts      []conflict
	resolvedConflicts []conflict
	newErrors         int
}

func conflictKey(c conflict) string {
	section := ""
	if c.SectionID != nil {
		section = *c.SectionID
	}
	return c.ConflictType + "|" + section
}

func diffConflicts(a, b []conflict) conflictDiffResult {
	seenA := map[string]bool{}
	for _, c := range a {
		seenA[conflictKey(c)] = true
	}
	seenB := map[string]bool{}
	for _, c := range b {
		seenB[conflictKey(c)] = true
	}

	var result conflictDiffResult
	for _, c := range b {
		if !seenA[conflictKey(c)] {
			result.newConflicts = append(result.newConflicts, c)
			if c.Severity == "ERROR" {
				result.newErrors++
			}
		}
	}
	for _, c := range a {
		if !seenB[conflictKey(c)] {
			result.resolvedConflicts = append(result.resolvedConflicts, c)
		}
	}
	return result
}

func printReport(runA, runB string, entries entryDiffResult, conflicts conflictDiffResult) {
	fmt.Printf("Run Diff Report: %s -> %s\n", runA, runB)
	fmt.Println("================================")
	fmt.Printf("Entries added:   %d\n", len(entries.added))
	fmt.Printf("Entries removed: %d\n", len(entries.removed))
	fmt.Printf("Entries changed: %d\n", len(entries.changed))
	for _, c := range entries.changed {
		fmt.Printf("  [CHANGED] %s room %s->%s teacher %s->%s\n", c.key, c.before.RoomID, c.after.RoomID, c.before.TeacherID, c.after.TeacherID)
	}
	for _, e := range entries.removed {
		fmt.Printf("  [REMOVED] %s\n", entryKey(e))
	}
	for _, e := range entries.added {
		fmt.Printf("  [ADDED]   %s\n", entryKey(e))
	}

	fmt.Printf("\nConflicts introduced: %d (new errors: %d)\n", len(conflicts.newConflicts), conflicts.newErrors)
	for _, c := range conflicts.newConflicts {
		fmt.Printf("  [NEW] %s %s: %s\n", c.Severity, c.ConflictType, c.Message)
	}
	fmt.Printf("Conflicts resolved: %d\n", len(conflicts.resolvedConflicts))
	for _, c := range conflicts.resolvedConflicts {
		fmt.Printf("  [RESOLVED] %s %s: %s\n", c.Severity, c.ConflictType, c.Message)
	}
}
