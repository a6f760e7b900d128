package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dundas/truex-mm/internal/model"
)

// RecoveredSession is the result of scanning a day file for one session's
// events, per spec.md §4.7.
type RecoveredSession struct {
	FixMessages []Entry
	Orders      []Entry
	Fills       []Entry
	Errors      []Entry
}

// RecoverSession scans dir for the file matching date (format "2006-01-02"),
// falling back to the latest existing audit file if date is empty or
// missing, and returns every entry for sessionID partitioned by kind.
func RecoverSession(dir, sessionID, date string) (*RecoveredSession, error) {
	path, err := resolveAuditFile(dir, date)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, model.Wrap(model.StorageError, "open audit file for recovery", err)
	}
	defer f.Close()

	result := &RecoveredSession{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // malformed line: skip, never fabricate state
		}
		if entry.SessionID != sessionID {
			continue
		}
		switch entry.Type {
		case EntryFixMessage:
			result.FixMessages = append(result.FixMessages, entry)
		case EntryOrderEvent:
			result.Orders = append(result.Orders, entry)
		case EntryFillEvent:
			result.Fills = append(result.Fills, entry)
		case EntryError:
			result.Errors = append(result.Errors, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, model.Wrap(model.StorageError, "scan audit file", err)
	}
	return result, nil
}

func resolveAuditFile(dir, date string) (string, error) {
	if date != "" {
		candidate := filepath.Join(dir, "truex-audit-"+date+".jsonl")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", model.Wrap(model.StorageError, "read audit dir", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "truex-audit-") && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", model.New(model.StorageError, "no audit files found")
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
