// Package ledger records which tickets have been remediated on which day.
//
// The ledger file is append-only, one "day<TAB>key" entry per line. An entry
// is fsynced before MarkProcessed returns, so a crash can at worst repeat a
// remediation, never lose one. The ledger assumes a single writer; callers
// enforce that with the state directory lock.
package ledger

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DayLayout is the format of a day bucket.
const DayLayout = "2006-01-02"

// Ledger is the durable set of (day, ticket key) pairs.
type Ledger struct {
	mu      sync.Mutex
	path    string
	now     func() time.Time
	loc     *time.Location
	days    map[string]map[string]struct{}
	loaded  bool
	skipped int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for day buckets.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the time zone day buckets are computed in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// Open creates a ledger backed by path and loads existing entries.
func Open(path string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path: path,
		now:  time.Now,
		loc:  time.Local,
		days: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Load reads the ledger file. Calling it again is a no-op.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return nil
	}

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		l.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		day, key, ok := strings.Cut(line, "\t")
		if !ok || key == "" {
			l.skipped++
			slog.Warn("skipping malformed ledger line", "path", l.path, "line", lineNo)
			continue
		}
		if _, err := time.Parse(DayLayout, day); err != nil {
			l.skipped++
			slog.Warn("skipping ledger line with bad day", "path", l.path, "line", lineNo, "day", day)
			continue
		}
		l.add(day, key)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	l.loaded = true
	return nil
}

// Today returns the current day bucket.
func (l *Ledger) Today() string {
	return DayBucket(l.now(), l.loc)
}

// IsProcessed reports whether key was marked in the current day bucket.
func (l *Ledger) IsProcessed(key string) bool {
	day := l.Today()
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.days[day][key]
	return ok
}

// MarkProcessed durably records key for the current day bucket. The entry
// is visible to IsProcessed only after it has reached disk.
func (l *Ledger) MarkProcessed(key string) error {
	if key == "" || strings.ContainsAny(key, "\t\n") {
		return fmt.Errorf("invalid ticket key %q", key)
	}
	day := l.Today()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.days[day][key]; ok {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s\t%s\n", day, key); err != nil {
		f.Close()
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	l.add(day, key)
	return nil
}

// ProcessedToday returns the keys marked in the current day bucket, sorted.
func (l *Ledger) ProcessedToday() []string {
	day := l.Today()
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.days[day]))
	for k := range l.days[day] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Skipped returns how many malformed lines Load ignored.
func (l *Ledger) Skipped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skipped
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

func (l *Ledger) add(day, key string) {
	set, ok := l.days[day]
	if !ok {
		set = make(map[string]struct{})
		l.days[day] = set
	}
	set[key] = struct{}{}
}

// DayBucket formats t as a day bucket in loc.
func DayBucket(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DayLayout)
}
