// Package failures keeps a persistent record of documents whose pipeline
// stage failed, so that a batch can be resumed with just those inputs.
package failures

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"texguard/internal/types"
)

// FileName is the ledger file inside the work directory.
const FileName = "texguard-failures.json"

// Record 失败记录
type Record struct {
	Input      string          `json:"input"`
	Stage      types.Stage     `json:"stage"`
	Code       types.ErrorCode `json:"code,omitempty"`
	ErrorMsg   string          `json:"error_msg"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retry_count"` // failures recorded before this one
}

// Ledger 失败记录管理器
type Ledger struct {
	path    string
	mu      sync.RWMutex
	records map[string]*Record // key: input path
}

// Open loads the ledger in dir, creating nothing until the first write.
// An empty dir means the current directory.
func Open(dir string) (*Ledger, error) {
	if dir == "" {
		dir = "."
	}
	l := &Ledger{
		path:    filepath.Join(dir, FileName),
		records: make(map[string]*Record),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Record stores the failure of input at stage. A repeated failure keeps
// counting retries.
func (l *Ledger) Record(input string, stage types.Stage, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := &Record{
		Input:     input,
		Stage:     stage,
		ErrorMsg:  err.Error(),
		Timestamp: time.Now(),
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		record.Code = appErr.Code
	}
	if existing, ok := l.records[input]; ok {
		record.RetryCount = existing.RetryCount + 1
	}
	l.records[input] = record

	return l.save()
}

// Resolve removes input after a successful run. Unknown inputs are ignored.
func (l *Ledger) Resolve(input string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[input]; !ok {
		return nil
	}
	delete(l.records, input)
	return l.save()
}

// Get returns a copy of the record of input.
func (l *Ledger) Get(input string) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[input]
	if !ok {
		return nil, false
	}
	recordCopy := *record
	return &recordCopy, true
}

// List returns copies of all records ordered by input.
func (l *Ledger) List() []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := make([]*Record, 0, len(l.records))
	for _, record := range l.records {
		recordCopy := *record
		records = append(records, &recordCopy)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Input < records[j].Input })
	return records
}

// Clear removes every record.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = make(map[string]*Record)
	return l.save()
}

// ExportInputs writes one failed input per line, for use as a file list.
func (l *Ledger) ExportInputs(outputPath string) error {
	var sb strings.Builder
	for _, record := range l.List() {
		sb.WriteString(record.Input)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to export failed inputs", outputPath, err)
	}
	return nil
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to read failure ledger", l.path, err)
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "invalid failure ledger", l.path, err)
	}
	for _, record := range records {
		l.records[record.Input] = record
	}
	return nil
}

// save writes the ledger; an empty ledger removes the file.
func (l *Ledger) save() error {
	if len(l.records) == 0 {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return types.NewAppErrorWithDetails(types.ErrInternal, "failed to remove failure ledger", l.path, err)
		}
		return nil
	}

	records := make([]*Record, 0, len(l.records))
	for _, record := range l.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Input < records[j].Input })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal failure ledger", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to create ledger directory", l.path, err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to write failure ledger", l.path, err)
	}
	return nil
}
