package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"timbercraft.ai/internal/sim/world/audit"
)

const hourLayout = "2006-01-02-15"

// HourWriter appends JSON lines to <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst, choosing the file by
// the UTC hour of each record's own timestamp. Reopening an hour appends a new zstd frame.
type HourWriter struct {
	dir    string
	prefix string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewHourWriter(dir, prefix string) *HourWriter {
	return &HourWriter{dir: dir, prefix: prefix}
}

func (w *HourWriter) WriteAt(at time.Time, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	hour := at.UTC().Format(hourLayout)
	if hour != w.curHour || w.w == nil {
		if err := w.openLocked(hour); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *HourWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *HourWriter) path(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

func (w *HourWriter) openLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc = f, enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *HourWriter) closeLocked() error {
	var err error
	if w.w != nil {
		err = w.w.Flush()
		w.w = nil
	}
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil {
			err = cerr
		}
		w.enc = nil
	}
	if w.f != nil {
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
		w.f = nil
	}
	w.curHour = ""
	return err
}

// AuditLogger writes block audits to <world>/audit, one compressed JSONL file per hour.
type AuditLogger struct{ w *HourWriter }

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{w: NewHourWriter(auditDir(worldDir), "audit")}
}

func (l *AuditLogger) WriteAudit(e audit.Entry) error {
	return l.w.WriteAt(time.UnixMilli(e.AtMs), e)
}

func (l *AuditLogger) Close() error { return l.w.Close() }

func auditDir(worldDir string) string { return filepath.Join(worldDir, "audit") }

// AuditFiles lists a world's audit files oldest hour first.
func AuditFiles(worldDir string) ([]string, error) {
	dir := auditDir(worldDir)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadAuditFile calls fn for each entry in write order and stops at the first error.
func ReadAuditFile(path string, fn func(audit.Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e audit.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
