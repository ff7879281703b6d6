package logstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	errArchiveClosed = errors.New("archive is closed")
	errArchiveFull   = errors.New("archive buffer full")
)

// Archive handles async writing of records as JSON lines to date-organized files.
// It is a diagnostic copy; nothing reads it back.
type Archive struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan any
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
	now         func() time.Time
}

// NewArchive starts an archive under baseDir/<date>/records.jsonl.
func NewArchive(baseDir string, bufferSize, maxSizeMB int) *Archive {
	if bufferSize < 1 {
		bufferSize = 1024
	}
	a := &Archive{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	a.wg.Add(1)
	go a.writeLoop()

	return a
}

// Write queues a record for async writing. It never blocks.
func (a *Archive) Write(record any) error {
	select {
	case <-a.done:
		return errArchiveClosed
	default:
	}
	select {
	case a.writeCh <- record:
		return nil
	default:
		slog.Warn("Archive buffer full, dropping record")
		return errArchiveFull
	}
}

// Close shuts down the writer and flushes pending data.
func (a *Archive) Close() error {
	a.closeOnce.Do(func() { close(a.done) })
	a.wg.Wait()

	// Drain remaining items with timeout
	timeout := time.After(5 * time.Second)
drain:
	for {
		select {
		case record := <-a.writeCh:
			a.writeRecord(record)
		case <-timeout:
			slog.Warn("Archive close timeout, some records may be lost")
			break drain
		default:
			break drain
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.logger != nil {
		return a.logger.Close()
	}
	return nil
}

func (a *Archive) writeLoop() {
	defer a.wg.Done()

	for {
		select {
		case record := <-a.writeCh:
			a.writeRecord(record)
		case <-a.done:
			return
		}
	}
}

func (a *Archive) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal record", "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	currentDate := a.now().UTC().Format("2006-01-02")
	if currentDate != a.currentDate || a.logger == nil {
		if err := a.rotateForDate(currentDate); err != nil {
			slog.Error("Failed to open archive file", "error", err)
			return
		}
	}

	if _, err := a.logger.Write(append(data, '\n')); err != nil {
		slog.Error("Failed to write record", "error", err)
	}
}

func (a *Archive) rotateForDate(date string) error {
	if a.logger != nil {
		a.logger.Close()
		a.logger = nil
	}

	dir := filepath.Join(a.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir %s: %w", dir, err)
	}

	filename := filepath.Join(dir, "records.jsonl")
	a.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    a.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	a.currentDate = date
	slog.Info("Opened new archive file", "file", filename)
	return nil
}
