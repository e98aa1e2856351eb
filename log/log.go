// Package log is a minimal, local-first structured logger: leveled JSON
// lines, no external dependency. Grounded on the teacher's
// internal/telemetry.Logger, which is itself stdlib-only — the teacher
// never reaches for zerolog/zap anywhere in the pack, so this ambient
// concern follows the teacher's own choice rather than falling back to the
// standard library by default.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/reachcore/journal/journalerr"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{LevelDebug: 0, LevelInfo: 1, LevelWarn: 2, LevelError: 3}

type entry struct {
	Timestamp time.Time         `json:"ts"`
	Level     Level             `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Logger writes structured JSON log lines to an io.Writer.
type Logger struct {
	mu        sync.Mutex
	writer    io.Writer
	level     Level
	component string
	fields    map[string]string
}

func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{writer: w, level: level}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{writer: l.writer, level: l.level, component: component, fields: l.fields}
}

func (l *Logger) WithField(key, value string) *Logger {
	nf := make(map[string]string, len(l.fields)+1)
	for k, v := range l.fields {
		nf[k] = v
	}
	nf[key] = value
	return &Logger{writer: l.writer, level: l.level, component: l.component, fields: nf}
}

func (l *Logger) log(level Level, msg string, err error) {
	if levelRank[level] < levelRank[l.level] {
		return
	}
	e := entry{Timestamp: time.Now().UTC(), Level: level, Message: msg, Component: l.component, Fields: l.fields}
	if err != nil {
		e.Error = err.Error()
		var je *journalerr.Error
		if as, ok := err.(*journalerr.Error); ok {
			je = as
			e.ErrorCode = string(je.Code)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	data, _ := json.Marshal(e)
	fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) Debug(msg string)         { l.log(LevelDebug, msg, nil) }
func (l *Logger) Info(msg string)          { l.log(LevelInfo, msg, nil) }
func (l *Logger) Warn(msg string)          { l.log(LevelWarn, msg, nil) }
func (l *Logger) Error(msg string, err error) { l.log(LevelError, msg, err) }
