// Package logger provides structured JSON logging for send and sync outcome
// events, with email-address redaction so recipient PII stays out of log
// aggregation.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var emailRe = regexp.MustCompile(`([A-Za-z0-9._%+-])[A-Za-z0-9._%+-]*@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

// Logger writes one JSON object per entry to stderr.
type Logger struct {
	mu        sync.Mutex
	level     Level
	redactPII bool
}

var defaultLogger = &Logger{level: INFO, redactPII: true}

// SetLevel sets the minimum level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedactPII toggles email redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.redactPII = r }

// Debug emits a DEBUG entry with alternating key/value fields.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": levelNames[level],
		"msg":   msg,
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("field%d", i)
		}
		entry[key] = l.redact(fields[i+1])
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	os.Stderr.Write(append(line, '\n'))
}

// redact masks the local part of any email address in string values,
// keeping the first character and the domain for correlation.
func (l *Logger) redact(v interface{}) interface{} {
	if !l.redactPII {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	return emailRe.ReplaceAllString(s, "$1***@$2")
}

// RedactEmail masks a single address the same way log fields are masked.
func RedactEmail(email string) string {
	return emailRe.ReplaceAllString(email, "$1***@$2")
}
