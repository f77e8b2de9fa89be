// Package logging configures the shared logrus instance used across tmcli.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jkorri/tmcli/internal/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce sync.Once
	logWriter *lumberjack.Logger
)

// Formatter renders a single log entry.
// Format: [2026-03-01 20:14:04] [warn ] dropped undecodable helper line
type Formatter struct{}

// fieldOrder defines the display order for common log fields.
var fieldOrder = []string{"action", "exercise", "signature", "status", "result", "error"}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	var fields []string
	for _, k := range fieldOrder {
		if v, ok := entry.Data[k]; ok {
			fields = append(fields, fmt.Sprintf("%s=%v", k, v))
		}
	}
	fieldsStr := ""
	if len(fields) > 0 {
		fieldsStr = " " + strings.Join(fields, " ")
	}

	fmt.Fprintf(buffer, "[%s] [%-5s] %s%s\n", timestamp, level, message, fieldsStr)
	return buffer.Bytes(), nil
}

// Setup configures the shared logrus instance from config. Safe to call
// multiple times; initialization happens only once.
func Setup(cfg config.LogConfig) {
	setupOnce.Do(func() {
		log.SetFormatter(&Formatter{})

		level, err := log.ParseLevel(cfg.Level)
		if err != nil || cfg.Level == "" {
			level = log.InfoLevel
		}
		log.SetLevel(level)

		out := io.Writer(os.Stderr)
		if cfg.File != "" {
			logWriter = &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
			}
			out = io.MultiWriter(os.Stderr, logWriter)
		}
		log.SetOutput(out)
	})
}

// Close flushes and closes the rotating file writer, if any.
func Close() {
	if logWriter != nil {
		_ = logWriter.Close()
	}
}
