package utils

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// timestampFormat is ISO 8601.
const timestampFormat = "2006-01-02T15:04:05Z07:00"

func init() {
	log.SetOutput(os.Stdout)
	Configure("info", true)
}

// Configure sets the global level and output format. Production logs are
// JSON lines; development logs are human-readable text. An unknown level
// keeps the current one.
func Configure(level string, jsonOutput bool) {
	if jsonOutput {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		log.SetFormatter(&log.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true})
	}

	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		Warn("logger: unknown log level, keeping current", map[string]any{"component": "logger", "level": level})
		return
	}
	log.SetLevel(lvl)
}

// Debug logs a message at debug level with optional fields
func Debug(message string, fields map[string]any) {
	log.WithFields(fields).Debug(message)
}

// Info logs a message at info level with optional fields
func Info(message string, fields map[string]any) {
	log.WithFields(fields).Info(message)
}

// Warn logs a message at warning level with optional fields
func Warn(message string, fields map[string]any) {
	log.WithFields(fields).Warn(message)
}

// Error logs a message at error level with optional fields
func Error(message string, fields map[string]any) {
	log.WithFields(fields).Error(message)
}

// Fatal logs a message at fatal level and exits the application
func Fatal(message string, fields map[string]any) {
	log.WithFields(fields).Fatal(message)
}
