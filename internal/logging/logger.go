package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config controls level, format and destination of log output.
type Config struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	// TIMEVIEWER_LOG_LEVEL overrides it.
	Level string `yaml:"level"`
	// Format is "text" (default) or "json".
	Format string `yaml:"format"`
	// ReportCaller includes file and line of the call site.
	ReportCaller bool `yaml:"report_caller"`
}

var (
	base      = logrus.New()
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// Configure applies cfg to every logger, including ones already handed out.
func Configure(cfg Config, out io.Writer) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	levelStr := "info"
	if env := os.Getenv("TIMEVIEWER_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if cfg.Level != "" {
		levelStr = cfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		base.Warnf("Unknown log level %q, using info", levelStr)
		level = logrus.InfoLevel
	}
	base.SetLevel(level)
	base.SetReportCaller(cfg.ReportCaller)

	switch strings.ToLower(cfg.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if out != nil {
		base.SetOutput(out)
	}
}

// NewLogger returns the logger for a component, tagged with a "component"
// field. Loggers are cached per component.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}
	entry := base.WithField("component", component)
	loggers[component] = entry
	return entry
}
