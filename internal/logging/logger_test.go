package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerCachesPerComponent(t *testing.T) {
	a := NewLogger("reaper")
	b := NewLogger("reaper")
	if a != b {
		t.Error("NewLogger returned different entries for the same component")
	}
	if a.Data["component"] != "reaper" {
		t.Errorf("component field = %v, want reaper", a.Data["component"])
	}
}

func TestConfigureJSON(t *testing.T) {
	t.Setenv("TIMEVIEWER_LOG_LEVEL", "")
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Format: "json"}, &buf)
	defer Configure(Config{}, os.Stderr)

	NewLogger("ingest").WithField("app", "editor").Debug("segment opened")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if line["component"] != "ingest" || line["app"] != "editor" || line["msg"] != "segment opened" {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestConfigureEnvOverridesLevel(t *testing.T) {
	t.Setenv("TIMEVIEWER_LOG_LEVEL", "error")
	var buf bytes.Buffer
	Configure(Config{Level: "debug"}, &buf)
	defer Configure(Config{}, os.Stderr)

	if base.GetLevel() != logrus.ErrorLevel {
		t.Errorf("level = %v, want error", base.GetLevel())
	}
	NewLogger("viewer").Info("should be filtered")
	if strings.Contains(buf.String(), "filtered") {
		t.Error("info line written although level is error")
	}
}
