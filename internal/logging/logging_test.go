package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	return m
}

func TestHandle_RedactsSensitiveKeys(t *testing.T) {
	keys := []string{"password", "ssh_password", "Passwd", "api_token", "client_secret", "credential", "key_passphrase"}
	for _, key := range keys {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "debug", "json", true)
		logger.Info("connect", slog.String(key, "hunter2"))

		m := decode(t, &buf)
		if m[key] != redacted {
			t.Errorf("%s = %v, want %q", key, m[key], redacted)
		}
	}
}

func TestHandle_NonSensitivePassesThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json", true)
	logger.Info("connect", slog.String("host", "10.0.0.5"), slog.Int("port", 22), slog.String("host_key", "SHA256:abc"))

	m := decode(t, &buf)
	if m["host"] != "10.0.0.5" {
		t.Errorf("host = %v", m["host"])
	}
	if m["port"] != float64(22) {
		t.Errorf("port = %v", m["port"])
	}
	if m["host_key"] != "SHA256:abc" {
		t.Errorf("host_key = %v, fingerprints are not secrets", m["host_key"])
	}
}

func TestHandle_SanitizeFalseKeepsEverything(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json", false)
	logger.Info("connect", slog.String("password", "hunter2"))

	m := decode(t, &buf)
	if m["password"] != "hunter2" {
		t.Errorf("password = %v, want passthrough", m["password"])
	}
}

func TestHandle_NestedGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json", true)
	logger.Info("connect", slog.Group("creds", slog.String("user", "root"), slog.String("password", "x")))

	m := decode(t, &buf)
	creds, ok := m["creds"].(map[string]any)
	if !ok {
		t.Fatalf("creds group missing: %v", m)
	}
	if creds["user"] != "root" {
		t.Errorf("user = %v", creds["user"])
	}
	if creds["password"] != redacted {
		t.Errorf("password = %v, want redacted", creds["password"])
	}
}

func TestWithAttrs_Redacts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json", true).With(slog.String("token", "abc"))
	logger.Info("hello")

	m := decode(t, &buf)
	if m["token"] != redacted {
		t.Errorf("token = %v, want redacted", m["token"])
	}
}

func TestWithGroup_Redacts(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json", true).WithGroup("ssh")
	logger.Info("hello", slog.String("password", "x"))

	if strings.Contains(buf.String(), `"x"`) {
		t.Errorf("password leaked: %s", buf.String())
	}
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "text", true)
	logger.Info("uploaded", slog.String("path", "/data/a.csv"))

	out := buf.String()
	if !strings.Contains(out, "msg=uploaded") || !strings.Contains(out, "path=/data/a.csv") {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetup_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)

	Setup("warn", "json", true, &buf)
	slog.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %s", buf.String())
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be enabled")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello..."},
		{"评估指标输出", 2, "评估..."},
		{"abc", 0, "..."},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
