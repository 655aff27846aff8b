package zlog

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"none", None, false},
		{"", None, false},
		{"warning", Warning, false},
		{"warn", Warning, false},
		{"error", Error, false},
		{"info", Info, false},
		{"debug", Debug, false},
		{"verbose", None, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Each level includes everything below it: Warning < Error < Info < Debug.
func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLevel(GetLevel())

	SetLevel(Error)
	Warningf("w")
	Errorf("e")
	Infof("i")
	Debugf("d")

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("msg=w")) {
		t.Error("warning suppressed at error level")
	}
	if !bytes.Contains([]byte(out), []byte("msg=e")) {
		t.Error("error suppressed at error level")
	}
	if bytes.Contains([]byte(out), []byte("msg=i")) || bytes.Contains([]byte(out), []byte("msg=d")) {
		t.Error("info or debug leaked at error level")
	}

	buf.Reset()
	SetLevel(None)
	Warningf("w")
	Errorf("e")
	if buf.Len() != 0 {
		t.Errorf("none level produced output: %q", buf.String())
	}
}
