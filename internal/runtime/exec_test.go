package runtime

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestNextExecID(t *testing.T) {
	a, b := nextExecID(), nextExecID()
	if a == b {
		t.Fatalf("nextExecID returned %q twice", a)
	}
	if !strings.HasPrefix(a, "exec-") {
		t.Fatalf("nextExecID() = %q, want exec- prefix", a)
	}
}

func TestTailBuffer(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		want   string
	}{
		{"under limit", []string{"abc", "de"}, "abcde"},
		{"exact limit", []string{"abcdefgh"}, "abcdefgh"},
		{"single large write", []string{"0123456789"}, "23456789"},
		{"spills across writes", []string{"abcdef", "ghij"}, "cdefghij"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &tailBuffer{max: 8}
			for _, w := range tt.writes {
				n, err := b.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			if got := b.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineLogger(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := &lineLogger{logger: logger, stream: "stderr"}

	io.WriteString(l, "   Compiling boil")
	io.WriteString(l, "master v0.1.0\r\n\n")
	io.WriteString(l, "    Finished release")
	if got := strings.Count(out.String(), "\n"); got != 1 {
		t.Fatalf("logged %d records before flush, want 1:\n%s", got, out.String())
	}
	l.flush()

	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		var rec struct {
			Msg    string `json:"msg"`
			Stream string `json:"stream"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatal(err)
		}
		if rec.Stream != "stderr" {
			t.Errorf("stream = %q, want stderr", rec.Stream)
		}
		msgs = append(msgs, rec.Msg)
	}

	want := []string{"   Compiling boilmaster v0.1.0", "    Finished release"}
	if strings.Join(msgs, "|") != strings.Join(want, "|") {
		t.Fatalf("messages = %q, want %q", msgs, want)
	}
}

func TestDoneReader(t *testing.T) {
	d := newDoneReader(strings.NewReader("tar"))

	select {
	case <-d.done:
		t.Fatal("done closed before EOF")
	default:
	}

	if _, err := io.ReadAll(d); err != nil {
		t.Fatal(err)
	}
	// A second EOF must not close the channel again.
	if _, err := d.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("Read after EOF = %v, want io.EOF", err)
	}

	select {
	case <-d.done:
	default:
		t.Fatal("done not closed after EOF")
	}
}
