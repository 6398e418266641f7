package pipeline

import (
	"testing"
)

func TestParseCopy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		workdir string
		src     string
		dest    string
		wantErr bool
	}{
		{
			name:  "absolute dest",
			input: "file.txt /opt/file.txt",
			src:   "file.txt",
			dest:  "/opt/file.txt",
		},
		{
			name:    "relative dest with workdir",
			input:   "file.txt out/",
			workdir: "/app",
			src:     "file.txt",
			dest:    "/app/out",
		},
		{
			name:    "relative dest without workdir",
			input:   "file.txt out/",
			wantErr: true,
		},
		{
			name:    "missing destination",
			input:   "file.txt",
			wantErr: true,
		},
		{
			name:    "too many tokens",
			input:   "a b c",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dest, err := ParseCopy(tt.input, tt.workdir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src != tt.src {
				t.Errorf("src = %q, want %q", src, tt.src)
			}
			if dest != tt.dest {
				t.Errorf("dest = %q, want %q", dest, tt.dest)
			}
		})
	}
}

func TestParseStageSource(t *testing.T) {
	tests := []struct {
		name  string
		input string
		stage string
		path  string
		ok    bool
	}{
		{name: "valid stage copy", input: "compile:/app/bin", stage: "compile", path: "/app/bin", ok: true},
		{name: "no colon", input: "/usr/local/bin"},
		{name: "colon at start", input: ":/some/path"},
		{name: "colon after slash", input: "/foo:bar"},
		{name: "slash in prefix", input: "some/stage:path"},
		{name: "simple host path", input: "file.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, path, ok := ParseStageSource(tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			if stage != tt.stage || path != tt.path {
				t.Errorf("got %q, %q, want %q, %q", stage, path, tt.stage, tt.path)
			}
		})
	}
}

func TestKeyIgnoresCommitAndContext(t *testing.T) {
	a := Stage{Name: "deps", From: "img", Steps: []Step{{Run: "make"}}}
	b := a
	b.Commit = "kiln/deps:abc"
	b.Context = "/tmp/elsewhere"

	if a.Key() != b.Key() {
		t.Fatal("commit tag or context changed the key")
	}

	c := a
	c.Steps = []Step{{Run: "make all"}}
	if a.Key() == c.Key() {
		t.Fatal("different steps produced the same key")
	}
}

func TestKeyExtras(t *testing.T) {
	s := Stage{Name: "deps", From: "img"}

	if s.Key("a", "bc") == s.Key("ab", "c") {
		t.Fatal("extras are not delimited")
	}
	if s.Key("x") == s.Key() {
		t.Fatal("extra did not change the key")
	}
	if s.Key("x") != s.Key("x") {
		t.Fatal("key is not deterministic")
	}
}

func TestFlatten(t *testing.T) {
	steps := []Step{
		{Run: "a"},
		{Workdir: "/w", Steps: []Step{
			{Run: "b"},
			{Steps: []Step{{Run: "c"}}},
		}},
	}

	got := Flatten(steps)
	want := []Step{{Run: "a"}, {Workdir: "/w"}, {Run: "b"}, {Run: "c"}}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Run != want[i].Run || got[i].Workdir != want[i].Workdir || len(got[i].Steps) != 0 {
			t.Errorf("step %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
