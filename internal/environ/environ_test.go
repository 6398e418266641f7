package environ

import (
	"slices"
	"testing"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultsLiveUnderVolume(t *testing.T) {
	env := Defaults("/app/persist")

	want := map[Category]string{
		Patches:  "/app/persist/patches",
		Schemas:  "/app/persist/exdschema",
		Versions: "/app/persist/versions",
		Search:   "/app/persist/search",
	}
	for cat, dir := range want {
		if env.Dirs[cat] != dir {
			t.Errorf("%s = %q, want %q", cat, env.Dirs[cat], dir)
		}
	}
	if len(env.Outside()) != 0 {
		t.Fatalf("outside = %v, want none", env.Outside())
	}
}

func TestResolveOverridePrecedence(t *testing.T) {
	env := Resolve("/app/persist", lookupFrom(map[string]string{
		"BM_SEARCH_SQLITE_DIRECTORY": "/mnt/fast/search",
		"BM_VERSION_DIRECTORY":       "",
	}))

	if env.Dirs[Search] != "/mnt/fast/search" {
		t.Errorf("search = %q, want override", env.Dirs[Search])
	}
	if env.Dirs[Versions] != "" {
		t.Errorf("versions = %q, want empty override taken verbatim", env.Dirs[Versions])
	}
	if env.Dirs[Patches] != "/app/persist/patches" {
		t.Errorf("patches = %q, want default", env.Dirs[Patches])
	}

	outside := env.Outside()
	if !slices.Contains(outside, Search) {
		t.Errorf("outside = %v, want search listed", outside)
	}
}

func TestEnvironOrder(t *testing.T) {
	got := Defaults("/data").Environ()
	want := []string{
		"BM_VERSION_PATCH_DIRECTORY=/data/patches",
		"BM_SCHEMA_EXDSCHEMA_DIRECTORY=/data/exdschema",
		"BM_VERSION_DIRECTORY=/data/versions",
		"BM_SEARCH_SQLITE_DIRECTORY=/data/search",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("environ = %v, want %v", got, want)
	}
}

func TestEnvironNeverCarriesCredentials(t *testing.T) {
	for _, entry := range Defaults("/app/persist").Environ() {
		for _, cred := range Credentials {
			if len(entry) >= len(cred) && entry[:len(cred)] == cred {
				t.Fatalf("credential %s baked into environment", cred)
			}
		}
	}
}

func TestMissingCredentials(t *testing.T) {
	missing := MissingCredentials(lookupFrom(map[string]string{
		"BM_HTTP_ADMIN_AUTH_USERNAME": "admin",
		"BM_HTTP_ADMIN_AUTH_PASSWORD": "",
	}))
	if !slices.Equal(missing, []string{"BM_HTTP_ADMIN_AUTH_PASSWORD"}) {
		t.Fatalf("missing = %v", missing)
	}
}

func TestIsUnder(t *testing.T) {
	tests := []struct {
		dir, root string
		want      bool
	}{
		{"/app/persist/x", "/app/persist", true},
		{"/app/persistent", "/app/persist", false},
		{"/app/persist", "/app/persist", false},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		if got := isUnder(tt.dir, tt.root); got != tt.want {
			t.Errorf("isUnder(%q, %q) = %v, want %v", tt.dir, tt.root, got, tt.want)
		}
	}
}
