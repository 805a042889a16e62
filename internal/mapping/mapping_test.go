package mapping

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadResolve(t *testing.T) {
	s, err := Load(writeFile(t, `{"SKU-1": "prod-1", "SKU-2": "prod-2"}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Fatalf("len=%d", s.Len())
	}
	id, ok := s.Resolve("SKU-1")
	if !ok || id != "prod-1" {
		t.Fatalf("got %q ok=%v", id, ok)
	}
	if _, ok := s.Resolve("SKU-3"); ok {
		t.Fatal("unexpected hit for unmapped sku")
	}
}

func TestLoadEmptyMappingAllowed(t *testing.T) {
	s, err := Load(writeFile(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatalf("len=%d", s.Len())
	}
	// JSON null decodes to a nil map; still a valid empty store
	s, err = Load(writeFile(t, `null`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Resolve("anything"); ok {
		t.Fatal("unexpected hit in null mapping")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedFails(t *testing.T) {
	for _, bad := range []string{`[1,2]`, `{"a": 1}`, `not json`} {
		if _, err := Load(writeFile(t, bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestFromMapCopies(t *testing.T) {
	src := map[string]string{"SKU-1": "prod-1"}
	s := FromMap(src)
	src["SKU-1"] = "mutated"
	id, _ := s.Resolve("SKU-1")
	if id != "prod-1" {
		t.Fatalf("store shares caller map: %q", id)
	}
}
