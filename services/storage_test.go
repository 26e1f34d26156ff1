package services

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docvaulthq/docvault/tenant"
)

func TestSecureFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // suffix after the random prefix
	}{
		{"plain name", "report.pdf", "report.pdf"},
		{"path stripped", "/etc/passwd", "passwd"},
		{"traversal stripped", "../../secret.txt", "secret.txt"},
		{"spaces replaced", "my report.pdf", "my_report.pdf"},
		{"shell chars replaced", "a;b&c.txt", "a_b_c.txt"},
		{"empty name", "", "upload"},
		{"dot only", ".", "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SecureFileName(tt.input)
			parts := strings.SplitN(got, "_", 2)
			if len(parts) != 2 {
				t.Fatalf("missing random prefix: %q", got)
			}
			if parts[1] != tt.want {
				t.Fatalf("got suffix %q, want %q", parts[1], tt.want)
			}
			if strings.ContainsAny(got, "/\\") || strings.Contains(got, "..") {
				t.Fatalf("unsafe characters survived: %q", got)
			}
		})
	}
}

func TestSecureFileName_Unique(t *testing.T) {
	a := SecureFileName("report.pdf")
	b := SecureFileName("report.pdf")
	if a == b {
		t.Fatal("two uploads of the same name must not collide")
	}
}

func TestStorageSaveAndOpen(t *testing.T) {
	svc := NewStorageService(t.TempDir())

	path, size, err := svc.Save("org-1", "report.pdf", strings.NewReader("hello docvault"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != int64(len("hello docvault")) {
		t.Fatalf("unexpected size: %d", size)
	}
	if !strings.HasPrefix(path, "org-1"+string([]rune{'/'})) && !strings.HasPrefix(path, "org-1\\") {
		t.Fatalf("stored path must live under the org directory: %q", path)
	}

	f, err := svc.Open("org-1", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "hello docvault" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestStorageOpen_CrossOrganizationDenied(t *testing.T) {
	svc := NewStorageService(t.TempDir())

	path, _, err := svc.Save("org-1", "secret.pdf", strings.NewReader("org-1 data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A caller scoped to org-2 cannot open org-1's stored path.
	_, err = svc.Open("org-2", path)
	if !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("cross-org open must be not-found, got %v", err)
	}
}

func TestStorageRejectsUnscopedOrg(t *testing.T) {
	svc := NewStorageService(t.TempDir())

	for _, orgID := range []string{"", tenant.BypassAllOrganizations} {
		if _, _, err := svc.Save(orgID, "x.txt", strings.NewReader("x")); tenant.CodeOf(err) != tenant.CodeValidation {
			t.Errorf("Save with org %q: expected validation error, got %v", orgID, err)
		}
		if _, err := svc.Open(orgID, "org-1/x.txt"); tenant.CodeOf(err) != tenant.CodeValidation {
			t.Errorf("Open with org %q: expected validation error, got %v", orgID, err)
		}
	}
}

func TestStorageDelete_MissingFileIsFine(t *testing.T) {
	svc := NewStorageService(t.TempDir())
	if err := svc.Delete("org-1", "org-1/never-was.txt"); err != nil {
		t.Fatalf("deleting a missing file must not fail, got %v", err)
	}
}
