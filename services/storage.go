package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docvaulthq/docvault/tenant"
)

// StorageService keeps document files on local disk under
// {root}/{organizationID}/{secureFileName}. The organization id must
// come from a verified security context, never from request input.
type StorageService struct {
	Root string
}

func NewStorageService(root string) *StorageService {
	return &StorageService{Root: root}
}

// SecureFileName strips any path components from a client-supplied name
// and prefixes it with a random id so two uploads can never collide or
// escape the organization directory.
func SecureFileName(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return uuid.New().String() + "_" + name
}

// Save writes the file under the organization's directory and returns
// the stored path relative to the root.
func (s *StorageService) Save(organizationID, fileName string, r io.Reader) (string, int64, error) {
	if organizationID == "" || organizationID == tenant.BypassAllOrganizations {
		return "", 0, tenant.NewValidationError("storage requires a concrete organization id")
	}

	secure := SecureFileName(fileName)
	dir := filepath.Join(s.Root, organizationID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, tenant.NewInternalError("failed to create storage directory", err)
	}

	path := filepath.Join(dir, secure)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, tenant.NewInternalError("failed to create file", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return "", 0, tenant.NewInternalError("failed to write file", err)
	}
	return filepath.Join(organizationID, secure), size, nil
}

// Open returns a reader for a stored path after verifying it still
// resolves inside the organization's directory.
func (s *StorageService) Open(organizationID, storedPath string) (io.ReadCloser, error) {
	full, err := s.resolve(organizationID, storedPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tenant.ErrNotFound
		}
		return nil, tenant.NewInternalError("failed to open file", err)
	}
	return f, nil
}

// Delete removes a stored file. Missing files are not an error; the
// document row is the source of truth.
func (s *StorageService) Delete(organizationID, storedPath string) error {
	full, err := s.resolve(organizationID, storedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return tenant.NewInternalError("failed to delete file", err)
	}
	return nil
}

func (s *StorageService) resolve(organizationID, storedPath string) (string, error) {
	if organizationID == "" || organizationID == tenant.BypassAllOrganizations {
		return "", tenant.NewValidationError("storage requires a concrete organization id")
	}
	full := filepath.Join(s.Root, storedPath)
	prefix := filepath.Join(s.Root, organizationID) + string(os.PathSeparator)
	if !strings.HasPrefix(full, prefix) {
		return "", fmt.Errorf("%w: path escapes organization directory", tenant.ErrNotFound)
	}
	return full, nil
}
