package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileDestination writes payloads below a local directory.
type FileDestination struct {
	dir string
}

func NewFileDestination(dir string) *FileDestination {
	return &FileDestination{dir: dir}
}

func (d *FileDestination) Name() string {
	return "file://" + d.dir
}

// Write writes the object to dir/key, creating parent directories. The file
// is written to a temporary name first and renamed into place.
func (d *FileDestination) Write(ctx context.Context, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(d.dir, filepath.FromSlash(obj.Key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, obj.Data, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", target, err)
	}
	return nil
}
