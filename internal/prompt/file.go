package prompt

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteAtomic replaces path with data. The content is staged in a sibling
// file and renamed into place, so a crash leaves either the old file or the
// new one, never a truncated prompt.
func WriteAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	staged, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			staged.Close()
			os.Remove(staged.Name())
		}
	}()

	if _, err = staged.Write(data); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	// CreateTemp opens 0600; prompts and templates are meant to be readable.
	if err = staged.Chmod(0o644); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if err = staged.Close(); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if err = os.Rename(staged.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
