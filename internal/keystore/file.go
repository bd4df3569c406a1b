// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 opsigner Authors

package keystore

import (
	"fmt"
	"path/filepath"

	"github.com/opsigner/opsigner/internal/fsutil"
)

// writeBlob persists an encrypted blob with store permissions, creating the
// parent directory if needed. All failures surface as ErrStorage.
func writeBlob(path string, blob []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fsutil.MkdirAll(dir); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}
	if err := fsutil.WriteFileAtomic(path, blob); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}
