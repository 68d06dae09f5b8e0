// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package results

import (
	"context"
)

// Store is a persistent mapping from Key to Record.
//
// Implementations must guarantee:
//   - Exists and Read have no side effects.
//   - Write without overwrite on an existing key fails with
//     bench.ErrAlreadyExists and leaves the stored record untouched.
//   - Write with overwrite replaces the stored record atomically; a reader
//     sees either the old or the new record, never neither.
//   - Writes to distinct keys do not interfere; writes to one key are
//     serialised.
//   - Storage failures are reported wrapping bench.ErrStoreUnavailable.
type Store interface {
	// Exists reports whether a record is stored under key.
	Exists(ctx context.Context, key Key) (bool, error)

	// Read returns the record under key, or bench.ErrNotFound.
	Read(ctx context.Context, key Key) (Record, error)

	// Write stores rec under rec.Key.
	Write(ctx context.Context, rec Record, overwrite bool) error

	// Scan returns the records matching f, ordered by key.
	Scan(ctx context.Context, f Filter) ([]Record, error)

	// Close releases the store.
	Close() error
}
