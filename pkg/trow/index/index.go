// Package index implements the relational metadata store backing the
// registry: blobs, manifests, tags, and their repository associations, plus
// in-flight upload sessions.
//
// The store is a single-node embedded SQL database (sqlite via the pure-Go
// modernc.org/sqlite driver, queried through sqlx) — there is no distributed
// coordination, matching the registry's single-node deployment model.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/xlog"
)

// Index wraps a sqlx database handle with the registry's queries.
type Index struct {
	db    *sqlx.DB
	clock Clock
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard library.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// Open opens (creating if necessary) a sqlite database at dsn, typically a
// file path or "file::memory:?cache=shared" for tests, applies the schema,
// and returns a ready Index.
func Open(ctx context.Context, dsn string, clock Clock) (*Index, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", dsn, err)
	}
	// sqlite only tolerates one writer at a time; a single connection avoids
	// SQLITE_BUSY from the driver's own pool contending with itself, and the
	// registry serializes writes per (repo,tag)/session anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Index{db: db, clock: clock}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// withRetry runs fn, retrying a bounded number of times on sqlite's
// transient "database is locked" error, per the registry's contract that
// writes under contention retry with bounded backoff.
func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 5
	backoff := 20 * time.Millisecond
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		xlog.Debugf("index: retrying after lock contention (attempt %d): %v", attempt+1, err)
	}
	return err
}

func isBusy(err error) bool {
	return err != nil && strings.Contains(err.Error(), "locked")
}

// PutBlob inserts or refreshes a blob row. last_accessed is stamped now; it
// is used to age blobs out for garbage collection policies the operator may
// layer on top (outside the scope of the engine itself).
func (idx *Index) PutBlob(ctx context.Context, digest string, size int64) error {
	now := idx.clock.Now()
	return withRetry(ctx, func() error {
		_, err := idx.db.ExecContext(ctx, `
			INSERT INTO blob (digest, size, last_accessed) VALUES (?, ?, ?)
			ON CONFLICT(digest) DO UPDATE SET last_accessed = excluded.last_accessed
		`, digest, size, now.Unix())
		return err
	})
}

// StatBlob returns a blob's recorded size.
func (idx *Index) StatBlob(ctx context.Context, digest string) (BlobRecord, error) {
	var rec blobRow
	err := idx.db.GetContext(ctx, &rec, `SELECT digest, size, last_accessed FROM blob WHERE digest = ?`, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return BlobRecord{}, errdefs.Newf(errdefs.ErrNotFound, "blob %s not found", digest)
	}
	if err != nil {
		return BlobRecord{}, err
	}
	return rec.toRecord(), nil
}

type blobRow struct {
	Digest       string `db:"digest"`
	Size         int64  `db:"size"`
	LastAccessed int64  `db:"last_accessed"`
}

func (r blobRow) toRecord() BlobRecord {
	return BlobRecord{Digest: r.Digest, Size: r.Size, LastAccessed: time.Unix(r.LastAccessed, 0).UTC()}
}

// AssociateBlob records that repo references a blob digest, creating the
// blob row if it does not already exist. Used both for directly pushed
// blobs and for layers pulled in via the proxy engine.
func (idx *Index) AssociateBlob(ctx context.Context, repo, digest string, size int64) error {
	return withRetry(ctx, func() error {
		tx, err := idx.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		now := idx.clock.Now().Unix()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blob (digest, size, last_accessed) VALUES (?, ?, ?)
			ON CONFLICT(digest) DO UPDATE SET last_accessed = excluded.last_accessed
		`, digest, size, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO repo_blob_assoc (repo_name, blob_digest) VALUES (?, ?)
		`, repo, digest); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// BlobAssociated reports whether repo has an association with a blob digest,
// the check performed before serving a blob GET.
func (idx *Index) BlobAssociated(ctx context.Context, repo, digest string) (bool, error) {
	var exists bool
	err := idx.db.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM repo_blob_assoc WHERE repo_name = ? AND blob_digest = ?)
	`, repo, digest)
	return exists, err
}

// DeleteBlob removes a blob row and all of its repo associations.
func (idx *Index) DeleteBlob(ctx context.Context, digest string) error {
	return withRetry(ctx, func() error {
		tx, err := idx.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.ExecContext(ctx, `DELETE FROM blob WHERE digest = ?`, digest)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errdefs.Newf(errdefs.ErrNotFound, "blob %s not found", digest)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM repo_blob_assoc WHERE blob_digest = ?`, digest); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// PutManifest writes a manifest's verbatim bytes, parsed JSON, and its
// repository/tag associations transactionally: the manifest row, its blob
// row, the repo_manifest_assoc row, and (for tag references) the tag pointer
// and a tag_history entry all commit together or not at all.
func (idx *Index) PutManifest(ctx context.Context, repo, digestStr string, size int64, raw []byte, parsedJSON string, tag string) error {
	now := idx.clock.Now()
	return withRetry(ctx, func() error {
		tx, err := idx.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blob (digest, size, last_accessed) VALUES (?, ?, ?)
			ON CONFLICT(digest) DO UPDATE SET last_accessed = excluded.last_accessed
		`, digestStr, size, now.Unix()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO manifest (digest, json, blob) VALUES (?, ?, ?)
			ON CONFLICT(digest) DO UPDATE SET json = excluded.json, blob = excluded.blob
		`, digestStr, parsedJSON, raw); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO repo_manifest_assoc (repo_name, manifest_digest) VALUES (?, ?)
		`, repo, digestStr); err != nil {
			return err
		}
		if tag != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tag (repo, tag, manifest_digest) VALUES (?, ?, ?)
				ON CONFLICT(repo, tag) DO UPDATE SET manifest_digest = excluded.manifest_digest
			`, repo, tag, digestStr); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tag_history (repo, tag, manifest_digest, recorded_at) VALUES (?, ?, ?, ?)
			`, repo, tag, digestStr, now.Unix()); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// GetManifest returns a manifest's verbatim bytes and parsed JSON by digest.
func (idx *Index) GetManifest(ctx context.Context, digest string) (ManifestRecord, error) {
	var rec ManifestRecord
	err := idx.db.GetContext(ctx, &rec, `SELECT digest, json, blob FROM manifest WHERE digest = ?`, digest)
	if errors.Is(err, sql.ErrNoRows) {
		return ManifestRecord{}, errdefs.Newf(errdefs.ErrNotFound, "manifest %s not found", digest)
	}
	return rec, err
}

// ResolveTag resolves a (repo, tag) pair to its current manifest digest.
func (idx *Index) ResolveTag(ctx context.Context, repo, tag string) (string, error) {
	var digest string
	err := idx.db.GetContext(ctx, &digest, `
		SELECT manifest_digest FROM tag WHERE repo = ? AND tag = ?
	`, repo, tag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errdefs.Newf(errdefs.ErrNotFound, "tag %s/%s not found", repo, tag)
	}
	return digest, err
}

// DeleteManifest removes a manifest row and its repo association. Tags
// pointing at the deleted digest are left dangling, per the registry's
// deliberate choice not to cascade (see DESIGN.md).
func (idx *Index) DeleteManifest(ctx context.Context, digest string) error {
	return withRetry(ctx, func() error {
		tx, err := idx.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck

		res, err := tx.ExecContext(ctx, `DELETE FROM manifest WHERE digest = ?`, digest)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errdefs.Newf(errdefs.ErrNotFound, "manifest %s not found", digest)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM repo_manifest_assoc WHERE manifest_digest = ?`, digest); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM blob WHERE digest = ?`, digest); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// ListRepositories paginates distinct repository names, matching the OCI
// catalog endpoint.
func (idx *Index) ListRepositories(ctx context.Context, last string, limit int) ([]string, error) {
	var repos []string
	err := idx.db.SelectContext(ctx, &repos, `
		SELECT DISTINCT repo_name FROM repo_blob_assoc WHERE repo_name > ? ORDER BY repo_name ASC LIMIT ?
	`, last, limit)
	return repos, err
}

// ListTags paginates a repository's tags in case-insensitive order.
func (idx *Index) ListTags(ctx context.Context, repo, last string, limit int) ([]string, error) {
	var tags []string
	err := idx.db.SelectContext(ctx, &tags, `
		SELECT tag FROM tag WHERE repo = ? AND tag > ? ORDER BY tag ASC LIMIT ?
	`, repo, last, limit)
	return tags, err
}

// TagHistory returns every value a (repo, tag) pointer has held, oldest
// first; supplements the OCI protocol (which has no history endpoint) for
// the `trow registry tag-history` CLI command.
func (idx *Index) TagHistory(ctx context.Context, repo, tag string) ([]TagHistoryEntry, error) {
	var rows []tagHistoryRow
	err := idx.db.SelectContext(ctx, &rows, `
		SELECT manifest_digest, recorded_at FROM tag_history
		WHERE repo = ? AND tag = ? ORDER BY recorded_at ASC
	`, repo, tag)
	if err != nil {
		return nil, err
	}
	out := make([]TagHistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = TagHistoryEntry{ManifestDigest: r.ManifestDigest, RecordedAt: time.Unix(r.RecordedAt, 0).UTC()}
	}
	return out, nil
}

type tagHistoryRow struct {
	ManifestDigest string `db:"manifest_digest"`
	RecordedAt     int64  `db:"recorded_at"`
}

// Referrers returns manifests in repo whose subject.digest equals target,
// for the OCI 1.1 referrers API.
func (idx *Index) Referrers(ctx context.Context, repo, target, artifactType string) ([]Referrer, error) {
	query := `
		SELECT m.json AS json, m.digest AS digest, b.size AS size
		FROM manifest m
		JOIN repo_manifest_assoc r ON r.manifest_digest = m.digest
		JOIN blob b ON b.digest = m.digest
		WHERE r.repo_name = ? AND json_extract(m.json, '$.subject.digest') = ?
	`
	args := []any{repo, target}
	if artifactType != "" {
		query += ` AND json_extract(m.json, '$.artifactType') = ?`
		args = append(args, artifactType)
	}
	var refs []Referrer
	err := idx.db.SelectContext(ctx, &refs, query, args...)
	return refs, err
}

// CreateUploadSession records a new upload session at offset zero.
func (idx *Index) CreateUploadSession(ctx context.Context, id, repo string) error {
	now := idx.clock.Now().Unix()
	return withRetry(ctx, func() error {
		_, err := idx.db.ExecContext(ctx, `
			INSERT INTO upload_session (id, repo, offset, created_at) VALUES (?, ?, 0, ?)
		`, id, repo, now)
		return err
	})
}

// GetUploadSession returns a session's repo and current offset.
func (idx *Index) GetUploadSession(ctx context.Context, id string) (UploadSessionRecord, error) {
	var row uploadSessionRow
	err := idx.db.GetContext(ctx, &row, `
		SELECT id, repo, offset, created_at FROM upload_session WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return UploadSessionRecord{}, errdefs.Newf(errdefs.ErrNotFound, "upload session %s not found", id)
	}
	if err != nil {
		return UploadSessionRecord{}, err
	}
	return row.toRecord(), nil
}

type uploadSessionRow struct {
	ID        string `db:"id"`
	Repo      string `db:"repo"`
	Offset    int64  `db:"offset"`
	CreatedAt int64  `db:"created_at"`
}

func (r uploadSessionRow) toRecord() UploadSessionRecord {
	return UploadSessionRecord{ID: r.ID, Repo: r.Repo, Offset: r.Offset, CreatedAt: time.Unix(r.CreatedAt, 0).UTC()}
}

// SetUploadOffset updates a session's recorded offset after a successful
// append.
func (idx *Index) SetUploadOffset(ctx context.Context, id string, offset int64) error {
	return withRetry(ctx, func() error {
		res, err := idx.db.ExecContext(ctx, `UPDATE upload_session SET offset = ? WHERE id = ?`, offset, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errdefs.Newf(errdefs.ErrNotFound, "upload session %s not found", id)
		}
		return nil
	})
}

// DeleteUploadSession removes a session record. Idempotent.
func (idx *Index) DeleteUploadSession(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := idx.db.ExecContext(ctx, `DELETE FROM upload_session WHERE id = ?`, id)
		return err
	})
}
