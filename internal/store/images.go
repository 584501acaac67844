package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingField reports image or discovery data without a required key.
var ErrMissingField = errors.New("missing required field")

const imageColumns = "id, evidence_id, rel_path, filename, md5, sha256, phash, exif_json, size_bytes, width, height, format, thumbnail_path, notes, first_discovered_by, first_discovered_at"

const discoveryColumns = "id, evidence_id, image_id, discovered_by, run_id, extractor_version, discovered_at, fs_path, fs_inode, fs_partition, fs_mtime, fs_atime, fs_crtime, fs_ctime, carved_offset_bytes, carved_block_size, carved_tool_output"

// InsertWithDiscovery records that d found img. When no image with the same
// (evidence, sha256) exists, img is inserted and wasNew is true. Otherwise only
// the discovery is added, null perceptual hash/EXIF/thumbnail fields on the
// existing row are back-filled from img, and wasNew is false. Repeating the
// same discovery within a run is a no-op.
//
// Each call runs under its own savepoint, so a failure leaves none of the
// record's rows behind and the transaction stays usable for later records.
func (t *Tx) InsertWithDiscovery(ctx context.Context, evidenceID int64, img Image, d Discovery) (int64, bool, error) {
	ctx = ensureContext(ctx)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT record"); err != nil {
		return 0, false, fmt.Errorf("begin record savepoint: %w", err)
	}
	id, wasNew, err := insertWithDiscovery(ctx, t.tx, evidenceID, img, d)
	if err != nil {
		// The caller's context may already be done; the undo must still run.
		undo := context.WithoutCancel(ctx)
		if _, rbErr := t.tx.ExecContext(undo, "ROLLBACK TO record"); rbErr != nil {
			return 0, false, errors.Join(err, fmt.Errorf("rollback record savepoint: %w", rbErr))
		}
		_, _ = t.tx.ExecContext(undo, "RELEASE record")
		return 0, false, err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE record"); err != nil {
		return 0, false, fmt.Errorf("release record savepoint: %w", err)
	}
	return id, wasNew, nil
}

// InsertWithDiscovery is the auto-committing form of Tx.InsertWithDiscovery.
func (s *Store) InsertWithDiscovery(ctx context.Context, evidenceID int64, img Image, d Discovery) (int64, bool, error) {
	ctx = ensureContext(ctx)
	tx, err := s.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()
	id, wasNew, err := tx.InsertWithDiscovery(ctx, evidenceID, img, d)
	if err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return id, wasNew, nil
}

func insertWithDiscovery(ctx context.Context, q dbtx, evidenceID int64, img Image, d Discovery) (int64, bool, error) {
	img.SHA256 = strings.ToLower(strings.TrimSpace(img.SHA256))
	if img.SHA256 == "" {
		return 0, false, fmt.Errorf("image sha256: %w", ErrMissingField)
	}
	if strings.TrimSpace(d.DiscoveredBy) == "" || strings.TrimSpace(d.RunID) == "" {
		return 0, false, fmt.Errorf("discovery discovered_by and run_id: %w", ErrMissingField)
	}

	now := time.Now().UTC()
	var (
		id     int64
		wasNew bool
	)
	err := retryOnBusy(ctx, func() error {
		res, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO images (
			evidence_id, rel_path, filename, md5, sha256, phash, exif_json, size_bytes,
			width, height, format, thumbnail_path, notes, first_discovered_by, first_discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evidenceID,
			img.RelPath,
			img.Filename,
			nullableString(img.MD5),
			img.SHA256,
			nullableString(img.PHash),
			nullableString(img.ExifJSON),
			img.SizeBytes,
			nullableInt(img.Width),
			nullableInt(img.Height),
			nullableString(img.Format),
			nullableString(img.ThumbnailPath),
			nullableString(img.Notes),
			d.DiscoveredBy,
			now.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		wasNew = affected == 1
		if wasNew {
			id, err = res.LastInsertId()
			return err
		}
		return q.QueryRowContext(ctx,
			`SELECT id FROM images WHERE evidence_id = ? AND sha256 = ?`, evidenceID, img.SHA256,
		).Scan(&id)
	})
	if err != nil {
		return 0, false, fmt.Errorf("insert image: %w", err)
	}

	if !wasNew {
		if err := backfillImage(ctx, q, id, img); err != nil {
			return 0, false, err
		}
	}

	d.EvidenceID = evidenceID
	d.ImageID = id
	if d.DiscoveredAt.IsZero() {
		d.DiscoveredAt = now
	}
	if err := insertDiscovery(ctx, q, d); err != nil {
		return 0, false, err
	}
	return id, wasNew, nil
}

func backfillImage(ctx context.Context, q dbtx, id int64, img Image) error {
	if img.PHash == "" && img.ExifJSON == "" && img.ThumbnailPath == "" && img.Width == 0 {
		return nil
	}
	err := retryOnBusy(ctx, func() error {
		_, err := q.ExecContext(ctx, `UPDATE images SET
			phash = COALESCE(phash, ?),
			exif_json = COALESCE(exif_json, ?),
			thumbnail_path = COALESCE(thumbnail_path, ?),
			width = COALESCE(width, ?),
			height = COALESCE(height, ?),
			format = COALESCE(format, ?)
		WHERE id = ?`,
			nullableString(img.PHash),
			nullableString(img.ExifJSON),
			nullableString(img.ThumbnailPath),
			nullableInt(img.Width),
			nullableInt(img.Height),
			nullableString(img.Format),
			id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("backfill image %d: %w", id, err)
	}
	return nil
}

func insertDiscovery(ctx context.Context, q dbtx, d Discovery) error {
	err := retryOnBusy(ctx, func() error {
		_, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO image_discoveries (
			evidence_id, image_id, discovered_by, run_id, extractor_version, discovered_at,
			fs_path, fs_inode, fs_partition, fs_mtime, fs_atime, fs_crtime, fs_ctime,
			carved_offset_bytes, carved_block_size, carved_tool_output
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.EvidenceID,
			d.ImageID,
			d.DiscoveredBy,
			d.RunID,
			nullableString(d.ExtractorVersion),
			d.DiscoveredAt.UTC().Format(time.RFC3339Nano),
			nullableString(d.FSPath),
			nullableString(d.FSInode),
			d.FSPartition,
			nullableTime(d.FSModified),
			nullableTime(d.FSAccessed),
			nullableTime(d.FSCreated),
			nullableTime(d.FSChanged),
			nullableInt64Ptr(d.CarvedOffset),
			nullableInt64Ptr(d.CarvedBlockSize),
			nullableString(d.CarvedToolOutput),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert discovery: %w", err)
	}
	return nil
}

// DeleteDiscoveriesByRun removes every discovery recorded for runID within
// the transaction and returns how many were deleted. Image rows are kept.
func (t *Tx) DeleteDiscoveriesByRun(ctx context.Context, evidenceID int64, runID string) (int64, error) {
	return deleteDiscoveriesByRun(ensureContext(ctx), t.tx, evidenceID, runID)
}

// DeleteDiscoveriesByRun is the auto-committing form of Tx.DeleteDiscoveriesByRun.
func (s *Store) DeleteDiscoveriesByRun(ctx context.Context, evidenceID int64, runID string) (int64, error) {
	return deleteDiscoveriesByRun(ensureContext(ctx), s.db, evidenceID, runID)
}

func deleteDiscoveriesByRun(ctx context.Context, q dbtx, evidenceID int64, runID string) (int64, error) {
	if strings.TrimSpace(runID) == "" {
		return 0, fmt.Errorf("run_id: %w", ErrMissingField)
	}
	var deleted int64
	err := retryOnBusy(ctx, func() error {
		res, err := q.ExecContext(ctx,
			`DELETE FROM image_discoveries WHERE evidence_id = ? AND run_id = ?`, evidenceID, runID)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete discoveries for run %s: %w", runID, err)
	}
	return deleted, nil
}

// FindBySHA256 returns the image with the given fingerprint, or nil.
func (s *Store) FindBySHA256(ctx context.Context, evidenceID int64, sha256 string) (*Image, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+imageColumns+` FROM images WHERE evidence_id = ? AND sha256 = ?`,
		evidenceID, strings.ToLower(strings.TrimSpace(sha256)))
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find image by sha256: %w", err)
	}
	return img, nil
}

// GetImage fetches an image by identifier, or nil.
func (s *Store) GetImage(ctx context.Context, id int64) (*Image, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// Images lists the images of one evidence unit ordered by relative path.
func (s *Store) Images(ctx context.Context, evidenceID int64) ([]*Image, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+imageColumns+` FROM images WHERE evidence_id = ? ORDER BY rel_path, id`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()
	var out []*Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// ImageSources returns every discovery of an image, oldest first.
func (s *Store) ImageSources(ctx context.Context, imageID int64) ([]*Discovery, error) {
	return s.queryDiscoveries(ctx, `WHERE image_id = ? ORDER BY discovered_at, id`, imageID)
}

// RunDiscoveries returns the discoveries recorded by one run.
func (s *Store) RunDiscoveries(ctx context.Context, evidenceID int64, runID string) ([]*Discovery, error) {
	return s.queryDiscoveries(ctx, `WHERE evidence_id = ? AND run_id = ? ORDER BY fs_path, id`, evidenceID, runID)
}

func (s *Store) queryDiscoveries(ctx context.Context, where string, args ...any) ([]*Discovery, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+discoveryColumns+` FROM image_discoveries `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list discoveries: %w", err)
	}
	defer rows.Close()
	var out []*Discovery
	for rows.Next() {
		d, err := scanDiscovery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discovery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats aggregates image and discovery counts for one evidence unit.
func (s *Store) Stats(ctx context.Context, evidenceID int64) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{ByExtractor: map[string]int64{}, FirstByExtractor: map[string]int64{}}

	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(1),
			COALESCE(SUM(CASE WHEN phash IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM images WHERE evidence_id = ?`, evidenceID).Scan(&stats.Images, &stats.WithPHash)
	if err != nil {
		return Stats{}, fmt.Errorf("count images: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM image_discoveries WHERE evidence_id = ?`, evidenceID).Scan(&stats.Discoveries); err != nil {
		return Stats{}, fmt.Errorf("count discoveries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM (
			SELECT image_id FROM image_discoveries WHERE evidence_id = ?
			GROUP BY image_id HAVING COUNT(DISTINCT discovered_by) > 1
		)`, evidenceID).Scan(&stats.MultiSource); err != nil {
		return Stats{}, fmt.Errorf("count multi-source images: %w", err)
	}

	if err := s.groupCount(ctx, stats.ByExtractor,
		`SELECT discovered_by, COUNT(DISTINCT image_id) FROM image_discoveries WHERE evidence_id = ? GROUP BY discovered_by`,
		evidenceID); err != nil {
		return Stats{}, err
	}
	if err := s.groupCount(ctx, stats.FirstByExtractor,
		`SELECT first_discovered_by, COUNT(1) FROM images WHERE evidence_id = ? GROUP BY first_discovered_by`,
		evidenceID); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *Store) groupCount(ctx context.Context, dst map[string]int64, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("group counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan group count: %w", err)
		}
		dst[key] = count
	}
	return rows.Err()
}
