package store

import (
	"database/sql"
	"errors"
	"time"
)

type scanner interface{ Scan(dest ...any) error }

func scanImage(row scanner) (*Image, error) {
	var (
		img          Image
		md5          sql.NullString
		phash        sql.NullString
		exif         sql.NullString
		size         sql.NullInt64
		width        sql.NullInt64
		height       sql.NullInt64
		format       sql.NullString
		thumbnail    sql.NullString
		notes        sql.NullString
		discoveredAt sql.NullString
	)
	if err := row.Scan(
		&img.ID,
		&img.EvidenceID,
		&img.RelPath,
		&img.Filename,
		&md5,
		&img.SHA256,
		&phash,
		&exif,
		&size,
		&width,
		&height,
		&format,
		&thumbnail,
		&notes,
		&img.FirstDiscoveredBy,
		&discoveredAt,
	); err != nil {
		return nil, err
	}
	img.MD5 = md5.String
	img.PHash = phash.String
	img.ExifJSON = exif.String
	img.SizeBytes = size.Int64
	img.Width = int(width.Int64)
	img.Height = int(height.Int64)
	img.Format = format.String
	img.ThumbnailPath = thumbnail.String
	img.Notes = notes.String
	if t, err := parseTimeString(discoveredAt.String); err == nil {
		img.FirstDiscoveredAt = t
	}
	return &img, nil
}

func scanDiscovery(row scanner) (*Discovery, error) {
	var (
		d            Discovery
		version      sql.NullString
		discoveredAt sql.NullString
		fsPath       sql.NullString
		fsInode      sql.NullString
		fsPartition  sql.NullInt64
		mtime        sql.NullString
		atime        sql.NullString
		crtime       sql.NullString
		ctime        sql.NullString
		offset       sql.NullInt64
		blockSize    sql.NullInt64
		toolOutput   sql.NullString
	)
	if err := row.Scan(
		&d.ID,
		&d.EvidenceID,
		&d.ImageID,
		&d.DiscoveredBy,
		&d.RunID,
		&version,
		&discoveredAt,
		&fsPath,
		&fsInode,
		&fsPartition,
		&mtime,
		&atime,
		&crtime,
		&ctime,
		&offset,
		&blockSize,
		&toolOutput,
	); err != nil {
		return nil, err
	}
	d.ExtractorVersion = version.String
	d.FSPath = fsPath.String
	d.FSInode = fsInode.String
	d.FSPartition = int(fsPartition.Int64)
	d.CarvedToolOutput = toolOutput.String
	if t, err := parseTimeString(discoveredAt.String); err == nil {
		d.DiscoveredAt = t
	}
	d.FSModified, _ = parseTimeString(mtime.String)
	d.FSAccessed, _ = parseTimeString(atime.String)
	d.FSCreated, _ = parseTimeString(crtime.String)
	d.FSChanged, _ = parseTimeString(ctime.String)
	if offset.Valid {
		v := offset.Int64
		d.CarvedOffset = &v
	}
	if blockSize.Valid {
		v := blockSize.Int64
		d.CarvedBlockSize = &v
	}
	return &d, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableInt64Ptr(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
