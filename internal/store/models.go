package store

import "time"

// Image is the canonical record for one distinct piece of content within an
// evidence unit.
type Image struct {
	ID                int64
	EvidenceID        int64
	RelPath           string
	Filename          string
	MD5               string
	SHA256            string
	PHash             string
	ExifJSON          string
	SizeBytes         int64
	Width             int
	Height            int
	Format            string
	ThumbnailPath     string
	Notes             string
	FirstDiscoveredBy string
	FirstDiscoveredAt time.Time
}

// Discovery records that an extractor run found an image. Zero values mean
// "not known" and are stored as NULL.
type Discovery struct {
	ID               int64
	EvidenceID       int64
	ImageID          int64
	DiscoveredBy     string
	RunID            string
	ExtractorVersion string
	DiscoveredAt     time.Time

	FSPath      string
	FSInode     string
	FSPartition int
	FSModified  time.Time
	FSAccessed  time.Time
	FSCreated   time.Time
	FSChanged   time.Time

	CarvedOffset     *int64
	CarvedBlockSize  *int64
	CarvedToolOutput string
}

// Stats summarizes the images and discoveries recorded for one evidence unit.
type Stats struct {
	Images           int64
	Discoveries      int64
	MultiSource      int64
	WithPHash        int64
	ByExtractor      map[string]int64
	FirstByExtractor map[string]int64
}
