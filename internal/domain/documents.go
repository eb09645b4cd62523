package domain

import "time"

// DocumentEntry is a file or directory in the document store.
type DocumentEntry struct {
	Name       string
	Path       string
	IsDir      bool
	Size       int64
	ModifiedAt time.Time
}

// FolderSummary aggregates a root folder of the document store.
type FolderSummary struct {
	Name           string
	Path           string
	FileCount      int
	SubfolderCount int
	TotalSize      int64
	LastActivity   time.Time
}
