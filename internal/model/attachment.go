package model

import "time"

// Attachment is the durable link between an object in the store and a sent
// message. The DownloadID is the only identifier ever exposed to recipients;
// the storage key stays internal.
//
// Pure domain model with no database-specific dependencies or tags.
type Attachment struct {
	ID                string     `json:"id"`
	MessageID         string     `json:"message_id"`
	OriginalName      string     `json:"original_name"`
	StorageKey        string     `json:"storage_key"`
	DownloadID        string     `json:"download_id"`
	Size              int64      `json:"size"`
	ContentType       string     `json:"content_type"`
	Downloaded        bool       `json:"downloaded"`
	DownloadCount     int        `json:"download_count"`
	FirstDownloadedAt *time.Time `json:"first_downloaded_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// DownloadEvent is one append-only download-attempt record keyed by the
// public download identifier.
type DownloadEvent struct {
	ID         string    `json:"id"`
	DownloadID string    `json:"download_id"`
	ClientIP   string    `json:"client_ip"`
	UserAgent  string    `json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
}

// OpenEvent is one append-only open-pixel hit keyed by message id.
type OpenEvent struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	ClientIP  string    `json:"client_ip"`
	CreatedAt time.Time `json:"created_at"`
}

// CleanupRun summarizes one retention pass. Rows are written once at the end
// of a pass and never mutated afterward.
type CleanupRun struct {
	ID                string    `json:"id"`
	RanAt             time.Time `json:"ran_at"`
	ObjectsDeleted    int       `json:"objects_deleted"`
	CacheFilesDeleted int       `json:"cache_files_deleted"`
	OrphanRowsDeleted int       `json:"orphan_rows_deleted"`
	TrackingDeleted   int64     `json:"tracking_deleted"`
	DurationMS        int64     `json:"duration_ms"`
}

// StorageAnalytics aggregates registry-side usage numbers for the admin
// surface. Wasted bytes counts attachments past the waste horizon that were
// never downloaded.
type StorageAnalytics struct {
	TotalAttachments int64           `json:"total_attachments"`
	TotalBytes       int64           `json:"total_bytes"`
	DownloadedCount  int64           `json:"downloaded_count"`
	DownloadRate     float64         `json:"download_rate"`
	WastedCount      int64           `json:"wasted_count"`
	WastedBytes      int64           `json:"wasted_bytes"`
	Largest          []LargestObject `json:"largest"`
}

// LargestObject is one entry of the top-N largest attachments list.
type LargestObject struct {
	StorageKey   string `json:"storage_key"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
}
