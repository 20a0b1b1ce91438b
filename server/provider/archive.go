package provider

// ArchiveStatus is the platform-independent state of an archive.
type ArchiveStatus string

const (
	// ArchiveAvailable means the recording is complete and can be downloaded.
	ArchiveAvailable ArchiveStatus = "available"
	// ArchivePending means the recording is in progress or being processed.
	ArchivePending ArchiveStatus = "pending"
	// ArchiveFailed means the recording failed, expired or was deleted.
	ArchiveFailed ArchiveStatus = "failed"
)

// Raw archive statuses of interest reported by the platforms.
const (
	StatusStarted = "started"
	StatusPaused  = "paused"
)

// MapArchiveStatus converts the raw platform status to ArchiveStatus. Every status of a
// recording which may still become available is pending, including "uploading" which
// some web clients treat as failed.
func MapArchiveStatus(raw string) ArchiveStatus {
	switch raw {
	case "available":
		return ArchiveAvailable
	case StatusStarted, "stopped", StatusPaused, "uploaded", "uploading":
		return ArchivePending
	default:
		return ArchiveFailed
	}
}

// Archive is a server-side recording of a session.
type Archive struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SessionID string `json:"sessionId"`
	// Status as reported by the platform, e.g. "started" or "uploaded".
	Status string `json:"status"`
	// Status grouped by MapArchiveStatus.
	Group ArchiveStatus `json:"statusGroup"`
	// Milliseconds since epoch.
	CreatedAt int64 `json:"createdAt"`
	// Seconds.
	Duration int64 `json:"duration"`
	// Bytes.
	Size   int64   `json:"size"`
	URL    *string `json:"url"`
	Reason string  `json:"reason,omitempty"`
}

// Active reports if the archive is being recorded.
func (a *Archive) Active() bool {
	return a.Status == StatusStarted || a.Status == StatusPaused
}

// remoteArchive is the archive as returned by the REST API of both platforms.
type remoteArchive struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	SessionID  string  `json:"sessionId"`
	Status     string  `json:"status"`
	CreatedAt  int64   `json:"createdAt"`
	Duration   int64   `json:"duration"`
	Size       int64   `json:"size"`
	URL        *string `json:"url"`
	Reason     string  `json:"reason"`
	OutputMode string  `json:"outputMode"`
	Resolution string  `json:"resolution"`
}

func (r *remoteArchive) archive() *Archive {
	return &Archive{
		ID:        r.ID,
		Name:      r.Name,
		SessionID: r.SessionID,
		Status:    r.Status,
		Group:     MapArchiveStatus(r.Status),
		CreatedAt: r.CreatedAt,
		Duration:  r.Duration,
		Size:      r.Size,
		URL:       r.URL,
		Reason:    r.Reason,
	}
}

type archiveList struct {
	Count int             `json:"count"`
	Items []remoteArchive `json:"items"`
}
