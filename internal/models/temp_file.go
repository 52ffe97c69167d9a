package models

// TempFile is an uploaded document persisted to disk for the duration of one request.
type TempFile struct {
	OriginalName string `json:"original_name"`
	StoredPath   string `json:"stored_path"`
	Size         int64  `json:"size"`
}
