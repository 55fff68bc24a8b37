package api

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// VersionResponse groups the per-platform records of one published version
type VersionResponse struct {
	AppName   string   `json:"app_name"`
	Version   string   `json:"version"`
	Timestamp string   `json:"timestamp"`
	Platforms []string `json:"platforms"`
}

// VersionListResponse is the body of the list-versions endpoint
type VersionListResponse struct {
	AppName  string            `json:"app_name"`
	Versions []VersionResponse `json:"versions"`
}

// LatestVersionResponse describes the newest build for an app on a platform
type LatestVersionResponse struct {
	AppName   string `json:"app_name"`
	Platform  string `json:"platform"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// CompleteVersionRequest finishes an upload and records the version.
// Timestamp is optional; when absent the server stamps the current time.
type CompleteVersionRequest struct {
	Version   string `json:"version"`
	Platform  string `json:"platform"`
	Timestamp string `json:"timestamp,omitempty"`
}

// CompleteVersionResponse is the body of a successful upload finish
type CompleteVersionResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	AppName  string `json:"app_name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// UpdateVersionRequest is the patch body for a version record. Nil fields
// are left unchanged.
type UpdateVersionRequest struct {
	AppName   *string `json:"app_name,omitempty"`
	Version   *string `json:"version,omitempty"`
	Platform  *string `json:"platform,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// DeleteResponse is the body of a successful version deletion
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	AppName string `json:"app_name"`
	Version string `json:"version"`
}

// MultipartCreateResponse returns the key and id of a new multipart upload
type MultipartCreateResponse struct {
	Key      string `json:"key"`
	UploadID string `json:"uploadId"`
}

// MultipartPartResponse acknowledges one uploaded part
type MultipartPartResponse struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// MultipartCompleteResponse acknowledges a completed multipart upload
type MultipartCompleteResponse struct {
	Success bool   `json:"success"`
	ETag    string `json:"etag"`
}
