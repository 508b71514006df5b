package types

import "time"

// ArtifactView 对外暴露的工件视图，隐藏存储细节.
type ArtifactView struct {
	ID            uint       `json:"id"`
	UUID          string     `json:"uuid"`
	TransactionID string     `json:"transaction_id,omitempty"`
	OwnerIdentity string     `json:"owner_identity,omitempty"`
	SubjectCode   string     `json:"subject_code,omitempty"`
	Period        string     `json:"period,omitempty"`
	FileName      string     `json:"file_name"`
	Size          int64      `json:"size"`
	ContentType   string     `json:"content_type,omitempty"`
	Checksum      string     `json:"checksum,omitempty"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	SubmissionID  string     `json:"submission_id,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ArtifactListResponse 工件列表响应.
type ArtifactListResponse struct {
	Artifacts []ArtifactView `json:"artifacts"`
	Total     int            `json:"total"`
}

// ArtifactLogResponse 工件内嵌活动日志响应.
type ArtifactLogResponse struct {
	ArtifactID uint               `json:"artifact_id"`
	Entries    []ArtifactLogEntry `json:"entries"`
}

// ArtifactLogEntry 单条活动日志.
type ArtifactLogEntry struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
}
