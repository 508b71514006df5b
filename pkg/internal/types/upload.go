// Package types 定义 HTTP 层的请求与响应结构.
package types

// UploadScanResponse 扫描件上传结果.
type UploadScanResponse struct {
	ArtifactID    uint   `json:"artifact_id"`
	UUID          string `json:"uuid"`
	TransactionID string `json:"transaction_id,omitempty"`
	OwnerIdentity string `json:"owner_identity,omitempty"`
	SubjectCode   string `json:"subject_code,omitempty"`
	Period        string `json:"period,omitempty"`
	Status        string `json:"status"`
	Reupload      bool   `json:"reupload,omitempty"`
	Checksum      string `json:"checksum,omitempty"`
	Error         string `json:"error,omitempty"`
}
