package types

// SubmitRequest 发起一次远端提交.
type SubmitRequest struct {
	OwnerIdentity string `json:"owner_identity" binding:"required"`
	Username      string `json:"username"       binding:"required"`
	Password      string `json:"password"       binding:"required"`
	Finalize      bool   `json:"finalize"`
}

// 提交协议的步骤标记.
const (
	StepUpload       = "upload"
	StepVerifyTarget = "verify_target"
	StepLink         = "link"
	StepVerifyResult = "verify_result"
	StepFinalize     = "finalize"
)

// SubmitResult 一次提交的结构化结果，逐步记录已完成的协议步骤.
type SubmitResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	ArtifactID       uint     `json:"artifact_id"`
	Status           string   `json:"status"`
	AlreadySubmitted bool     `json:"already_submitted,omitempty"`
	SubmissionID     string   `json:"submission_id,omitempty"`
	TransactionLogID string   `json:"transaction_log_id,omitempty"`
	Finalized        bool     `json:"finalized,omitempty"`
	FinalizeSkipped  bool     `json:"finalize_skipped,omitempty"`
	Queued           bool     `json:"queued,omitempty"`
	Steps            []string `json:"steps,omitempty"`
}

// MarkStep 追加一个已完成的协议步骤.
func (r *SubmitResult) MarkStep(step string) {
	r.Steps = append(r.Steps, step)
}
