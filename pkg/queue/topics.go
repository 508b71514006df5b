// Package queue 定义消息主题常量与通配模式，供发布/订阅使用.
package queue

// 主题命名规范：eb.<域>.<动作>[.<状态>]，尽量稳定且向后兼容.
// 域：artifact(工件生命周期)、submission(远端提交)、retry(重试队列)、mapping(科目映射)
// 动作/状态：created/reuploaded/validated/deleted、completed/failed/queued、drained 等

const (
	// 工件生命周期领域.
	TopicArtifactCreated    = "eb.artifact.created"    // 新工件完成入库（身份解析后）
	TopicArtifactReuploaded = "eb.artifact.reuploaded" // 同一身份的工件被重新上传，状态已重置
	TopicArtifactValidated  = "eb.artifact.validated"  // 工件通过校验，等待提交
	TopicArtifactDeleted    = "eb.artifact.deleted"    // 工件被软删除，身份已释放

	// 远端提交领域.
	TopicSubmissionStarted   = "eb.submission.started"   // 提交工作流开始执行
	TopicSubmissionCompleted = "eb.submission.completed" // 提交完成（含最终化或跳过最终化）
	TopicSubmissionFailed    = "eb.submission.failed"    // 提交永久失败
	TopicSubmissionQueued    = "eb.submission.queued"    // 瞬时故障，已入重试队列

	// 重试队列领域.
	TopicRetryDrained = "eb.retry.drained" // 一轮排空结束，附带批次统计

	// 科目映射领域.
	TopicMappingChanged = "eb.mapping.changed" // 科目映射被创建或更新
)

// 主题分组，用于批量操作或权限控制.
var (
	// 工件生命周期相关主题集合.
	ArtifactTopics = []string{
		TopicArtifactCreated, TopicArtifactReuploaded,
		TopicArtifactValidated, TopicArtifactDeleted,
	}

	// 提交相关主题集合.
	SubmissionTopics = []string{
		TopicSubmissionStarted, TopicSubmissionCompleted,
		TopicSubmissionFailed, TopicSubmissionQueued,
	}
)
