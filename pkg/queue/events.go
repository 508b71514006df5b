package queue

import "github.com/ThreeDotsLabs/watermill/message"

// -------------------------- 基于业务封装 events --------------------------

// PublishArtifactCreated 发布 eb.artifact.created 事件。
// 工件完成身份解析并写入数据库后通知下游（如提交触发、统计等）。
// 可通过可选项 opts 注入 TraceID、Producer 等头部信息。
func PublishArtifactCreated(pub message.Publisher, payload ArtifactCreatedPayload, opts ...func(*EventHeader)) error {
	msg, err := NewWatermillMessage(TopicArtifactCreated, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(TopicArtifactCreated, msg)
}

// PublishSubmissionCompleted 发布 eb.submission.completed 事件。
func PublishSubmissionCompleted(pub message.Publisher, payload SubmissionCompletedPayload, opts ...func(*EventHeader)) error {
	msg, err := NewWatermillMessage(TopicSubmissionCompleted, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(TopicSubmissionCompleted, msg)
}

// PublishSubmissionFailed 发布 eb.submission.failed 事件。
func PublishSubmissionFailed(pub message.Publisher, payload SubmissionFailedPayload, opts ...func(*EventHeader)) error {
	msg, err := NewWatermillMessage(TopicSubmissionFailed, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(TopicSubmissionFailed, msg)
}

// PublishSubmissionQueued 发布 eb.submission.queued 事件。
func PublishSubmissionQueued(pub message.Publisher, payload SubmissionQueuedPayload, opts ...func(*EventHeader)) error {
	msg, err := NewWatermillMessage(TopicSubmissionQueued, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(TopicSubmissionQueued, msg)
}

// ParseArtifactCreated 将 Watermill 消息解析为强类型 Envelope（ArtifactCreatedPayload）。
func ParseArtifactCreated(msg *message.Message) (Message[ArtifactCreatedPayload], error) {
	return ParseWatermillMessage[ArtifactCreatedPayload](msg)
}

// ParseSubmissionCompleted 将 Watermill 消息解析为强类型 Envelope（SubmissionCompletedPayload）。
func ParseSubmissionCompleted(msg *message.Message) (Message[SubmissionCompletedPayload], error) {
	return ParseWatermillMessage[SubmissionCompletedPayload](msg)
}
