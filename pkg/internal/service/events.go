package service

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/storage/mq"
	nlog "github.com/yeisme/exambridge/pkg/log"
	"github.com/yeisme/exambridge/pkg/queue"
)

// publishEvent 事件发布为尽力而为，broker 不可用时不影响工作流.
func publishEvent(client *mq.Client, publish func(pub message.Publisher) error) {
	if client == nil {
		return
	}

	if err := publish(client.Publisher()); err != nil {
		nlog.Logger().Warn().Err(err).Msg("publish lifecycle event failed")
	}
}

// artifactRef 构造事件负载中的工件引用.
func artifactRef(a *model.Artifact) queue.ArtifactRef {
	ref := queue.ArtifactRef{
		ArtifactID: a.ID,
		Status:     string(a.Status),
	}

	if a.TransactionID != nil {
		ref.TransactionID = *a.TransactionID
	}

	if owner, subject, period, ok := a.Identity(); ok {
		ref.OwnerIdentity = owner
		ref.SubjectCode = subject
		ref.Period = period
	}

	return ref
}
