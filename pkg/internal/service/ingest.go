package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/queue"
)

var (
	// 标准命名：12 位学号 + 下划线 + 科目代码 + 扩展名
	strictScanName = regexp.MustCompile(`^(\d{12})_([A-Z0-9]{2,10})\.(?i:pdf|jpe?g|png)$`)
	// 宽松回退：学号与科目之间允许空格、连字符，科目大小写不限
	flexScanName = regexp.MustCompile(`(\d{12})[ _-]+([A-Za-z0-9]{2,10})`)

	fileNameSafe = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

var allowedScanExts = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ParseScanName 从扫描件文件名解析身份二元组（学号、科目代码）.
// 先按标准命名匹配，失败后尝试宽松回退；都失败返回 ValidationError.
func ParseScanName(name string) (owner, subject string, err error) {
	base := filepath.Base(name)

	if m := strictScanName.FindStringSubmatch(base); m != nil {
		return m[1], m[2], nil
	}

	ext := strings.ToLower(filepath.Ext(base))
	if _, ok := allowedScanExts[ext]; !ok {
		return "", "", &ValidationError{Reason: "unsupported file extension " + ext}
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if m := flexScanName.FindStringSubmatch(stem); m != nil {
		return m[1], strings.ToUpper(m[2]), nil
	}

	return "", "", &ValidationError{Reason: "cannot parse owner/subject from file name " + base}
}

// SanitizeFileName 将文件名收敛到安全字符集.
func SanitizeFileName(name string) string {
	return fileNameSafe.ReplaceAllString(filepath.Base(name), "_")
}

// Ingest 接收一份扫描件：解析身份、写入对象存储、计算校验和，再走幂等解析.
// 文件名无法解析时仍创建 FAILED 工件留痕，并返回原始的 ValidationError.
func (s *ArtifactService) Ingest(ctx context.Context, rawName string, r io.Reader, size int64, contentType string) (*model.Artifact, bool, error) {
	if size <= 0 {
		return nil, false, &ValidationError{Reason: "empty upload"}
	}

	sanitized := SanitizeFileName(rawName)
	owner, subject, parseErr := ParseScanName(rawName)

	var period string

	if parseErr == nil {
		// 考期优先取映射表配置的 exam_session，否则按当前月份
		if m, err := s.mappings.ResolveTarget(ctx, subject); err == nil && m.ExamSession != "" {
			period = m.ExamSession
		} else {
			period = time.Now().UTC().Format("200601")
		}
	}

	var key string
	if parseErr == nil {
		key = fmt.Sprintf("scans/%s/%s/%s", period, owner, sanitized)
	} else {
		key = "scans/unparsed/" + uuid.NewString() + "_" + sanitized
	}

	if contentType == "" {
		contentType = allowedScanExts[strings.ToLower(filepath.Ext(sanitized))]
	}

	hasher := sha256.New()

	if _, err := s.s3Client.PutScan(ctx, key, io.TeeReader(r, hasher), size, contentType); err != nil {
		return nil, false, &InternalError{Err: fmt.Errorf("store scan %s: %w", key, err)}
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	bucket := s.s3Client.GetConfig().ScanBucket

	if parseErr != nil {
		a := &model.Artifact{
			UUID:            uuid.NewString(),
			RawFileName:     rawName,
			FileName:        sanitized,
			Bucket:          bucket,
			ObjectKey:       key,
			Size:            size,
			ContentType:     contentType,
			Checksum:        checksum,
			Status:          model.StatusFailed,
			StatusChangedAt: time.Now().UTC(),
			LastError:       parseErr.Error(),
		}
		a.AppendLog("ingest_rejected", parseErr.Error())

		if err := s.dbClient.WithContext(ctx).Create(a).Error; err != nil {
			return nil, false, &InternalError{Err: fmt.Errorf("record rejected upload: %w", err)}
		}

		return a, false, parseErr
	}

	a, reupload, err := s.Resolve(ctx, ResolveInput{
		OwnerIdentity: owner,
		SubjectCode:   subject,
		Period:        period,
		RawFileName:   rawName,
		FileName:      sanitized,
		Bucket:        bucket,
		ObjectKey:     key,
		Size:          size,
		ContentType:   contentType,
		Checksum:      checksum,
	})
	if err != nil {
		return nil, false, err
	}

	s.publishIngested(a, reupload)

	return a, reupload, nil
}

// publishIngested 发布入库事件（created 或 reuploaded）.
func (s *ArtifactService) publishIngested(a *model.Artifact, reupload bool) {
	ref := artifactRef(a)

	if reupload {
		payload := queue.ArtifactReuploadedPayload{Artifact: ref}

		publishEvent(s.mqClient, func(pub message.Publisher) error {
			msg, err := queue.NewWatermillMessage(queue.TopicArtifactReuploaded, payload)
			if err != nil {
				return err
			}

			return pub.Publish(queue.TopicArtifactReuploaded, msg)
		})

		return
	}

	payload := queue.ArtifactCreatedPayload{
		Artifact: ref,
		FileName: a.FileName,
		Bucket:   a.Bucket,
		Key:      a.ObjectKey,
		Size:     a.Size,
	}

	publishEvent(s.mqClient, func(pub message.Publisher) error {
		return queue.PublishArtifactCreated(pub, payload)
	})
}
