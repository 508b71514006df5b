package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/exambridge/pkg/configs"
	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/storage"
	dbc "github.com/yeisme/exambridge/pkg/internal/storage/db"
)

// newTestContext 构造带内存数据库的测试上下文.
// MQ/KV/S3 客户端为空，事件发布与缓存按可降级路径退化.
func newTestContext(t *testing.T) context.Context {
	t.Helper()

	if err := configs.InitConfig(t.TempDir()); err != nil {
		t.Fatalf("init config: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))

	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := gormDB.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mgr := &storage.Manager{DB: &dbc.Client{DB: gormDB}}

	return ctxPkg.WithStorageManager(context.Background(), mgr)
}

// seedArtifact 通过幂等解析植入一个 PENDING 工件.
func seedArtifact(t *testing.T, ctx context.Context, svc *service.ArtifactService, owner, subject, period string) *model.Artifact {
	t.Helper()

	a, _, err := svc.Resolve(ctx, service.ResolveInput{
		OwnerIdentity: owner,
		SubjectCode:   subject,
		Period:        period,
		RawFileName:   owner + "_" + subject + ".pdf",
		FileName:      owner + "_" + subject + ".pdf",
		Bucket:        "exam-scans",
		ObjectKey:     "scans/" + period + "/" + owner + "/" + subject + ".pdf",
		Size:          2048,
		ContentType:   "application/pdf",
		Checksum:      "deadbeef",
	})
	if err != nil {
		t.Fatalf("seed artifact: %v", err)
	}

	return a
}
