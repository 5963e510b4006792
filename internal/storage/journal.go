package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"followreq/internal/logger"
	"followreq/pkg/model"
)

const (
	defaultRecent   = 50
	maxRecentRecord = 1000
)

// actionRow 操作流水表
type actionRow struct {
	Seq    uint64    `gorm:"primaryKey;autoIncrement"`
	ID     string    `gorm:"size:36;uniqueIndex"`
	Kind   string    `gorm:"size:16;index"`
	UserID string    `gorm:"size:64;index"`
	Result string    `gorm:"size:32"`
	Error  string    `gorm:"type:text"`
	At     time.Time `gorm:"index"`
}

func (actionRow) TableName() string { return "action_records" }

// Journal 进程内的操作流水，默认使用内存 SQLite
type Journal struct {
	db *gorm.DB
}

// MemoryDSN 生成独立的内存库地址，同一进程内的多个流水互不可见
func MemoryDSN() string {
	return fmt.Sprintf("file:journal-%s?mode=memory&cache=shared", uuid.NewString())
}

// Open 打开流水库并建表，dsn 为空时使用独立的内存库
func Open(dsn string, log logger.Logger) (*Journal, error) {
	if dsn == "" {
		dsn = MemoryDSN()
	}
	if log == nil {
		log = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: NewGormLogger(log)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// 内存库随最后一个连接关闭而消失，固定单连接
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.AutoMigrate(&actionRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record 写入一条流水
func (j *Journal) Record(ctx context.Context, rec model.ActionRecord) error {
	row := actionRow{
		ID:     rec.ID,
		Kind:   rec.Kind.String(),
		UserID: rec.UserID,
		Result: string(rec.Result),
		Error:  rec.Error,
		At:     rec.At.UTC(),
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record action %s: %w", rec.ID, err)
	}
	return nil
}

// Recent 按写入顺序倒序返回最近的流水
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.ActionRecord, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	limit = min(limit, maxRecentRecord)

	var rows []actionRow
	err := j.db.WithContext(ctx).Order("seq DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query recent actions: %w", err)
	}

	out := make([]model.ActionRecord, 0, len(rows))
	for _, r := range rows {
		kind, err := model.ParseActionKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("journal row %s: %w", r.ID, err)
		}
		out = append(out, model.ActionRecord{
			ID:     r.ID,
			Kind:   kind,
			UserID: r.UserID,
			Result: model.ActionResult(r.Result),
			Error:  r.Error,
			At:     r.At,
		})
	}
	return out, nil
}

// Close 关闭数据库连接
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
