package persist

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store 基于 gorm 的元数据存储：文档、运行、产物与缓存条目。
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore 创建元数据存储。
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "persist_store"))}
}

func newID(prefix string) string {
	id := uuid.New()
	return prefix + "_" + hex.EncodeToString(id[:])
}

// CreateDocument 登记文档，按 sha256 去重：已存在时返回原记录。
func (s *Store) CreateDocument(sha256sum, filename string, size int64) (*DocumentRecord, error) {
	var existing DocumentRecord
	err := s.db.Where("sha256 = ?", sha256sum).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup document: %w", err)
	}

	record := DocumentRecord{
		DocID:     newID("doc"),
		SHA256:    sha256sum,
		Filename:  filename,
		Bytes:     size,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return &record, nil
}

// CreateRun 以 running 状态开启一次运行。
func (s *Store) CreateRun(docID, optionsJSON, optionsHash, codeVersion, questionSetVersion string) (*RunRecord, error) {
	record := RunRecord{
		RunID:              newID("run"),
		DocID:              docID,
		Status:             "running",
		CreatedAt:          time.Now().UTC(),
		OptionsJSON:        optionsJSON,
		OptionsHash:        optionsHash,
		CodeVersion:        codeVersion,
		QuestionSetVersion: questionSetVersion,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &record, nil
}

// CompleteRun 终结一次运行。已终结的记录不可再变更。
func (s *Store) CompleteRun(runID, status string, runtimeMS int64, warningsJSON string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var record RunRecord
		if err := tx.Where("run_id = ?", runID).First(&record).Error; err != nil {
			return fmt.Errorf("lookup run %s: %w", runID, err)
		}
		if record.CompletedAt != nil {
			return fmt.Errorf("run %s already completed", runID)
		}
		now := time.Now().UTC()
		updates := map[string]any{
			"status":        status,
			"completed_at":  now,
			"runtime_ms":    runtimeMS,
			"warnings_json": warningsJSON,
		}
		if err := tx.Model(&RunRecord{}).Where("run_id = ?", runID).Updates(updates).Error; err != nil {
			return fmt.Errorf("complete run %s: %w", runID, err)
		}
		return nil
	})
}

// GetRun 读取运行记录。
func (s *Store) GetRun(runID string) (*RunRecord, error) {
	var record RunRecord
	if err := s.db.Where("run_id = ?", runID).First(&record).Error; err != nil {
		return nil, fmt.Errorf("lookup run %s: %w", runID, err)
	}
	return &record, nil
}

// InsertArtifact 登记内容寻址的产物，同哈希同类型复用已有记录。
func (s *Store) InsertArtifact(contentHash, artifactType, path string, size int64) (*ArtifactRecord, error) {
	var existing ArtifactRecord
	err := s.db.Where("content_hash = ? AND type = ?", contentHash, artifactType).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup artifact: %w", err)
	}

	record := ArtifactRecord{
		ArtifactID:  newID("artifact"),
		ContentHash: contentHash,
		Type:        artifactType,
		Path:        path,
		Bytes:       size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	return &record, nil
}

// LinkArtifact 把产物挂到运行上。
func (s *Store) LinkArtifact(runID, artifactID, artifactType string) error {
	link := RunArtifact{RunID: runID, ArtifactID: artifactID, Type: artifactType}
	if err := s.db.Create(&link).Error; err != nil {
		return fmt.Errorf("link artifact %s to run %s: %w", artifactID, runID, err)
	}
	return nil
}

// GetCacheEntry 读取缓存条目，不存在时返回 (nil, nil)。
func (s *Store) GetCacheEntry(stage, cacheKey string) (*CacheEntryRecord, error) {
	var entry CacheEntryRecord
	err := s.db.Where("stage = ? AND cache_key = ?", stage, cacheKey).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cache entry: %w", err)
	}
	return &entry, nil
}

// PutCacheEntry 写入或覆盖缓存条目。同键并发写是幂等的。
func (s *Store) PutCacheEntry(entry CacheEntryRecord) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stage"}, {Name: "cache_key"}},
		UpdateAll: true,
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// TouchCacheEntry 更新最近访问时间。
func (s *Store) TouchCacheEntry(stage, cacheKey string) error {
	now := time.Now().UTC()
	err := s.db.Model(&CacheEntryRecord{}).
		Where("stage = ? AND cache_key = ?", stage, cacheKey).
		Update("last_accessed", now).Error
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry 删除缓存条目。
func (s *Store) DeleteCacheEntry(stage, cacheKey string) error {
	err := s.db.Where("stage = ? AND cache_key = ?", stage, cacheKey).
		Delete(&CacheEntryRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// CacheStats 返回每个阶段的条目计数。
func (s *Store) CacheStats() ([]CacheStat, error) {
	var stats []CacheStat
	err := s.db.Model(&CacheEntryRecord{}).
		Select("stage, COUNT(*) AS count").
		Group("stage").
		Order("stage").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

// CacheEntriesOlderThan 列出创建时间早于 cutoff 的条目。
func (s *Store) CacheEntriesOlderThan(cutoff time.Time) ([]CacheEntryRecord, error) {
	var entries []CacheEntryRecord
	if err := s.db.Where("created_at < ?", cutoff).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	return entries, nil
}
