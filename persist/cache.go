package persist

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Scope 缓存作用域。
type Scope string

const (
	// ScopeNone 完全禁用缓存。
	ScopeNone Scope = "none"
	// ScopeDeterministic 只缓存确定性阶段。
	ScopeDeterministic Scope = "deterministic"
)

// ParseScope 解析缓存作用域，未知值报错。
func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeNone, "":
		return ScopeNone, nil
	case ScopeDeterministic:
		return ScopeDeterministic, nil
	default:
		return "", fmt.Errorf("unknown cache scope: %q", raw)
	}
}

var deterministicStages = map[string]struct{}{
	StagePreprocess: {},
	StageBM25Index:  {},
	StageDocVectors: {},
}

// EntryStore 缓存条目元数据的后端，SQL Store 与 Redis 存储都实现它。
type EntryStore interface {
	GetCacheEntry(stage, cacheKey string) (*CacheEntryRecord, error)
	PutCacheEntry(entry CacheEntryRecord) error
	TouchCacheEntry(stage, cacheKey string) error
	DeleteCacheEntry(stage, cacheKey string) error
	CacheStats() ([]CacheStat, error)
	CacheEntriesOlderThan(cutoff time.Time) ([]CacheEntryRecord, error)
}

// CacheManager 确定性阶段的内容寻址缓存。
// 负载落在文件系统，元数据走 EntryStore；命中必须与重算结果逐字节等价。
type CacheManager struct {
	cacheDir string
	store    EntryStore
	scope    Scope
	logger   *zap.Logger
}

// NewCacheManager 创建缓存管理器，负载目录为 baseDir/cache。
func NewCacheManager(baseDir string, store EntryStore, scope Scope, logger *zap.Logger) (*CacheManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cacheDir := filepath.Join(baseDir, "cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &CacheManager{
		cacheDir: cacheDir,
		store:    store,
		scope:    scope,
		logger:   logger.With(zap.String("component", "cache_manager")),
	}, nil
}

// Scope 返回当前作用域。
func (m *CacheManager) Scope() Scope { return m.scope }

// EnabledFor 判断某阶段是否可缓存。
func (m *CacheManager) EnabledFor(stage string) bool {
	if m == nil || m.scope != ScopeDeterministic {
		return false
	}
	_, ok := deterministicStages[stage]
	return ok
}

// GetJSON 读取结构化负载。未命中、文件缺失或损坏都返回 false 触发重算。
func (m *CacheManager) GetJSON(stage, key string, out any) (bool, error) {
	raw, hit, err := m.read(stage, key)
	if err != nil || !hit {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		m.logger.Warn("corrupt cache payload, treating as miss",
			zap.String("stage", stage), zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// SetJSON 写入结构化负载。向未启用的阶段写入是配置错误。
func (m *CacheManager) SetJSON(stage, key string, payload any) error {
	if !m.EnabledFor(stage) {
		return fmt.Errorf("cache stage not enabled: %s", stage)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal cache payload: %w", err)
	}
	return m.write(stage, key, "json", raw)
}

// GetVectors 读取 float32 矩阵负载。
func (m *CacheManager) GetVectors(stage, key string) ([][]float32, bool, error) {
	raw, hit, err := m.read(stage, key)
	if err != nil || !hit {
		return nil, false, err
	}
	vectors, err := decodeVectors(raw)
	if err != nil {
		m.logger.Warn("corrupt vector payload, treating as miss",
			zap.String("stage", stage), zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return vectors, true, nil
}

// SetVectors 写入 float32 矩阵负载。
func (m *CacheManager) SetVectors(stage, key string, vectors [][]float32) error {
	if !m.EnabledFor(stage) {
		return fmt.Errorf("cache stage not enabled: %s", stage)
	}
	raw, err := encodeVectors(vectors)
	if err != nil {
		return err
	}
	return m.write(stage, key, "vec", raw)
}

// Stats 返回每阶段条目计数。
func (m *CacheManager) Stats() ([]CacheStat, error) {
	return m.store.CacheStats()
}

// PruneOlderThan 无条件删除创建时间早于 cutoff 天数的条目及其负载文件，
// 不看最近访问时间。返回删除数量。
func (m *CacheManager) PruneOlderThan(days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	entries, err := m.store.CacheEntriesOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove cache payload %s: %w", entry.Path, err)
		}
		if err := m.store.DeleteCacheEntry(entry.Stage, entry.CacheKey); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (m *CacheManager) read(stage, key string) ([]byte, bool, error) {
	if !m.EnabledFor(stage) {
		return nil, false, nil
	}
	entry, err := m.store.GetCacheEntry(stage, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	raw, err := os.ReadFile(entry.Path)
	if err != nil {
		// 文件丢了按未命中处理，重算即可。
		return nil, false, nil
	}
	if err := m.store.TouchCacheEntry(stage, key); err != nil {
		m.logger.Warn("touch cache entry failed", zap.String("stage", stage), zap.Error(err))
	}
	return raw, true, nil
}

// write 落盘走临时文件加原子 rename，同键并发写互不破坏。
func (m *CacheManager) write(stage, key, ext string, raw []byte) error {
	dir := filepath.Join(m.cacheDir, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stage dir: %w", err)
	}
	path := filepath.Join(dir, key+"."+ext)

	tmp, err := os.CreateTemp(dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp payload: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close payload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename payload: %w", err)
	}

	return m.store.PutCacheEntry(CacheEntryRecord{
		Stage:       stage,
		CacheKey:    key,
		ContentHash: Sha256Bytes(raw),
		Path:        path,
		CreatedAt:   time.Now().UTC(),
	})
}

// 矩阵负载格式: uint32 行数、uint32 列数、行优先 float32 数据，小端。
func encodeVectors(vectors [][]float32) ([]byte, error) {
	rows := len(vectors)
	cols := 0
	if rows > 0 {
		cols = len(vectors[0])
	}
	buf := make([]byte, 8, 8+rows*cols*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rows))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(cols))
	for _, row := range vectors {
		if len(row) != cols {
			return nil, fmt.Errorf("ragged vector rows: %d != %d", len(row), cols)
		}
		for _, v := range row {
			var cell [4]byte
			binary.LittleEndian.PutUint32(cell[:], math.Float32bits(v))
			buf = append(buf, cell[:]...)
		}
	}
	return buf, nil
}

func decodeVectors(raw []byte) ([][]float32, error) {
	if len(raw) < 8 {
		return nil, errors.New("vector payload too short")
	}
	rows := int(binary.LittleEndian.Uint32(raw[0:4]))
	cols := int(binary.LittleEndian.Uint32(raw[4:8]))
	if len(raw) != 8+rows*cols*4 {
		return nil, fmt.Errorf("vector payload size mismatch: %d bytes for %dx%d", len(raw), rows, cols)
	}
	vectors := make([][]float32, rows)
	offset := 8
	for i := range vectors {
		row := make([]float32, cols)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[offset : offset+4]))
			offset += 4
		}
		vectors[i] = row
	}
	return vectors, nil
}
