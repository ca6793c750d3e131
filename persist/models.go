package persist

import "time"

// 可缓存的确定性阶段。
const (
	StagePreprocess = "preprocess"
	StageBM25Index  = "bm25_index"
	StageDocVectors = "splade_doc_vectors"
)

// DocumentRecord 已登记的文档，按内容 sha256 去重。
type DocumentRecord struct {
	DocID     string    `gorm:"column:doc_id;primaryKey"`
	SHA256    string    `gorm:"column:sha256;uniqueIndex;not null"`
	Filename  string    `gorm:"column:filename"`
	Bytes     int64     `gorm:"column:bytes"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (DocumentRecord) TableName() string { return "documents" }

// RunRecord 一次流水线运行的溯源记录。
// CompletedAt 写入后记录不可再变更。
type RunRecord struct {
	RunID              string     `gorm:"column:run_id;primaryKey"`
	DocID              string     `gorm:"column:doc_id;index"`
	Status             string     `gorm:"column:status;not null"` // running | completed | failed
	CreatedAt          time.Time  `gorm:"column:created_at;not null"`
	CompletedAt        *time.Time `gorm:"column:completed_at"`
	OptionsJSON        string     `gorm:"column:options_json"`
	OptionsHash        string     `gorm:"column:options_hash"`
	CodeVersion        string     `gorm:"column:code_version"`
	QuestionSetVersion string     `gorm:"column:question_set_version"`
	RuntimeMS          *int64     `gorm:"column:runtime_ms"`
	WarningsJSON       string     `gorm:"column:warnings_json"`
}

func (RunRecord) TableName() string { return "runs" }

// ArtifactRecord 内容寻址的产物文件。
type ArtifactRecord struct {
	ArtifactID  string    `gorm:"column:artifact_id;primaryKey"`
	ContentHash string    `gorm:"column:content_hash;index;not null"`
	Type        string    `gorm:"column:type;not null"`
	Path        string    `gorm:"column:path;not null"`
	Bytes       int64     `gorm:"column:bytes;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (ArtifactRecord) TableName() string { return "artifacts" }

// RunArtifact 运行与产物的关联。
type RunArtifact struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"column:run_id;index;not null"`
	ArtifactID string `gorm:"column:artifact_id;not null"`
	Type       string `gorm:"column:type;not null"`
}

func (RunArtifact) TableName() string { return "run_artifacts" }

// CacheEntryRecord 缓存条目元数据，负载本体在文件系统。
type CacheEntryRecord struct {
	Stage        string     `gorm:"column:stage;primaryKey"`
	CacheKey     string     `gorm:"column:cache_key;primaryKey"`
	ContentHash  string     `gorm:"column:content_hash;not null"`
	Path         string     `gorm:"column:path;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	LastAccessed *time.Time `gorm:"column:last_accessed"`
}

func (CacheEntryRecord) TableName() string { return "cache_entries" }

// CacheStat 单阶段的缓存条目计数。
type CacheStat struct {
	Stage string `json:"stage"`
	Count int64  `json:"count"`
}
