package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.stageDuration)
	assert.NotNil(t, collector.judgeCallsTotal)
	assert.NotNil(t, collector.verdictsTotal)
	assert.NotNil(t, collector.cacheHits)
}

func TestCollector_RecordJudgeCall(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordJudgeCall("relevance", "ok", 120*time.Millisecond)
	collector.RecordJudgeCall("relevance", "error", 50*time.Millisecond)

	count := testutil.CollectAndCount(collector.judgeCallsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordCache(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("bm25_index")
	collector.RecordCacheMiss("preprocess")

	assert.Greater(t, testutil.CollectAndCount(collector.cacheHits), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.cacheMisses), 0)
}

// nil 收集器是安全的空操作，流水线无需判空。
func TestNilCollectorIsNoop(t *testing.T) {
	var collector *Collector
	collector.RecordStage("fusion", time.Second)
	collector.RecordJudgeCall("relevance", "ok", time.Second)
	collector.RecordEngineCandidates("bm25", 3)
	collector.RecordVerdict("existence", "pass")
	collector.RecordRetryAttempt()
	collector.RecordRunOutcome("proceed")
	collector.RecordCacheHit("preprocess")
	collector.RecordCacheMiss("preprocess")
}
