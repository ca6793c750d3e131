package fusion

import (
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/Younthing/eagent-sub001/schema"
)

func genCandidatesByEngine(t *rapid.T, questionID string) map[string][]schema.EvidenceCandidate {
	engines := rapid.SampledFrom([]string{"rule_based", "bm25", "splade"})
	nEngines := rapid.IntRange(1, 3).Draw(t, "n_engines")

	byEngine := make(map[string][]schema.EvidenceCandidate)
	for e := 0; e < nEngines; e++ {
		engine := engines.Draw(t, fmt.Sprintf("engine_%d", e))
		if _, dup := byEngine[engine]; dup {
			continue
		}
		nCands := rapid.IntRange(0, 8).Draw(t, fmt.Sprintf("n_cands_%s", engine))
		candidates := make([]schema.EvidenceCandidate, 0, nCands)
		for c := 0; c < nCands; c++ {
			pid := fmt.Sprintf("p%d", rapid.IntRange(0, 9).Draw(t, fmt.Sprintf("pid_%s_%d", engine, c)))
			candidates = append(candidates, schema.EvidenceCandidate{
				QuestionID:  questionID,
				ParagraphID: pid,
				Text:        "text " + pid,
				Score:       float64(rapid.IntRange(0, 100).Draw(t, fmt.Sprintf("score_%s_%d", engine, c))),
			})
		}
		byEngine[engine] = candidates
	}
	return byEngine
}

// 固定输入下融合输出必须逐字节可复现。
func TestFusionDeterminismProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		byEngine := genCandidatesByEngine(t, "q1")
		cfg := Config{RRFK: rapid.IntRange(1, 100).Draw(t, "rrf_k")}

		first, err := FuseForQuestion("q1", byEngine, cfg)
		if err != nil {
			t.Fatalf("fuse: %v", err)
		}
		second, err := FuseForQuestion("q1", byEngine, cfg)
		if err != nil {
			t.Fatalf("fuse again: %v", err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("fusion output not reproducible:\n%v\n%v", first, second)
		}
	})
}

// 权重量级差距悬殊时浮点求和顺序会改变结果，
// 融合分数必须在重复调用间比特级一致。
func TestFusionScoreStableAcrossCalls(t *testing.T) {
	hit := func(engine string) []schema.EvidenceCandidate {
		return []schema.EvidenceCandidate{{
			QuestionID:  "q1",
			ParagraphID: "p1",
			Text:        "shared paragraph",
			Engine:      engine,
		}}
	}
	byEngine := map[string][]schema.EvidenceCandidate{
		"rule_based": hit("rule_based"),
		"bm25":       hit("bm25"),
		"splade":     hit("splade"),
	}
	// rrf_k=1, rank=1：每个引擎的贡献为 weight/2，量级相差 16 个数量级。
	cfg := Config{
		RRFK: 1,
		EngineWeights: map[string]float64{
			"rule_based": 2e16,
			"bm25":       2,
			"splade":     2,
		},
	}

	first, err := FuseForQuestion("q1", byEngine, cfg)
	if err != nil {
		t.Fatalf("fuse: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected one fused candidate, got %d", len(first))
	}
	for i := 0; i < 2000; i++ {
		again, err := FuseForQuestion("q1", byEngine, cfg)
		if err != nil {
			t.Fatalf("fuse iteration %d: %v", i, err)
		}
		if again[0].FusionScore != first[0].FusionScore {
			t.Fatalf("fusion score drifted at iteration %d: %v != %v", i, again[0].FusionScore, first[0].FusionScore)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("fused output drifted at iteration %d", i)
		}
	}
}

// 融合不变式：support_count == len(supports)，引擎唯一，fusion_rank 连续。
func TestFusionInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		byEngine := genCandidatesByEngine(t, "q1")
		fused, err := FuseForQuestion("q1", byEngine, DefaultConfig())
		if err != nil {
			t.Fatalf("fuse: %v", err)
		}
		for i, candidate := range fused {
			if candidate.FusionRank != i+1 {
				t.Fatalf("fusion_rank %d at position %d", candidate.FusionRank, i)
			}
			if candidate.SupportCount != len(candidate.Supports) {
				t.Fatalf("support_count %d != len(supports) %d", candidate.SupportCount, len(candidate.Supports))
			}
			if candidate.SupportCount < 1 {
				t.Fatalf("support_count must be >= 1")
			}
			seen := map[string]bool{}
			for _, support := range candidate.Supports {
				if seen[support.Engine] {
					t.Fatalf("duplicate engine %s in supports", support.Engine)
				}
				seen[support.Engine] = true
				if support.Rank < 1 {
					t.Fatalf("support rank must be >= 1")
				}
			}
			if i > 0 && fused[i-1].FusionScore < candidate.FusionScore {
				t.Fatalf("fusion scores not descending")
			}
		}
	})
}

// RRF 单调性：双引擎命中的候选严格优于单引擎同排名候选。
func TestRRFMonotonicityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rank := rapid.IntRange(1, 10).Draw(t, "rank")
		pad := func(pid string, upto int) []schema.EvidenceCandidate {
			list := make([]schema.EvidenceCandidate, 0, upto)
			for i := 1; i < upto; i++ {
				list = append(list, schema.EvidenceCandidate{QuestionID: "q1", ParagraphID: fmt.Sprintf("filler_%d", i), Text: "f"})
			}
			return append(list, schema.EvidenceCandidate{QuestionID: "q1", ParagraphID: pid, Text: "t"})
		}

		// both 在两个引擎的 rank 处出现，single 在第三个引擎同一 rank 出现。
		byEngine := map[string][]schema.EvidenceCandidate{
			"bm25":       pad("both", rank),
			"splade":     pad("both", rank),
			"rule_based": pad("single", rank),
		}

		fused, err := FuseForQuestion("q1", byEngine, DefaultConfig())
		if err != nil {
			t.Fatalf("fuse: %v", err)
		}
		positions := map[string]int{}
		scores := map[string]float64{}
		for _, candidate := range fused {
			positions[candidate.ParagraphID] = candidate.FusionRank
			scores[candidate.ParagraphID] = candidate.FusionScore
		}
		if scores["both"] <= scores["single"] {
			t.Fatalf("cross-engine agreement must score strictly higher: both=%v single=%v", scores["both"], scores["single"])
		}
		if positions["both"] >= positions["single"] {
			t.Fatalf("both must rank above single")
		}
	})
}
