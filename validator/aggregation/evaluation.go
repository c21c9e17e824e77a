package aggregation

import (
	"github.com/securefed/go-coordinator/types"
	"math"
	"sort"
)

// AggregateEvaluations computes the example weighted mean loss of evaluations, and the
// weighted mean of every metric over the evaluations that report it. Evaluations
// without examples or with a non finite loss are skipped. ok is false when none is
// left.
func AggregateEvaluations(evaluations []types.Evaluation) (summary types.EvaluationSummary, ok bool) {
	ordered := make([]types.Evaluation, 0, len(evaluations))
	for _, e := range evaluations {
		if e.ExampleCount == 0 || math.IsNaN(e.Loss) || math.IsInf(e.Loss, 0) {
			continue
		}
		ordered = append(ordered, e)
	}
	if len(ordered) == 0 {
		return types.EvaluationSummary{}, false
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].NodeID < ordered[j].NodeID
	})

	var total float64
	for _, e := range ordered {
		summary.ExampleCount += e.ExampleCount
		total += float64(e.ExampleCount)
	}

	metricSums := make(map[string]float64)
	metricWeights := make(map[string]float64)
	summary.EvaluatedNodeIDs = make([]string, 0, len(ordered))
	for _, e := range ordered {
		w := float64(e.ExampleCount)
		summary.Loss += w / total * e.Loss
		summary.EvaluatedNodeIDs = append(summary.EvaluatedNodeIDs, e.NodeID)

		for name, v := range e.Metrics {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			metricSums[name] += w * v
			metricWeights[name] += w
		}
	}

	if len(metricSums) > 0 {
		summary.Metrics = make(map[string]float64, len(metricSums))
		for name, sum := range metricSums {
			summary.Metrics[name] = sum / metricWeights[name]
		}
	}

	return summary, true
}
