package view

import (
	"sort"

	"github.com/lit-response/triageboard/event"
)

type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type Summary struct {
	Total      int                    `json:"total"`
	BySeverity map[event.Severity]int `json:"bySeverity"`
	Critical   int                    `json:"critical"` // high or critical
	Approved   int                    `json:"approved"`
	Pending    int                    `json:"pending"`
	Categories []CategoryCount        `json:"categories,omitempty"`
	Analyzed   int                    `json:"analyzed"`
	// MeanEmotion averages the analyzed calls only; nil when none are.
	MeanEmotion     *event.Emotion `json:"meanEmotion,omitempty"`
	DominantEmotion string         `json:"dominantEmotion,omitempty"`
}

func Summarize(calls []event.Event) Summary {
	s := Summary{Total: len(calls), BySeverity: map[event.Severity]int{}}
	for _, sev := range event.Severities {
		s.BySeverity[sev] = 0
	}
	categories := map[string]int{}
	var sum event.Emotion
	for _, e := range calls {
		s.BySeverity[e.Severity]++
		if e.Severity.AtLeastHigh() {
			s.Critical++
		}
		if e.DispatchApproved {
			s.Approved++
		} else {
			s.Pending++
		}
		categories[e.Category]++
		if e.Emotion != nil {
			s.Analyzed++
			for _, l := range event.EmotionLabels {
				sum.Set(l, sum.Score(l)+e.Emotion.Score(l))
			}
		}
	}
	if s.Analyzed > 0 {
		n := float64(s.Analyzed)
		mean := event.Emotion{}
		for _, l := range event.EmotionLabels {
			mean.Set(l, sum.Score(l)/n)
		}
		s.MeanEmotion = &mean
		s.DominantEmotion, _ = mean.Dominant()
	}
	s.Categories = sortedCategories(categories)
	return s
}

// sortedCategories orders by count, then name, so renders are stable.
func sortedCategories(m map[string]int) []CategoryCount {
	out := make([]CategoryCount, 0, len(m))
	for c, n := range m {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}
