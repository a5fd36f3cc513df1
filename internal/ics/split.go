package ics

import (
	"cmp"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/samber/lo"

	"ics/internal/model"
)

// LabelCounts holds the number of news items per label.
type LabelCounts struct {
	Legitimate int
	Fake       int
}

func CountLabels(items []model.NewsItem) LabelCounts {
	var c LabelCounts
	for _, item := range items {
		switch item.Label {
		case model.Legitimate:
			c.Legitimate++
		case model.Fake:
			c.Fake++
		}
	}
	return c
}

func (c LabelCounts) Total() int {
	return c.Legitimate + c.Fake
}

// Split is a disjoint partition of the labeled corpus.
type Split struct {
	Train []model.NewsItem
	Test  []model.NewsItem
}

// TrainCounts returns label counts of the train partition only. These feed
// the smoothing prior; using the full corpus would leak the test set.
func (s Split) TrainCounts() LabelCounts {
	return CountLabels(s.Train)
}

func (s Split) validate() error {
	seen := make(map[string]bool, len(s.Train))
	for _, item := range s.Train {
		if !item.Label.Valid() {
			return fmt.Errorf("train news %q: invalid label %d", item.ID, item.Label)
		}
		seen[item.ID] = true
	}
	for _, item := range s.Test {
		if !item.Label.Valid() {
			return fmt.Errorf("test news %q: invalid label %d", item.ID, item.Label)
		}
		if seen[item.ID] {
			return fmt.Errorf("news %q is in both train and test", item.ID)
		}
	}
	return nil
}

// StratifiedSplit partitions news into train and test so that each label
// keeps its corpus proportion in both partitions, up to rounding. Every
// label needs at least two items. The same seed and input always yield
// the same split.
func StratifiedSplit(news []model.NewsItem, testFraction float64, seed int64) (Split, error) {
	if math.IsNaN(testFraction) || testFraction <= 0 || testFraction >= 1 {
		return Split{}, &ConfigurationError{Field: "TestFraction", Value: testFraction, Reason: "must be in (0, 1)"}
	}

	byLabel := lo.GroupBy(news, func(item model.NewsItem) model.Label { return item.Label })
	rng := rand.New(rand.NewSource(seed))

	var split Split
	for _, label := range model.Labels {
		group := lo.UniqBy(byLabel[label], func(item model.NewsItem) string { return item.ID })
		if len(group) < 2 {
			return Split{}, &InsufficientDataError{Label: label, Count: len(group)}
		}
		slices.SortFunc(group, compareNews)
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })

		nTest := int(math.Round(testFraction * float64(len(group))))
		nTest = min(max(nTest, 1), len(group)-1)

		split.Test = append(split.Test, group[:nTest]...)
		split.Train = append(split.Train, group[nTest:]...)
	}

	slices.SortFunc(split.Train, compareNews)
	slices.SortFunc(split.Test, compareNews)
	return split, nil
}

func compareNews(a, b model.NewsItem) int {
	return cmp.Compare(a.ID, b.ID)
}
