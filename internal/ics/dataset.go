package ics

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"ics/internal/model"
)

// Dataset is the materialized, read-only view of the three collaborator
// queries: labeled news, sharing accounts and the news/user relation.
type Dataset struct {
	news     []model.NewsItem
	labels   map[string]model.Label
	users    []string
	sharers  map[string][]string
	relation []model.SharingEvent
}

// NewDataset deduplicates the relation, indexes sharers by news id and
// sorts every view so iteration order is stable.
func NewDataset(news []model.NewsItem, users []string, relation []model.SharingEvent) (*Dataset, error) {
	labels := make(map[string]model.Label, len(news))
	for _, item := range news {
		if item.ID == "" {
			return nil, fmt.Errorf("news item with empty id")
		}
		if !item.Label.Valid() {
			return nil, fmt.Errorf("news %q: invalid label %d", item.ID, item.Label)
		}
		if prev, ok := labels[item.ID]; ok && prev != item.Label {
			return nil, fmt.Errorf("news %q: conflicting labels %s and %s", item.ID, prev, item.Label)
		}
		labels[item.ID] = item.Label
	}

	ids := lo.Keys(labels)
	slices.Sort(ids)
	ordered := lo.Map(ids, func(id string, _ int) model.NewsItem {
		return model.NewsItem{ID: id, Label: labels[id]}
	})

	events := lo.Uniq(lo.Filter(relation, func(ev model.SharingEvent, _ int) bool {
		return ev.NewsID != "" && ev.UserID != ""
	}))
	slices.SortFunc(events, compareEvents)

	sharers := make(map[string][]string)
	for _, ev := range events {
		sharers[ev.NewsID] = append(sharers[ev.NewsID], ev.UserID)
	}

	allUsers := lo.Uniq(append(lo.Compact(slices.Clone(users)), lo.Map(events, func(ev model.SharingEvent, _ int) string {
		return ev.UserID
	})...))
	slices.Sort(allUsers)

	return &Dataset{
		news:     ordered,
		labels:   labels,
		users:    allUsers,
		sharers:  sharers,
		relation: events,
	}, nil
}

func compareEvents(a, b model.SharingEvent) int {
	return cmp.Or(cmp.Compare(a.NewsID, b.NewsID), cmp.Compare(a.UserID, b.UserID))
}

// News returns the labeled corpus ordered by id.
func (d *Dataset) News() []model.NewsItem {
	return slices.Clone(d.news)
}

func (d *Dataset) Label(newsID string) (model.Label, bool) {
	l, ok := d.labels[newsID]
	return l, ok
}

func (d *Dataset) Users() []string {
	return slices.Clone(d.users)
}

// Relation returns the deduplicated sharing events.
func (d *Dataset) Relation() []model.SharingEvent {
	return slices.Clone(d.relation)
}

// Sharers returns the sorted distinct accounts that shared newsID. The
// boolean is false when the news item does not appear in the relation.
func (d *Dataset) Sharers(newsID string) ([]string, bool) {
	s, ok := d.sharers[newsID]
	return slices.Clone(s), ok
}
