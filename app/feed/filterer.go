package feed

import (
	"slices"

	"github.com/lysyi3m/tube-digest/app/channel"
)

type Filterer struct{}

func NewFilterer() *Filterer {
	return &Filterer{}
}

// Run returns the items in input order, marking each one rejected by a
// filter with the reason of the first filter that rejected it.
func (f *Filterer) Run(items []Item, filters []channel.Filter) []Item {
	if len(filters) == 0 {
		return items
	}

	marked := slices.Clone(items)
	for i := range marked {
		for _, filter := range filters {
			if rejected, reason := filter.Reject(fieldValue(marked[i], filter.Field)); rejected {
				marked[i].IsFiltered = true
				marked[i].FilterReason = reason
				break
			}
		}
	}

	return marked
}

func fieldValue(item Item, field string) string {
	switch field {
	case channel.FieldTitle:
		return item.Title
	case channel.FieldLink:
		return item.URL
	}
	return ""
}
