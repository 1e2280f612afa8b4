package storage

import (
	"context"
	"errors"

	"github.com/deusflow/stockpulse/internal/news"
)

// MultiStore fans Save out to several stores and loads from the first one
// that has items, so a snapshot file and an archive can be used together.
type MultiStore struct {
	stores []Store
}

func NewMultiStore(stores ...Store) *MultiStore {
	var s []Store
	for _, st := range stores {
		if st != nil {
			s = append(s, st)
		}
	}
	return &MultiStore{stores: s}
}

func (m *MultiStore) Load(ctx context.Context) ([]news.Item, error) {
	var errs []error
	for _, st := range m.stores {
		items, err := st.Load(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	return nil, errors.Join(errs...)
}

func (m *MultiStore) Save(ctx context.Context, items []news.Item) error {
	var errs []error
	for _, st := range m.stores {
		if err := st.Save(ctx, items); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiStore) Close() error {
	var errs []error
	for _, st := range m.stores {
		if err := st.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
