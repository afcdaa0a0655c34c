package output

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tc-outcome/internal/store"
	"github.com/sells-group/tc-outcome/internal/zone"
)

// StoreSink writes the indicator to a store. Every aggregated cell is
// written; cells joined to zone geometry carry it as EWKB.
type StoreSink struct {
	name  string
	store store.Store
}

// NewStoreSink returns a sink named name backed by st.
func NewStoreSink(name string, st store.Store) *StoreSink {
	return &StoreSink{name: name, store: st}
}

func (s *StoreSink) Name() string { return s.name }

func (s *StoreSink) Write(ctx context.Context, ind Indicator) error {
	shapes := make(map[int64]zone.Feature, len(ind.Features))
	for _, f := range ind.Features {
		shapes[f.ID] = f
	}

	recs := make([]store.Record, 0, len(ind.Cells))
	for _, c := range ind.Cells {
		rec := store.Record{Scheme: ind.Scheme, GridCode: c.ID, Value: c.Value}
		if f, ok := shapes[c.ID]; ok {
			g, err := zone.EncodeEWKB(f.Shape, ind.SRID)
			if err != nil {
				return eris.Wrapf(err, "output: encode geometry for cell %d", c.ID)
			}
			rec.Geom = g
		}
		recs = append(recs, rec)
	}

	if _, err := s.store.ReplaceScheme(ctx, ind.Scheme, recs); err != nil {
		return err
	}
	return nil
}
