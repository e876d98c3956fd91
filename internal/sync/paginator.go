// Package sync implements the CRM-to-index pipeline: page modified records
// out of the CRM, package them into embeddable documents, embed in chunks,
// and upsert only what changed.
package sync

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/crmauth"
	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
)

// lastModifiedProperty names the CRM search property used for incremental
// filtering. Contacts use a different property name than the other kinds.
func lastModifiedProperty(kind model.RecordKind) string {
	if kind == model.KindContact {
		return "lastmodifieddate"
	}
	return "hs_lastmodifieddate"
}

// Paginator walks the CRM search API page by page, following whichever
// cursor shape the portal's API vintage returns.
type Paginator struct {
	crm     hubspot.Client
	rotator *crmauth.Rotator
	log     *zap.Logger

	PageSize   int
	PageDelay  time.Duration
	MaxRecords int
	// DealStages, when set, restricts deal searches to these pipeline
	// stages. Other kinds ignore it.
	DealStages []string
}

// NewPaginator creates a Paginator with the default page shape.
func NewPaginator(crm hubspot.Client, rotator *crmauth.Rotator, log *zap.Logger) *Paginator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Paginator{
		crm:        crm,
		rotator:    rotator,
		log:        log,
		PageSize:   100,
		PageDelay:  250 * time.Millisecond,
		MaxRecords: 10000,
	}
}

// FetchModifiedSince returns all records of the kind modified at or after
// since, parsed into the fixed schema, capped at MaxRecords.
func (p *Paginator) FetchModifiedSince(ctx context.Context, kind model.RecordKind, since time.Time) ([]model.Record, error) {
	req := hubspot.SearchRequest{
		Properties: model.PropertiesFor(kind),
		Limit:      p.PageSize,
		Sorts: []hubspot.Sort{
			{PropertyName: lastModifiedProperty(kind), Direction: "ASCENDING"},
		},
	}
	var filters []hubspot.Filter
	if !since.IsZero() {
		filters = append(filters, hubspot.Filter{
			PropertyName: lastModifiedProperty(kind),
			Operator:     "GTE",
			Value:        model.MetaTime(since),
		})
	}
	if kind == model.KindDeal && len(p.DealStages) > 0 {
		filters = append(filters, hubspot.Filter{
			PropertyName: "dealstage",
			Operator:     "IN",
			Values:       p.DealStages,
		})
	}
	if len(filters) > 0 {
		req.FilterGroups = []hubspot.FilterGroup{{Filters: filters}}
	}

	var out []model.Record
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "sync: paginate cancelled")
		}

		resp, err := crmauth.Authed(ctx, p.rotator, func(ctx context.Context) (*hubspot.SearchResponse, error) {
			return p.crm.SearchRecords(ctx, string(kind), req)
		})
		if err != nil {
			return out, eris.Wrapf(err, "sync: search %s page %d", kind, page)
		}

		for _, raw := range resp.Results {
			rec, err := model.ParseRecord(kind, raw.ID, raw.Properties)
			if err != nil {
				return out, err
			}
			out = append(out, rec)
			if len(out) >= p.MaxRecords {
				p.log.Warn("record cap reached, truncating sync",
					zap.String("kind", string(kind)),
					zap.Int("cap", p.MaxRecords))
				return out, nil
			}
		}

		cursor := nextCursor(resp)
		if cursor == "" {
			return out, nil
		}
		req.After = cursor

		if p.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return out, eris.Wrap(ctx.Err(), "sync: paginate cancelled")
			case <-time.After(p.PageDelay):
			}
		}
	}
}

// nextCursor extracts the continuation cursor, trying the three shapes the
// API has shipped in order: structured after, after inside the next link,
// then the legacy flat offset.
func nextCursor(resp *hubspot.SearchResponse) string {
	if resp.Paging != nil && resp.Paging.Next != nil {
		if resp.Paging.Next.After != "" {
			return resp.Paging.Next.After
		}
		if resp.Paging.Next.Link != "" {
			if u, err := url.Parse(resp.Paging.Next.Link); err == nil {
				if after := u.Query().Get("after"); after != "" {
					return after
				}
			}
		}
	}
	return resp.Offset
}
