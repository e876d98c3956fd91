package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
)

func TestNextCursor_StructuredAfter(t *testing.T) {
	resp := &hubspot.SearchResponse{
		Paging: &hubspot.Paging{Next: &hubspot.PagingNext{After: "abc"}},
	}
	assert.Equal(t, "abc", nextCursor(resp))
}

func TestNextCursor_LinkAfter(t *testing.T) {
	resp := &hubspot.SearchResponse{
		Paging: &hubspot.Paging{Next: &hubspot.PagingNext{
			Link: "https://api.hubapi.com/crm/v3/objects/deals/search?after=xyz&limit=100",
		}},
	}
	assert.Equal(t, "xyz", nextCursor(resp))
}

func TestNextCursor_FlatOffset(t *testing.T) {
	resp := &hubspot.SearchResponse{Offset: "200"}
	assert.Equal(t, "200", nextCursor(resp))
}

func TestNextCursor_Exhausted(t *testing.T) {
	assert.Empty(t, nextCursor(&hubspot.SearchResponse{}))
	assert.Empty(t, nextCursor(&hubspot.SearchResponse{Paging: &hubspot.Paging{}}))
}

func TestFetchModifiedSince_FollowsPages(t *testing.T) {
	r := newRig(t)
	page1 := dealPage(dealRecord("1", "1000", ""), dealRecord("2", "2000", ""))
	page1.Paging = &hubspot.Paging{Next: &hubspot.PagingNext{After: "next"}}
	page2 := dealPage(dealRecord("3", "3000", ""))
	r.crm.pages["deals"] = []*hubspot.SearchResponse{page1, page2}

	p := NewPaginator(r.crm, r.rotator, nil)
	p.PageDelay = 0

	records, err := p.FetchModifiedSince(context.Background(), model.KindDeal, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[0].ID())
	assert.Equal(t, "3", records[2].ID())
	assert.Equal(t, 2, r.crm.searchCalls)
}

func TestFetchModifiedSince_RecordCap(t *testing.T) {
	r := newRig(t)
	page := dealPage(dealRecord("1", "1000", ""), dealRecord("2", "2000", ""), dealRecord("3", "3000", ""))
	page.Paging = &hubspot.Paging{Next: &hubspot.PagingNext{After: "more"}}
	r.crm.pages["deals"] = []*hubspot.SearchResponse{page}

	p := NewPaginator(r.crm, r.rotator, nil)
	p.PageDelay = 0
	p.MaxRecords = 2

	records, err := p.FetchModifiedSince(context.Background(), model.KindDeal, time.Time{})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, r.crm.searchCalls)
}

func TestFetchModifiedSince_DealStageFilter(t *testing.T) {
	r := newRig(t)
	r.crm.pages["deals"] = []*hubspot.SearchResponse{dealPage(dealRecord("1", "1000", ""))}

	p := NewPaginator(r.crm, r.rotator, nil)
	p.PageDelay = 0
	p.DealStages = []string{"closedwon", "closedlost"}

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := p.FetchModifiedSince(context.Background(), model.KindDeal, since)
	require.NoError(t, err)

	require.Len(t, r.crm.lastSearch.FilterGroups, 1)
	filters := r.crm.lastSearch.FilterGroups[0].Filters
	require.Len(t, filters, 2)
	assert.Equal(t, "hs_lastmodifieddate", filters[0].PropertyName)
	assert.Equal(t, "GTE", filters[0].Operator)
	assert.Equal(t, "dealstage", filters[1].PropertyName)
	assert.Equal(t, "IN", filters[1].Operator)
	assert.Equal(t, []string{"closedwon", "closedlost"}, filters[1].Values)
}

func TestFetchModifiedSince_StageFilterOnlyAppliesToDeals(t *testing.T) {
	r := newRig(t)
	r.crm.pages["contacts"] = []*hubspot.SearchResponse{{}}

	p := NewPaginator(r.crm, r.rotator, nil)
	p.PageDelay = 0
	p.DealStages = []string{"closedwon"}

	_, err := p.FetchModifiedSince(context.Background(), model.KindContact, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, r.crm.lastSearch.FilterGroups)
}

func TestLastModifiedProperty(t *testing.T) {
	assert.Equal(t, "lastmodifieddate", lastModifiedProperty(model.KindContact))
	assert.Equal(t, "hs_lastmodifieddate", lastModifiedProperty(model.KindDeal))
	assert.Equal(t, "hs_lastmodifieddate", lastModifiedProperty(model.KindCompany))
}
