package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordKind(t *testing.T) {
	k, err := ParseRecordKind(" Deals ")
	require.NoError(t, err)
	assert.Equal(t, KindDeal, k)

	_, err = ParseRecordKind("tickets")
	assert.Error(t, err)
}

func TestParseDeal(t *testing.T) {
	rec, err := ParseRecord(KindDeal, "901", map[string]string{
		"amount":               "50000",
		"pipeline":             "default",
		"dealstage":            "closedwon",
		"createdate":           "2026-01-10T00:00:00Z",
		"closedate":            "2026-02-09T00:00:00Z",
		"hs_lastmodifieddate":  "1770000000000",
		"ai_fit_score":         "92.5",
		"custom_source_detail": "webinar",
	})
	require.NoError(t, err)
	d := rec.Deal
	require.NotNil(t, d)

	assert.Equal(t, "901", rec.ID())
	require.NotNil(t, d.Amount)
	assert.Equal(t, 50000.0, *d.Amount)
	assert.Equal(t, "closedwon", d.Stage)
	require.NotNil(t, d.FitScore)
	assert.Equal(t, 92.5, *d.FitScore)
	// Unknown property goes to the side channel, not a silently dropped field.
	assert.Equal(t, "webinar", d.Extra["custom_source_detail"])
	// Epoch-millis timestamp parses.
	assert.False(t, d.LastModified.IsZero())

	days, ok := d.ConversionDays()
	require.True(t, ok)
	assert.Equal(t, 30, days)
}

func TestParseDeal_MissingDates(t *testing.T) {
	rec, err := ParseRecord(KindDeal, "1", map[string]string{"amount": ""})
	require.NoError(t, err)
	d := rec.Deal

	assert.Nil(t, d.Amount)
	_, ok := d.ConversionDays()
	assert.False(t, ok)
	_, ok = d.DaysInPipeline(time.Now())
	assert.False(t, ok)
}

func TestParseDeal_DaysInPipelineOpen(t *testing.T) {
	created := time.Now().UTC().Add(-72 * time.Hour).Format(time.RFC3339)
	rec, err := ParseRecord(KindDeal, "2", map[string]string{"createdate": created})
	require.NoError(t, err)

	days, ok := rec.Deal.DaysInPipeline(time.Now().UTC())
	require.True(t, ok)
	assert.Equal(t, 3, days)
}

func TestParseCompany(t *testing.T) {
	rec, err := ParseRecord(KindCompany, "77", map[string]string{
		"industry":          "COMPUTER_SOFTWARE",
		"numberofemployees": "42",
		"annualrevenue":     "1500000.50",
	})
	require.NoError(t, err)
	c := rec.Company
	require.NotNil(t, c)
	require.NotNil(t, c.Employees)
	assert.Equal(t, 42, *c.Employees)
	require.NotNil(t, c.AnnualRevenue)
	assert.Equal(t, 1500000.50, *c.AnnualRevenue)
}

func TestParseContact(t *testing.T) {
	rec, err := ParseRecord(KindContact, "33", map[string]string{
		"jobtitle":            "VP Engineering",
		"industry":            "fintech",
		"associatedcompanyid": "77",
	})
	require.NoError(t, err)
	c := rec.Contact
	require.NotNil(t, c)
	assert.Equal(t, "VP Engineering", c.JobTitle)
	assert.Equal(t, "77", c.CompanyID)
	assert.Nil(t, c.FitScore)
}

func TestFitBand(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	assert.Equal(t, "Unknown", FitBand(nil))
	assert.Equal(t, "Ideal", FitBand(f(81)))
	assert.Equal(t, "Neutral", FitBand(f(80)))
	assert.Equal(t, "Neutral", FitBand(f(50)))
	assert.Equal(t, "Less Ideal", FitBand(f(49.9)))
}

func TestSizeBucket(t *testing.T) {
	n := func(v int) *int { return &v }

	assert.Equal(t, "Unknown", SizeBucket(nil))
	assert.Equal(t, "Micro", SizeBucket(n(9)))
	assert.Equal(t, "Small", SizeBucket(n(10)))
	assert.Equal(t, "Small", SizeBucket(n(49)))
	assert.Equal(t, "Medium", SizeBucket(n(249)))
	assert.Equal(t, "Large", SizeBucket(n(250)))
}

func TestFlatten(t *testing.T) {
	sc := &StructuredContent{
		Primary: PrimaryBlock{
			Title:          "Deal in pipeline default",
			Description:    "A closed won software deal",
			Classification: "Ideal",
		},
		Sections: []Section{
			{Name: "Deal", Properties: []Property{
				{Label: "Stage", Value: "closedwon"},
				{Label: "Amount", Value: "50,000"},
			}},
			{Name: "Empty"},
		},
	}

	out := sc.Flatten()
	assert.Contains(t, out, "Deal in pipeline default")
	assert.Contains(t, out, "Fit classification: Ideal")
	assert.Contains(t, out, "[Deal]\nStage: closedwon")
	assert.NotContains(t, out, "[Empty]")
}
