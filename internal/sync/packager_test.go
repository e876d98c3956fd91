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

func TestPackageDeal(t *testing.T) {
	r := newRig(t)
	r.crm.assocs["deals/901/companies"] = []hubspot.Association{{ID: "55"}}
	r.crm.records["companies/55"] = &hubspot.Record{ID: "55", Properties: map[string]string{
		"industry":          "Manufacturing",
		"numberofemployees": "120",
		"annualrevenue":     "5000000",
		"country":           "US",
	}}

	p := NewPackager(r.crm, r.rotator, "12345", nil)
	p.now = func() time.Time { return time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC) }

	rec, err := model.ParseRecord(model.KindDeal, "901", dealRecord("901", "50000", "92").Properties)
	require.NoError(t, err)

	doc, err := p.Package(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, "deal-901", doc.ID)
	assert.Contains(t, doc.Content, "Deal 901")
	assert.Contains(t, doc.Content, "Fit classification: Ideal")
	assert.Contains(t, doc.Content, "Deal value: $50000")
	assert.Contains(t, doc.Content, "Days to close: 30")
	assert.Contains(t, doc.Content, "[Company]")
	assert.Contains(t, doc.Content, "Industry: Manufacturing")
	assert.Contains(t, doc.Content, "Company size: Medium")

	assert.Equal(t, "12345", doc.Metadata[model.MetaPortalID])
	assert.Equal(t, 50000.0, doc.Metadata[model.MetaDealValue])
	assert.Equal(t, 30.0, doc.Metadata[model.MetaConversionDays])
	assert.Equal(t, "closedwon", doc.Metadata[model.MetaDealStage])
	assert.Equal(t, "ideal", doc.Metadata[model.MetaClassification])
	assert.Equal(t, 92.0, doc.Metadata[model.MetaLLMScore])
}

func TestPackageDeal_MissingCompanyTolerated(t *testing.T) {
	r := newRig(t)
	// Association points at a company that no longer exists.
	r.crm.assocs["deals/901/companies"] = []hubspot.Association{{ID: "gone"}}

	p := NewPackager(r.crm, r.rotator, "12345", nil)
	rec, err := model.ParseRecord(model.KindDeal, "901", dealRecord("901", "50000", "").Properties)
	require.NoError(t, err)

	doc, err := p.Package(context.Background(), rec)
	require.NoError(t, err)
	assert.NotContains(t, doc.Content, "[Company]")
	assert.NotContains(t, doc.Metadata, model.MetaClassification)
	assert.NotContains(t, doc.Metadata, model.MetaLLMScore)
}

func TestPackageDeal_MidBandScoreHasNoClassification(t *testing.T) {
	r := newRig(t)
	p := NewPackager(r.crm, r.rotator, "12345", nil)

	rec, err := model.ParseRecord(model.KindDeal, "901", dealRecord("901", "50000", "65").Properties)
	require.NoError(t, err)

	doc, err := p.Package(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 65.0, doc.Metadata[model.MetaLLMScore])
	assert.NotContains(t, doc.Metadata, model.MetaClassification)
	assert.Contains(t, doc.Content, "Fit classification: Neutral")
}

func TestPackageContact_RedactsToRoleData(t *testing.T) {
	r := newRig(t)
	p := NewPackager(r.crm, r.rotator, "12345", nil)

	rec, err := model.ParseRecord(model.KindContact, "7", map[string]string{
		"jobtitle":         "VP Operations",
		"seniority":        "vp",
		"country":          "US",
		"email":            "jane@example.com",
		"firstname":        "Jane",
		"lastmodifieddate": "2026-08-20T00:00:00Z",
	})
	require.NoError(t, err)

	doc, err := p.Package(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "contact-7", doc.ID)
	assert.Contains(t, doc.Content, "Job title: VP Operations")
	// Unmapped properties stay out of the document entirely.
	assert.NotContains(t, doc.Content, "jane@example.com")
	assert.NotContains(t, doc.Content, "Jane")
}

func TestPackageCompany(t *testing.T) {
	r := newRig(t)
	p := NewPackager(r.crm, r.rotator, "12345", nil)

	rec, err := model.ParseRecord(model.KindCompany, "55", map[string]string{
		"industry":            "SaaS",
		"numberofemployees":   "8",
		"hs_lastmodifieddate": "2026-08-20T00:00:00Z",
	})
	require.NoError(t, err)

	doc, err := p.Package(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "company-55", doc.ID)
	assert.Contains(t, doc.Content, "Company size: Micro")
	assert.Equal(t, "companies", doc.Metadata[model.MetaRecordKind])
}
