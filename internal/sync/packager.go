package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fitscore-cli/internal/crmauth"
	"github.com/sells-group/fitscore-cli/internal/model"
	"github.com/sells-group/fitscore-cli/pkg/hubspot"
)

// Packager turns a CRM record plus its one-hop associations into a
// privacy-scrubbed embeddable document. Only the fixed schema reaches the
// document text; names, emails, and free-form properties never do.
type Packager struct {
	crm      hubspot.Client
	rotator  *crmauth.Rotator
	portalID string
	log      *zap.Logger

	// now is injectable for deterministic day math in tests.
	now func() time.Time
}

// NewPackager creates a Packager for one portal.
func NewPackager(crm hubspot.Client, rotator *crmauth.Rotator, portalID string, log *zap.Logger) *Packager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Packager{crm: crm, rotator: rotator, portalID: portalID, log: log, now: time.Now}
}

// DocumentID returns the stable index id for a record.
func DocumentID(kind model.RecordKind, id string) string {
	return kind.Singular() + "-" + id
}

// Package builds the document for one record. Missing associated records are
// tolerated: the section is simply omitted.
func (p *Packager) Package(ctx context.Context, rec model.Record) (*model.Document, error) {
	switch rec.Kind {
	case model.KindDeal:
		return p.packageDeal(ctx, rec.Deal)
	case model.KindCompany:
		return p.packageCompany(rec.Company), nil
	case model.KindContact:
		return p.packageContact(ctx, rec.Contact)
	}
	return nil, eris.Errorf("sync: cannot package record kind %q", rec.Kind)
}

func (p *Packager) packageDeal(ctx context.Context, d *model.Deal) (*model.Document, error) {
	sc := &model.StructuredContent{
		Primary: model.PrimaryBlock{
			Title:          "Deal " + d.ID,
			Description:    "CRM deal record for fit analysis.",
			Classification: model.FitBand(d.FitScore),
		},
	}

	dealSec := model.Section{Name: "Deal"}
	if d.Amount != nil {
		dealSec.Properties = append(dealSec.Properties, model.Property{
			Label: "Deal value", Value: formatAmount(*d.Amount),
		})
	}
	if d.Pipeline != "" {
		dealSec.Properties = append(dealSec.Properties, model.Property{Label: "Pipeline", Value: d.Pipeline})
	}
	if d.Stage != "" {
		dealSec.Properties = append(dealSec.Properties, model.Property{Label: "Stage", Value: d.Stage})
	}
	if days, ok := d.ConversionDays(); ok {
		dealSec.Properties = append(dealSec.Properties, model.Property{
			Label: "Days to close", Value: strconv.Itoa(days),
		})
	}
	if days, ok := d.DaysInPipeline(p.now()); ok {
		dealSec.Properties = append(dealSec.Properties, model.Property{
			Label: "Days in pipeline", Value: strconv.Itoa(days),
		})
	}
	sc.Sections = append(sc.Sections, dealSec)

	if companySec := p.associatedCompanySection(ctx, model.KindDeal, d.ID); companySec != nil {
		sc.Sections = append(sc.Sections, *companySec)
	}
	if contactSec := p.associatedContactSection(ctx, model.KindDeal, d.ID); contactSec != nil {
		sc.Sections = append(sc.Sections, *contactSec)
	}

	meta := map[string]any{
		model.MetaPortalID:     p.portalID,
		model.MetaRecordKind:   string(model.KindDeal),
		model.MetaLastModified: model.MetaTime(d.LastModified),
	}
	if d.Amount != nil {
		meta[model.MetaDealValue] = *d.Amount
	}
	if days, ok := d.ConversionDays(); ok {
		meta[model.MetaConversionDays] = float64(days)
	}
	if d.Pipeline != "" {
		meta[model.MetaPipeline] = d.Pipeline
	}
	if d.Stage != "" {
		meta[model.MetaDealStage] = d.Stage
	}
	if days, ok := d.DaysInPipeline(p.now()); ok {
		meta[model.MetaDaysInPipeline] = float64(days)
	}
	if d.FitScore != nil {
		meta[model.MetaLLMScore] = *d.FitScore
		if label := classificationFor(*d.FitScore); label != "" {
			meta[model.MetaClassification] = label
		}
	}

	return &model.Document{
		ID:         DocumentID(model.KindDeal, d.ID),
		Content:    sc.Flatten(),
		Metadata:   meta,
		Structured: sc,
	}, nil
}

func (p *Packager) packageCompany(c *model.Company) *model.Document {
	sc := &model.StructuredContent{
		Primary: model.PrimaryBlock{
			Title:          "Company " + c.ID,
			Description:    "CRM company record for fit analysis.",
			Classification: model.FitBand(c.FitScore),
		},
	}

	sec := model.Section{Name: "Company"}
	if c.Industry != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Industry", Value: c.Industry})
	}
	sec.Properties = append(sec.Properties, model.Property{
		Label: "Company size", Value: model.SizeBucket(c.Employees),
	})
	if c.AnnualRevenue != nil {
		sec.Properties = append(sec.Properties, model.Property{
			Label: "Annual revenue", Value: formatAmount(*c.AnnualRevenue),
		})
	}
	if c.LifecycleStage != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Lifecycle stage", Value: c.LifecycleStage})
	}
	if c.Country != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Country", Value: c.Country})
	}
	if c.FoundedYear != nil {
		sec.Properties = append(sec.Properties, model.Property{
			Label: "Founded", Value: strconv.Itoa(*c.FoundedYear),
		})
	}
	sc.Sections = append(sc.Sections, sec)

	meta := map[string]any{
		model.MetaPortalID:     p.portalID,
		model.MetaRecordKind:   string(model.KindCompany),
		model.MetaLastModified: model.MetaTime(c.LastModified),
	}
	if c.FitScore != nil {
		meta[model.MetaLLMScore] = *c.FitScore
		if label := classificationFor(*c.FitScore); label != "" {
			meta[model.MetaClassification] = label
		}
	}

	return &model.Document{
		ID:         DocumentID(model.KindCompany, c.ID),
		Content:    sc.Flatten(),
		Metadata:   meta,
		Structured: sc,
	}
}

func (p *Packager) packageContact(ctx context.Context, c *model.Contact) (*model.Document, error) {
	sc := &model.StructuredContent{
		Primary: model.PrimaryBlock{
			Title:          "Contact " + c.ID,
			Description:    "CRM contact record for fit analysis.",
			Classification: model.FitBand(c.FitScore),
		},
	}

	sec := model.Section{Name: "Contact"}
	if c.JobTitle != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Job title", Value: c.JobTitle})
	}
	if c.Seniority != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Seniority", Value: c.Seniority})
	}
	if c.Industry != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Industry", Value: c.Industry})
	}
	if c.LifecycleStage != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Lifecycle stage", Value: c.LifecycleStage})
	}
	if c.Country != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Country", Value: c.Country})
	}
	sc.Sections = append(sc.Sections, sec)

	if c.CompanyID != "" {
		if companySec := p.companySectionByID(ctx, c.CompanyID); companySec != nil {
			sc.Sections = append(sc.Sections, *companySec)
		}
	}

	meta := map[string]any{
		model.MetaPortalID:     p.portalID,
		model.MetaRecordKind:   string(model.KindContact),
		model.MetaLastModified: model.MetaTime(c.LastModified),
	}
	if c.FitScore != nil {
		meta[model.MetaLLMScore] = *c.FitScore
		if label := classificationFor(*c.FitScore); label != "" {
			meta[model.MetaClassification] = label
		}
	}

	return &model.Document{
		ID:         DocumentID(model.KindContact, c.ID),
		Content:    sc.Flatten(),
		Metadata:   meta,
		Structured: sc,
	}, nil
}

// associatedCompanySection resolves the record's first associated company.
// Association and fetch failures degrade to a missing section.
func (p *Packager) associatedCompanySection(ctx context.Context, kind model.RecordKind, id string) *model.Section {
	assocs, err := crmauth.Authed(ctx, p.rotator, func(ctx context.Context) ([]hubspot.Association, error) {
		return p.crm.GetAssociations(ctx, string(kind), id, string(model.KindCompany))
	})
	if err != nil || len(assocs) == 0 {
		if err != nil {
			p.log.Debug("company association lookup failed",
				zap.String("record_id", id), zap.Error(err))
		}
		return nil
	}
	return p.companySectionByID(ctx, assocs[0].ID)
}

func (p *Packager) companySectionByID(ctx context.Context, companyID string) *model.Section {
	raw, err := crmauth.Authed(ctx, p.rotator, func(ctx context.Context) (*hubspot.Record, error) {
		return p.crm.GetRecord(ctx, string(model.KindCompany), companyID, model.CompanyProperties)
	})
	if err != nil {
		if !hubspot.IsNotFound(err) {
			p.log.Debug("associated company fetch failed",
				zap.String("company_id", companyID), zap.Error(err))
		}
		return nil
	}

	company := func() *model.Company {
		rec, _ := model.ParseRecord(model.KindCompany, raw.ID, raw.Properties)
		return rec.Company
	}()

	sec := model.Section{Name: "Company"}
	if company.Industry != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Industry", Value: company.Industry})
	}
	sec.Properties = append(sec.Properties, model.Property{
		Label: "Company size", Value: model.SizeBucket(company.Employees),
	})
	if company.AnnualRevenue != nil {
		sec.Properties = append(sec.Properties, model.Property{
			Label: "Annual revenue", Value: formatAmount(*company.AnnualRevenue),
		})
	}
	if company.Country != "" {
		sec.Properties = append(sec.Properties, model.Property{Label: "Country", Value: company.Country})
	}
	if len(sec.Properties) == 0 {
		return nil
	}
	return &sec
}

// associatedContactSection summarizes the roles of associated contacts
// without carrying any identifying detail.
func (p *Packager) associatedContactSection(ctx context.Context, kind model.RecordKind, id string) *model.Section {
	assocs, err := crmauth.Authed(ctx, p.rotator, func(ctx context.Context) ([]hubspot.Association, error) {
		return p.crm.GetAssociations(ctx, string(kind), id, string(model.KindContact))
	})
	if err != nil || len(assocs) == 0 {
		return nil
	}

	sec := model.Section{Name: "Contacts"}
	for _, assoc := range assocs {
		raw, err := crmauth.Authed(ctx, p.rotator, func(ctx context.Context) (*hubspot.Record, error) {
			return p.crm.GetRecord(ctx, string(model.KindContact), assoc.ID, model.ContactProperties)
		})
		if err != nil {
			continue
		}
		rec, _ := model.ParseRecord(model.KindContact, raw.ID, raw.Properties)
		title := rec.Contact.JobTitle
		if title == "" {
			title = "Unknown role"
		}
		sec.Properties = append(sec.Properties, model.Property{Label: "Role", Value: title})
	}
	if len(sec.Properties) == 0 {
		return nil
	}
	return &sec
}

// classificationFor maps a stored fit score onto the reference label used in
// stats tracking. Mid-band scores carry no label.
func classificationFor(score float64) string {
	switch {
	case score > 80:
		return string(model.ClassIdeal)
	case score < 50:
		return string(model.ClassNonIdeal)
	default:
		return ""
	}
}

func formatAmount(v float64) string {
	return fmt.Sprintf("$%.0f", v)
}
