// Package model defines the domain types shared across the sync and scoring
// pipelines: CRM records, embeddable documents, queue items, and the
// per-classification statistics aggregates.
package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RecordKind identifies the CRM object type a record belongs to.
type RecordKind string

const (
	KindContact RecordKind = "contacts"
	KindCompany RecordKind = "companies"
	KindDeal    RecordKind = "deals"
)

// ParseRecordKind validates a user- or API-supplied kind string.
func ParseRecordKind(s string) (RecordKind, error) {
	switch RecordKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindContact:
		return KindContact, nil
	case KindCompany:
		return KindCompany, nil
	case KindDeal:
		return KindDeal, nil
	}
	return "", eris.Errorf("model: unknown record kind %q", s)
}

// Singular returns the singular object name used in prose (prompts, logs).
func (k RecordKind) Singular() string {
	switch k {
	case KindContact:
		return "contact"
	case KindCompany:
		return "company"
	case KindDeal:
		return "deal"
	}
	return string(k)
}

// Contact is the fixed-schema view of a CRM contact. Properties the schema
// does not name are preserved in Extra rather than silently dropped.
type Contact struct {
	ID             string
	JobTitle       string
	Industry       string
	LifecycleStage string
	Country        string
	Seniority      string
	CompanyID      string
	FitScore       *float64
	FitSummary     string
	LastScored     *time.Time
	LastModified   time.Time

	Extra map[string]string
}

// Company is the fixed-schema view of a CRM company.
type Company struct {
	ID             string
	Industry       string
	Employees      *int
	AnnualRevenue  *float64
	LifecycleStage string
	Country        string
	FoundedYear    *int
	FitScore       *float64
	FitSummary     string
	LastScored     *time.Time
	LastModified   time.Time

	Extra map[string]string
}

// Deal is the fixed-schema view of a CRM deal.
type Deal struct {
	ID           string
	Amount       *float64
	Pipeline     string
	Stage        string
	CreatedAt    *time.Time
	ClosedAt     *time.Time
	FitScore     *float64
	FitSummary   string
	LastScored   *time.Time
	LastModified time.Time

	Extra map[string]string
}

// ConversionDays returns the whole days between deal creation and close, or
// false when either timestamp is missing.
func (d *Deal) ConversionDays() (int, bool) {
	if d.CreatedAt == nil || d.ClosedAt == nil {
		return 0, false
	}
	days := int(d.ClosedAt.Sub(*d.CreatedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true
}

// DaysInPipeline returns the whole days since deal creation, measured to the
// close date for closed deals and to now otherwise.
func (d *Deal) DaysInPipeline(now time.Time) (int, bool) {
	if d.CreatedAt == nil {
		return 0, false
	}
	end := now
	if d.ClosedAt != nil {
		end = *d.ClosedAt
	}
	days := int(end.Sub(*d.CreatedAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days, true
}

// Record is a tagged union over the three CRM object types. Exactly one of
// the pointers is set, selected by Kind.
type Record struct {
	Kind    RecordKind
	Contact *Contact
	Company *Company
	Deal    *Deal
}

// ID returns the CRM identifier of the underlying record.
func (r Record) ID() string {
	switch r.Kind {
	case KindContact:
		if r.Contact != nil {
			return r.Contact.ID
		}
	case KindCompany:
		if r.Company != nil {
			return r.Company.ID
		}
	case KindDeal:
		if r.Deal != nil {
			return r.Deal.ID
		}
	}
	return ""
}

// LastModified returns the record's last-modified timestamp.
func (r Record) LastModified() time.Time {
	switch r.Kind {
	case KindContact:
		if r.Contact != nil {
			return r.Contact.LastModified
		}
	case KindCompany:
		if r.Company != nil {
			return r.Company.LastModified
		}
	case KindDeal:
		if r.Deal != nil {
			return r.Deal.LastModified
		}
	}
	return time.Time{}
}

// FitScore returns the stored fit score of the underlying record, if any.
func (r Record) FitScore() *float64 {
	switch r.Kind {
	case KindContact:
		if r.Contact != nil {
			return r.Contact.FitScore
		}
	case KindCompany:
		if r.Company != nil {
			return r.Company.FitScore
		}
	case KindDeal:
		if r.Deal != nil {
			return r.Deal.FitScore
		}
	}
	return nil
}

// Property names written back to the CRM by the scoring engine.
const (
	PropFitScore   = "ai_fit_score"
	PropFitSummary = "ai_fit_score_summary"
	PropLastScored = "ai_fit_last_scored"
)

// contactProps / companyProps / dealProps are the schema property sets
// requested from the CRM for each kind. Anything else a portal returns lands
// in Extra.
var (
	ContactProperties = []string{
		"jobtitle", "industry", "lifecyclestage", "country", "seniority",
		"associatedcompanyid", "lastmodifieddate",
		PropFitScore, PropFitSummary, PropLastScored,
	}
	CompanyProperties = []string{
		"industry", "numberofemployees", "annualrevenue", "lifecyclestage",
		"country", "founded_year", "hs_lastmodifieddate",
		PropFitScore, PropFitSummary, PropLastScored,
	}
	DealProperties = []string{
		"amount", "pipeline", "dealstage", "createdate", "closedate",
		"hs_lastmodifieddate",
		PropFitScore, PropFitSummary, PropLastScored,
	}
)

// PropertiesFor returns the schema property set for a kind.
func PropertiesFor(kind RecordKind) []string {
	switch kind {
	case KindContact:
		return ContactProperties
	case KindCompany:
		return CompanyProperties
	case KindDeal:
		return DealProperties
	}
	return nil
}

// ParseRecord builds the typed union from a raw CRM property bag.
func ParseRecord(kind RecordKind, id string, props map[string]string) (Record, error) {
	switch kind {
	case KindContact:
		return Record{Kind: kind, Contact: parseContact(id, props)}, nil
	case KindCompany:
		return Record{Kind: kind, Company: parseCompany(id, props)}, nil
	case KindDeal:
		return Record{Kind: kind, Deal: parseDeal(id, props)}, nil
	}
	return Record{}, eris.Errorf("model: unknown record kind %q", kind)
}

func parseContact(id string, props map[string]string) *Contact {
	c := &Contact{ID: id, Extra: map[string]string{}}
	for k, v := range props {
		switch k {
		case "jobtitle":
			c.JobTitle = v
		case "industry":
			c.Industry = v
		case "lifecyclestage":
			c.LifecycleStage = v
		case "country":
			c.Country = v
		case "seniority":
			c.Seniority = v
		case "associatedcompanyid":
			c.CompanyID = v
		case "lastmodifieddate":
			c.LastModified = parseTime(v)
		case PropFitScore:
			c.FitScore = parseFloat(v)
		case PropFitSummary:
			c.FitSummary = v
		case PropLastScored:
			if t := parseTime(v); !t.IsZero() {
				c.LastScored = &t
			}
		default:
			c.Extra[k] = v
		}
	}
	return c
}

func parseCompany(id string, props map[string]string) *Company {
	c := &Company{ID: id, Extra: map[string]string{}}
	for k, v := range props {
		switch k {
		case "industry":
			c.Industry = v
		case "numberofemployees":
			c.Employees = parseInt(v)
		case "annualrevenue":
			c.AnnualRevenue = parseFloat(v)
		case "lifecyclestage":
			c.LifecycleStage = v
		case "country":
			c.Country = v
		case "founded_year":
			c.FoundedYear = parseInt(v)
		case "hs_lastmodifieddate":
			c.LastModified = parseTime(v)
		case PropFitScore:
			c.FitScore = parseFloat(v)
		case PropFitSummary:
			c.FitSummary = v
		case PropLastScored:
			if t := parseTime(v); !t.IsZero() {
				c.LastScored = &t
			}
		default:
			c.Extra[k] = v
		}
	}
	return c
}

func parseDeal(id string, props map[string]string) *Deal {
	d := &Deal{ID: id, Extra: map[string]string{}}
	for k, v := range props {
		switch k {
		case "amount":
			d.Amount = parseFloat(v)
		case "pipeline":
			d.Pipeline = v
		case "dealstage":
			d.Stage = v
		case "createdate":
			if t := parseTime(v); !t.IsZero() {
				d.CreatedAt = &t
			}
		case "closedate":
			if t := parseTime(v); !t.IsZero() {
				d.ClosedAt = &t
			}
		case "hs_lastmodifieddate":
			d.LastModified = parseTime(v)
		case PropFitScore:
			d.FitScore = parseFloat(v)
		case PropFitSummary:
			d.FitSummary = v
		case PropLastScored:
			if t := parseTime(v); !t.IsZero() {
				d.LastScored = &t
			}
		default:
			d.Extra[k] = v
		}
	}
	return d
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// The CRM returns numerics as strings, sometimes with a decimal part.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

// parseTime accepts RFC3339 timestamps and epoch milliseconds, the two
// formats the CRM has returned for date properties.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}
