package model

import (
	"fmt"
	"strings"
	"time"
)

// Metadata keys stored on index vectors. The index rejects nested values, so
// everything here is a scalar.
const (
	MetaPortalID       = "portal_id"
	MetaRecordKind     = "record_kind"
	MetaLastModified   = "last_modified"
	MetaClassification = "classification"
	MetaDealValue      = "deal_value"
	MetaConversionDays = "conversion_days"
	MetaPipeline       = "pipeline"
	MetaDealStage      = "deal_stage"
	MetaDaysInPipeline = "days_in_pipeline"
	MetaLLMScore       = "llm_score"
)

// Property is one labeled value inside a document section.
type Property struct {
	Label string
	Value string
}

// Section groups related properties under a category name.
type Section struct {
	Name       string
	Properties []Property
}

// PrimaryBlock carries the PII-free headline of a structured document.
type PrimaryBlock struct {
	Title          string
	Description    string
	Classification string
}

// StructuredContent is the intermediate form a document is flattened from.
// It is never persisted to the index.
type StructuredContent struct {
	Primary  PrimaryBlock
	Sections []Section
}

// Flatten renders the structured form as labeled text sections for embedding.
func (s *StructuredContent) Flatten() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", s.Primary.Title, s.Primary.Description)
	if s.Primary.Classification != "" {
		fmt.Fprintf(&b, "Fit classification: %s\n", s.Primary.Classification)
	}
	for _, sec := range s.Sections {
		if len(sec.Properties) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n[%s]\n", sec.Name)
		for _, p := range sec.Properties {
			fmt.Fprintf(&b, "%s: %s\n", p.Label, p.Value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Document is the ephemeral embeddable form of a record.
type Document struct {
	ID         string
	Content    string
	Metadata   map[string]any
	Structured *StructuredContent
}

// EmbeddedDocument pairs a document with its embedding vector.
type EmbeddedDocument struct {
	Document
	Values []float32
}

// MetaTime formats a timestamp for index metadata.
func MetaTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
