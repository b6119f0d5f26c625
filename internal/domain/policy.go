package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Processing statuses of a policy document.
const (
	StatusProcessed = "Processed"
	StatusPending   = "Pending"
)

// UnknownAuthority is used when a document carries no issuing authority.
const UnknownAuthority = "Unknown"

// PolicyDocument is one regulatory text with its registry metadata.
type PolicyDocument struct {
	ID            string
	Name          string
	Authority     string
	Version       string
	EffectiveDate string
	Status        string
	Content       string
}

// Metadata returns the flat metadata map exposed by the registry API.
func (d PolicyDocument) Metadata() map[string]string {
	return map[string]string{
		"policy_id":         d.ID,
		"policy_name":       d.Name,
		"authority":         d.Authority,
		"version":           d.Version,
		"effective_date":    d.EffectiveDate,
		"processing_status": d.Status,
	}
}

// NormalizeStatus maps free-form processing states onto Processed or Pending.
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "in_progress", "in-progress":
		return StatusPending
	default:
		return StatusProcessed
	}
}

// GazetteRecord is one official gazette notification.
type GazetteRecord struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	URL     string `json:"url"`
	Text    string `json:"text"`
	PDFPath string `json:"pdf_path,omitempty"`
}

// OrganizationProfile describes the organization an analysis is run for.
type OrganizationProfile struct {
	OrganizationName string  `json:"organization_name"`
	Industry         string  `json:"industry"`
	BusinessModel    string  `json:"business_model"`
	SubSector        *string `json:"sub_sector,omitempty"`
}

// DefaultProfile is used when a caller does not send a profile.
func DefaultProfile() OrganizationProfile {
	general := "General"
	return OrganizationProfile{
		OrganizationName: "Default Organization",
		Industry:         "General",
		BusinessModel:    "General",
		SubSector:        &general,
	}
}

// Validate checks field lengths.
func (p OrganizationProfile) Validate() error {
	if err := lengthBetween("organization_name", p.OrganizationName, 2, 120); err != nil {
		return err
	}
	if err := lengthBetween("industry", p.Industry, 2, 80); err != nil {
		return err
	}
	if err := lengthBetween("business_model", p.BusinessModel, 2, 120); err != nil {
		return err
	}
	if p.SubSector != nil && utf8.RuneCountInString(*p.SubSector) > 80 {
		return fmt.Errorf("sub_sector must be at most 80 characters: %w", ErrInvalidInput)
	}
	return nil
}

// ValidateMessage checks a free-text question or chat message.
func ValidateMessage(field, s string) error {
	return lengthBetween(field, s, 3, 2000)
}

func lengthBetween(field, s string, lo, hi int) error {
	n := utf8.RuneCountInString(s)
	if n < lo || n > hi {
		return fmt.Errorf("%s must be between %d and %d characters: %w", field, lo, hi, ErrInvalidInput)
	}
	return nil
}
