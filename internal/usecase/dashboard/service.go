// Package dashboard serves registry summaries and policy details.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
)

const (
	cacheNamespace = "dashboard"
	summaryKey     = "summary"
	listLimit      = 300
	defaultVersion = "1.0"
	defaultTitle   = "Unknown Policy"
)

// CountByType counts documents per authority.
type CountByType struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// CountByStatus counts documents per processing status.
type CountByStatus struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Summary is the dashboard overview.
type Summary struct {
	TotalDocuments   int             `json:"totalDocuments"`
	AssignedPolicies int             `json:"assignedPolicies"`
	ReviewedPolicies int             `json:"reviewedPolicies"`
	PendingPolicies  int             `json:"pendingPolicies"`
	DocumentsByType  []CountByType   `json:"documentsByType"`
	ProcessingStatus []CountByStatus `json:"processingStatus"`
}

// PolicyItem is one row of the policy list.
type PolicyItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Authority     string `json:"authority"`
	Version       string `json:"version"`
	EffectiveDate string `json:"effectiveDate"`
	Status        string `json:"status"`
	Assigned      bool   `json:"assigned"`
}

// Section is one non-blank line of a policy text.
type Section struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Highlight bool   `json:"highlight"`
}

// PolicyDetail is a policy with its full text.
type PolicyDetail struct {
	PolicyItem
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Sections []Section         `json:"sections"`
}

// Service builds dashboard views over the policy registry.
type Service struct {
	docs   Documents
	cache  Cache
	logger *zap.Logger
}

// New creates a dashboard service. cache may be nil.
func New(docs Documents, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{docs: docs, cache: cache, logger: logger}
}

// Summary counts documents by authority and processing status, in first-seen order.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	if s.cache != nil {
		var cached Summary
		hit, err := s.cache.GetJSON(ctx, cacheNamespace, summaryKey, &cached)
		if err != nil {
			s.logger.Warn("dashboard_cache_read_failed", zap.Error(err))
		}
		if hit {
			return cached, nil
		}
	}

	docs, err := s.docs.AllDocuments(ctx, listLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("list documents: %w", err)
	}

	byType := newCounter()
	byStatus := newCounter()
	for _, d := range docs {
		byType.add(orDefault(d.Authority, domain.UnknownAuthority))
		byStatus.add(orDefault(d.Status, domain.StatusProcessed))
	}

	sum := Summary{
		TotalDocuments:   len(docs),
		AssignedPolicies: len(docs),
		ReviewedPolicies: byStatus.counts[domain.StatusProcessed],
		PendingPolicies:  byStatus.counts[domain.StatusPending],
		DocumentsByType:  make([]CountByType, 0, len(byType.order)),
		ProcessingStatus: make([]CountByStatus, 0, len(byStatus.order)),
	}
	for _, k := range byType.order {
		sum.DocumentsByType = append(sum.DocumentsByType, CountByType{Type: k, Count: byType.counts[k]})
	}
	for _, k := range byStatus.order {
		sum.ProcessingStatus = append(sum.ProcessingStatus, CountByStatus{Status: k, Count: byStatus.counts[k]})
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheNamespace, summaryKey, sum, 0); err != nil {
			s.logger.Warn("dashboard_cache_write_failed", zap.Error(err))
		}
	}
	return sum, nil
}

// Policies lists the registry.
func (s *Service) Policies(ctx context.Context) ([]PolicyItem, error) {
	docs, err := s.docs.AllDocuments(ctx, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]PolicyItem, 0, len(docs))
	for i, d := range docs {
		out = append(out, itemFrom(d, fmt.Sprintf("policy_%d", i)))
	}
	return out, nil
}

// Policy returns one policy with its sections. Missing policies yield domain.ErrPolicyNotFound.
func (s *Service) Policy(ctx context.Context, id string) (PolicyDetail, error) {
	d, err := s.docs.DocumentByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return PolicyDetail{}, fmt.Errorf("%s: %w", id, domain.ErrPolicyNotFound)
	}
	if err != nil {
		return PolicyDetail{}, fmt.Errorf("get policy %s: %w", id, err)
	}

	item := itemFrom(d, id)
	meta := d.Metadata()
	meta["policy_id"] = item.ID
	return PolicyDetail{
		PolicyItem: item,
		Content:    d.Content,
		Metadata:   meta,
		Sections:   Sections(d.Content),
	}, nil
}

// Sections turns each non-blank line into a numbered section.
func Sections(content string) []Section {
	out := []Section{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, Section{Title: fmt.Sprintf("Section %d", len(out)+1), Content: line})
	}
	return out
}

func itemFrom(d domain.PolicyDocument, fallbackID string) PolicyItem {
	return PolicyItem{
		ID:            orDefault(d.ID, fallbackID),
		Title:         orDefault(d.Name, defaultTitle),
		Authority:     orDefault(d.Authority, domain.UnknownAuthority),
		Version:       orDefault(d.Version, defaultVersion),
		EffectiveDate: d.EffectiveDate,
		Status:        orDefault(d.Status, domain.StatusProcessed),
		Assigned:      true,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter { return &counter{counts: make(map[string]int)} }

func (c *counter) add(k string) {
	if _, ok := c.counts[k]; !ok {
		c.order = append(c.order, k)
	}
	c.counts[k]++
}
