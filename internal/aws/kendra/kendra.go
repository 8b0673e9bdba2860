// Package kendra wraps the Amazon Kendra SDK calls used by the search
// tools and flattens their responses into the JSON shapes those tools
// return.
package kendra

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awskendra "github.com/aws/aws-sdk-go-v2/service/kendra"
)

// kendraAPI is the slice of the Kendra client the service depends on.
type kendraAPI interface {
	ListIndices(ctx context.Context, params *awskendra.ListIndicesInput, optFns ...func(*awskendra.Options)) (*awskendra.ListIndicesOutput, error)
	Query(ctx context.Context, params *awskendra.QueryInput, optFns ...func(*awskendra.Options)) (*awskendra.QueryOutput, error)
}

// IndexSummary describes one Kendra index.
type IndexSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Edition   string `json:"edition"`
}

// IndexList is the result of listing all indexes in a region.
type IndexList struct {
	Region  string         `json:"region"`
	Count   int            `json:"count"`
	Indexes []IndexSummary `json:"indexes"`
}

// QueryResultEntry is one hit returned by a Kendra query.
type QueryResultEntry struct {
	ID                   string                `json:"id"`
	Type                 string                `json:"type"`
	DocumentTitle        string                `json:"document_title"`
	DocumentURI          string                `json:"document_uri"`
	Score                string                `json:"score"`
	Excerpt              string                `json:"excerpt,omitempty"`
	AdditionalAttributes []AdditionalAttribute `json:"additional_attributes,omitempty"`
}

// AdditionalAttribute is a flattened additional result attribute.
type AdditionalAttribute struct {
	Key       string `json:"key"`
	ValueType string `json:"value_type"`
	Text      string `json:"text,omitempty"`
}

// QueryResult is the result of one Kendra query.
type QueryResult struct {
	Query             string             `json:"query"`
	TotalResultsCount int32              `json:"total_results_count"`
	Results           []QueryResultEntry `json:"results"`
}

// Service exposes the Kendra operations used by the tools. A region
// override on a call builds a client for that region instead of the
// configured one.
type Service struct {
	awsCfg    aws.Config
	newClient func(region string) kendraAPI
}

// NewService creates a service on top of the given AWS configuration.
func NewService(awsCfg aws.Config) *Service {
	return &Service{
		awsCfg: awsCfg,
		newClient: func(region string) kendraAPI {
			clientCfg := awsCfg.Copy()
			if region != "" {
				clientCfg.Region = region
			}
			return awskendra.NewFromConfig(clientCfg)
		},
	}
}

// ResolveRegion returns the region a call with the given override
// actually targets.
func (s *Service) ResolveRegion(override string) string {
	if override != "" {
		return override
	}
	return s.awsCfg.Region
}

// ListIndexes returns every index in the target region, following
// pagination to exhaustion.
func (s *Service) ListIndexes(ctx context.Context, region string) (*IndexList, error) {
	client := s.newClient(region)

	list := &IndexList{
		Region:  s.ResolveRegion(region),
		Indexes: []IndexSummary{},
	}
	var nextToken *string
	for {
		out, err := client.ListIndices(ctx, &awskendra.ListIndicesInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("failed to list Kendra indexes: %w", err)
		}
		for _, item := range out.IndexConfigurationSummaryItems {
			summary := IndexSummary{
				ID:      aws.ToString(item.Id),
				Name:    aws.ToString(item.Name),
				Status:  string(item.Status),
				Edition: string(item.Edition),
			}
			if item.CreatedAt != nil {
				summary.CreatedAt = item.CreatedAt.Format(time.RFC3339)
			}
			if item.UpdatedAt != nil {
				summary.UpdatedAt = item.UpdatedAt.Format(time.RFC3339)
			}
			list.Indexes = append(list.Indexes, summary)
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		nextToken = out.NextToken
	}
	list.Count = len(list.Indexes)
	return list, nil
}

// Query runs a search against the given index and flattens the result
// items.
func (s *Service) Query(ctx context.Context, region, indexID, query string) (*QueryResult, error) {
	if indexID == "" {
		return nil, fmt.Errorf("no Kendra index ID provided or configured")
	}
	client := s.newClient(region)

	out, err := client.Query(ctx, &awskendra.QueryInput{
		IndexId:   aws.String(indexID),
		QueryText: aws.String(query),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query Kendra index: %w", err)
	}

	result := &QueryResult{
		Query:             query,
		TotalResultsCount: aws.ToInt32(out.TotalNumberOfResults),
		Results:           []QueryResultEntry{},
	}
	for _, item := range out.ResultItems {
		entry := QueryResultEntry{
			ID:          aws.ToString(item.Id),
			Type:        string(item.Type),
			DocumentURI: aws.ToString(item.DocumentURI),
		}
		if item.DocumentTitle != nil {
			entry.DocumentTitle = aws.ToString(item.DocumentTitle.Text)
		}
		if item.ScoreAttributes != nil {
			entry.Score = string(item.ScoreAttributes.ScoreConfidence)
		}
		if item.DocumentExcerpt != nil {
			entry.Excerpt = aws.ToString(item.DocumentExcerpt.Text)
		}
		for _, attribute := range item.AdditionalAttributes {
			flattened := AdditionalAttribute{
				Key:       aws.ToString(attribute.Key),
				ValueType: string(attribute.ValueType),
			}
			if attribute.Value != nil && attribute.Value.TextWithHighlightsValue != nil {
				flattened.Text = aws.ToString(attribute.Value.TextWithHighlightsValue.Text)
			}
			entry.AdditionalAttributes = append(entry.AdditionalAttributes, flattened)
		}
		result.Results = append(result.Results, entry)
	}
	return result, nil
}
