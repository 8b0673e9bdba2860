// Package qbusiness wraps the Amazon Q Business SDK calls used by the
// tools. Listing applications runs with the base credentials; relevant
// content search and plugin chat require the identity-aware credentials
// vended for the signed-in user.
package qbusiness

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsqbusiness "github.com/aws/aws-sdk-go-v2/service/qbusiness"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness/types"
)

// qbusinessAPI is the slice of the Q Business client the service uses.
type qbusinessAPI interface {
	ListApplications(ctx context.Context, params *awsqbusiness.ListApplicationsInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.ListApplicationsOutput, error)
	ListRetrievers(ctx context.Context, params *awsqbusiness.ListRetrieversInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.ListRetrieversOutput, error)
	SearchRelevantContent(ctx context.Context, params *awsqbusiness.SearchRelevantContentInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.SearchRelevantContentOutput, error)
	ChatSync(ctx context.Context, params *awsqbusiness.ChatSyncInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.ChatSyncOutput, error)
}

// RetrieverSummary describes one retriever of an application.
type RetrieverSummary struct {
	RetrieverID string `json:"retrieverId"`
	Name        string `json:"name"`
	Type        string `json:"type"`
}

// ApplicationSummary describes one Q Business application together with
// its retrievers. RetrieversError carries the failure message when the
// retrievers of this particular application could not be listed.
type ApplicationSummary struct {
	ApplicationID   string             `json:"applicationId"`
	Name            string             `json:"name"`
	Status          string             `json:"status,omitempty"`
	Retrievers      []RetrieverSummary `json:"retrievers,omitempty"`
	RetrieversError string             `json:"retrievers_error,omitempty"`
}

// ApplicationList is the result of listing applications.
type ApplicationList struct {
	Region       string               `json:"region"`
	Count        int                  `json:"count"`
	Applications []ApplicationSummary `json:"applications"`
	NextToken    string               `json:"nextToken,omitempty"`
}

// DocumentAttribute is a flattened document attribute.
type DocumentAttribute struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// RelevantContentItem is one hit of a relevant-content search.
type RelevantContentItem struct {
	Content            string              `json:"content"`
	DocumentID         string              `json:"documentId"`
	DocumentTitle      string              `json:"documentTitle"`
	DocumentURI        string              `json:"documentUri"`
	ScoreConfidence    string              `json:"scoreConfidence,omitempty"`
	DocumentAttributes []DocumentAttribute `json:"documentAttributes,omitempty"`
}

// SearchResult is the result of a relevant-content search.
type SearchResult struct {
	Query         string                `json:"query"`
	ApplicationID string                `json:"applicationId"`
	RetrieverID   string                `json:"retrieverId"`
	NextToken     string                `json:"nextToken,omitempty"`
	Results       []RelevantContentItem `json:"results"`
}

// Citation is a source attribution of a chat answer.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// AuthChallenge tells the caller the plugin requires completing an
// OAuth flow at the given URL before the conversation can proceed.
type AuthChallenge struct {
	AuthorizationURL string `json:"authorizationUrl"`
}

// ChatResult is the result of one synchronous chat exchange.
type ChatResult struct {
	ConversationID  string         `json:"conversationId"`
	SystemMessage   string         `json:"systemMessage"`
	UserMessage     string         `json:"userMessage"`
	SystemMessageID string         `json:"systemMessageId,omitempty"`
	UserMessageID   string         `json:"userMessageId,omitempty"`
	Citations       []Citation     `json:"citations,omitempty"`
	AuthChallenge   *AuthChallenge `json:"authChallenge,omitempty"`
}

// ChatRequest carries the parameters of a plugin chat exchange.
type ChatRequest struct {
	Region          string
	ApplicationID   string
	PluginID        string
	UserMessage     string
	ConversationID  string
	ParentMessageID string

	// AuthResponse answers a plugin auth challenge, typically with
	// access_token and instance_url entries from a stored credential.
	AuthResponse map[string]string
}

// Service exposes the Q Business operations used by the tools.
type Service struct {
	baseCfg     aws.Config
	identityCfg aws.Config
	newClient   func(cfg aws.Config, region string) qbusinessAPI
}

// NewService creates a service. The identity configuration is used for
// search and chat; pass the base configuration twice when no token
// vending machine is available.
func NewService(baseCfg, identityCfg aws.Config) *Service {
	return &Service{
		baseCfg:     baseCfg,
		identityCfg: identityCfg,
		newClient: func(cfg aws.Config, region string) qbusinessAPI {
			clientCfg := cfg.Copy()
			if region != "" {
				clientCfg.Region = region
			}
			return awsqbusiness.NewFromConfig(clientCfg)
		},
	}
}

// ResolveRegion returns the region a call with the given override
// actually targets.
func (s *Service) ResolveRegion(override string) string {
	if override != "" {
		return override
	}
	return s.baseCfg.Region
}

// ListApplications lists the applications of one result page and the
// retrievers of each, carrying per-application retriever failures
// inline instead of failing the whole listing.
func (s *Service) ListApplications(ctx context.Context, region string, maxResults int32, nextToken string) (*ApplicationList, error) {
	client := s.newClient(s.baseCfg, region)

	input := &awsqbusiness.ListApplicationsInput{}
	if maxResults > 0 {
		input.MaxResults = aws.Int32(maxResults)
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	out, err := client.ListApplications(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list Q Business applications: %w", err)
	}

	list := &ApplicationList{
		Region:       s.ResolveRegion(region),
		Applications: []ApplicationSummary{},
		NextToken:    aws.ToString(out.NextToken),
	}
	for _, app := range out.Applications {
		summary := ApplicationSummary{
			ApplicationID: aws.ToString(app.ApplicationId),
			Name:          aws.ToString(app.DisplayName),
			Status:        string(app.Status),
		}
		retrievers, errRetrievers := client.ListRetrievers(ctx, &awsqbusiness.ListRetrieversInput{
			ApplicationId: app.ApplicationId,
		})
		if errRetrievers != nil {
			summary.RetrieversError = errRetrievers.Error()
		} else {
			summary.Retrievers = []RetrieverSummary{}
			for _, retriever := range retrievers.Retrievers {
				summary.Retrievers = append(summary.Retrievers, RetrieverSummary{
					RetrieverID: aws.ToString(retriever.RetrieverId),
					Name:        aws.ToString(retriever.DisplayName),
					Type:        string(retriever.Type),
				})
			}
		}
		list.Applications = append(list.Applications, summary)
	}
	list.Count = len(list.Applications)
	return list, nil
}

// SearchRelevantContent searches an application through the given
// retriever with the identity-aware credentials.
func (s *Service) SearchRelevantContent(ctx context.Context, region, applicationID, retrieverID, queryText string, maxResults int32, nextToken string) (*SearchResult, error) {
	if applicationID == "" {
		return nil, fmt.Errorf("application ID is required")
	}
	if retrieverID == "" {
		return nil, fmt.Errorf("retriever ID is required")
	}
	client := s.newClient(s.identityCfg, region)

	input := &awsqbusiness.SearchRelevantContentInput{
		ApplicationId: aws.String(applicationID),
		QueryText:     aws.String(queryText),
		ContentSource: &types.ContentSourceMemberRetriever{
			Value: types.RetrieverContentSource{RetrieverId: aws.String(retrieverID)},
		},
	}
	if maxResults > 0 {
		input.MaxResults = aws.Int32(maxResults)
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	out, err := client.SearchRelevantContent(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to search relevant content: %w", err)
	}

	result := &SearchResult{
		Query:         queryText,
		ApplicationID: applicationID,
		RetrieverID:   retrieverID,
		NextToken:     aws.ToString(out.NextToken),
		Results:       []RelevantContentItem{},
	}
	for _, item := range out.RelevantContent {
		entry := RelevantContentItem{
			Content:       aws.ToString(item.Content),
			DocumentID:    aws.ToString(item.DocumentId),
			DocumentTitle: aws.ToString(item.DocumentTitle),
			DocumentURI:   aws.ToString(item.DocumentUri),
		}
		if item.ScoreAttributes != nil {
			entry.ScoreConfidence = string(item.ScoreAttributes.ScoreConfidence)
		}
		for _, attribute := range item.DocumentAttributes {
			entry.DocumentAttributes = append(entry.DocumentAttributes, DocumentAttribute{
				Name:  aws.ToString(attribute.Name),
				Value: documentAttributeValue(attribute.Value),
			})
		}
		result.Results = append(result.Results, entry)
	}
	return result, nil
}

// ChatSync sends one message through the configured plugin with the
// identity-aware credentials.
func (s *Service) ChatSync(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if req.ApplicationID == "" {
		return nil, fmt.Errorf("application ID is required")
	}
	if req.PluginID == "" {
		return nil, fmt.Errorf("plugin ID is required")
	}
	client := s.newClient(s.identityCfg, req.Region)

	input := &awsqbusiness.ChatSyncInput{
		ApplicationId: aws.String(req.ApplicationID),
		UserMessage:   aws.String(req.UserMessage),
		ChatMode:      types.ChatModePluginMode,
		ChatModeConfiguration: &types.ChatModeConfigurationMemberPluginConfiguration{
			Value: types.PluginConfiguration{PluginId: aws.String(req.PluginID)},
		},
	}
	if len(req.AuthResponse) > 0 {
		input.AuthChallengeResponse = &types.AuthChallengeResponse{
			ResponseMap: req.AuthResponse,
		}
	}
	if req.ConversationID != "" {
		input.ConversationId = aws.String(req.ConversationID)
	}
	if req.ParentMessageID != "" {
		input.ParentMessageId = aws.String(req.ParentMessageID)
	}

	out, err := client.ChatSync(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}

	result := &ChatResult{
		ConversationID:  aws.ToString(out.ConversationId),
		SystemMessage:   aws.ToString(out.SystemMessage),
		UserMessage:     req.UserMessage,
		SystemMessageID: aws.ToString(out.SystemMessageId),
		UserMessageID:   aws.ToString(out.UserMessageId),
	}
	for _, attribution := range out.SourceAttributions {
		result.Citations = append(result.Citations, Citation{
			Title:   aws.ToString(attribution.Title),
			URL:     aws.ToString(attribution.Url),
			Snippet: aws.ToString(attribution.Snippet),
		})
	}
	if out.AuthChallengeRequest != nil {
		result.AuthChallenge = &AuthChallenge{
			AuthorizationURL: aws.ToString(out.AuthChallengeRequest.AuthorizationUrl),
		}
	}
	return result, nil
}

// documentAttributeValue unwraps the union type into a plain value.
func documentAttributeValue(value types.DocumentAttributeValue) interface{} {
	switch v := value.(type) {
	case *types.DocumentAttributeValueMemberStringValue:
		return v.Value
	case *types.DocumentAttributeValueMemberStringListValue:
		return v.Value
	case *types.DocumentAttributeValueMemberLongValue:
		return v.Value
	case *types.DocumentAttributeValueMemberDateValue:
		return v.Value
	default:
		return nil
	}
}
