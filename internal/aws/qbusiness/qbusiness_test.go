package qbusiness

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsqbusiness "github.com/aws/aws-sdk-go-v2/service/qbusiness"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQBusiness struct {
	listAppsOutput  *awsqbusiness.ListApplicationsOutput
	retrieverOutput map[string]*awsqbusiness.ListRetrieversOutput
	retrieverErrs   map[string]error
	searchInput     *awsqbusiness.SearchRelevantContentInput
	searchOutput    *awsqbusiness.SearchRelevantContentOutput
	chatInput       *awsqbusiness.ChatSyncInput
	chatOutput      *awsqbusiness.ChatSyncOutput
}

func (f *fakeQBusiness) ListApplications(ctx context.Context, params *awsqbusiness.ListApplicationsInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.ListApplicationsOutput, error) {
	return f.listAppsOutput, nil
}

func (f *fakeQBusiness) ListRetrievers(ctx context.Context, params *awsqbusiness.ListRetrieversInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.ListRetrieversOutput, error) {
	appID := aws.ToString(params.ApplicationId)
	if err, ok := f.retrieverErrs[appID]; ok {
		return nil, err
	}
	if out, ok := f.retrieverOutput[appID]; ok {
		return out, nil
	}
	return &awsqbusiness.ListRetrieversOutput{}, nil
}

func (f *fakeQBusiness) SearchRelevantContent(ctx context.Context, params *awsqbusiness.SearchRelevantContentInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.SearchRelevantContentOutput, error) {
	f.searchInput = params
	return f.searchOutput, nil
}

func (f *fakeQBusiness) ChatSync(ctx context.Context, params *awsqbusiness.ChatSyncInput, optFns ...func(*awsqbusiness.Options)) (*awsqbusiness.ChatSyncOutput, error) {
	f.chatInput = params
	return f.chatOutput, nil
}

func newTestService(fake *fakeQBusiness) *Service {
	service := NewService(aws.Config{Region: "us-east-1"}, aws.Config{Region: "us-east-1"})
	service.newClient = func(cfg aws.Config, region string) qbusinessAPI {
		return fake
	}
	return service
}

func TestListApplicationsWithRetrievers(t *testing.T) {
	fake := &fakeQBusiness{
		listAppsOutput: &awsqbusiness.ListApplicationsOutput{
			Applications: []types.Application{
				{ApplicationId: aws.String("app-1"), DisplayName: aws.String("Support KB"), Status: types.ApplicationStatusActive},
				{ApplicationId: aws.String("app-2"), DisplayName: aws.String("Sales KB"), Status: types.ApplicationStatusActive},
			},
			NextToken: aws.String("more"),
		},
		retrieverOutput: map[string]*awsqbusiness.ListRetrieversOutput{
			"app-1": {
				Retrievers: []types.Retriever{
					{RetrieverId: aws.String("ret-1"), DisplayName: aws.String("native"), Type: types.RetrieverTypeNativeIndex},
				},
			},
		},
		retrieverErrs: map[string]error{
			"app-2": fmt.Errorf("access denied"),
		},
	}
	service := newTestService(fake)

	list, err := service.ListApplications(context.Background(), "", 0, "")
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", list.Region)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "more", list.NextToken)
	require.Len(t, list.Applications, 2)

	first := list.Applications[0]
	assert.Equal(t, "app-1", first.ApplicationID)
	assert.Equal(t, "Support KB", first.Name)
	require.Len(t, first.Retrievers, 1)
	assert.Equal(t, "ret-1", first.Retrievers[0].RetrieverID)
	assert.Equal(t, "NATIVE_INDEX", first.Retrievers[0].Type)
	assert.Empty(t, first.RetrieversError)

	second := list.Applications[1]
	assert.Empty(t, second.Retrievers)
	assert.Contains(t, second.RetrieversError, "access denied")
}

func TestSearchRelevantContent(t *testing.T) {
	fake := &fakeQBusiness{
		searchOutput: &awsqbusiness.SearchRelevantContentOutput{
			RelevantContent: []types.RelevantContent{
				{
					Content:       aws.String("The quarterly report shows"),
					DocumentId:    aws.String("doc-1"),
					DocumentTitle: aws.String("Q1 Report"),
					DocumentUri:   aws.String("https://example.com/q1"),
					ScoreAttributes: &types.ScoreAttributes{
						ScoreConfidence: types.ScoreConfidenceVeryHigh,
					},
					DocumentAttributes: []types.DocumentAttribute{
						{
							Name:  aws.String("_source_uri"),
							Value: &types.DocumentAttributeValueMemberStringValue{Value: "https://example.com/q1"},
						},
						{
							Name:  aws.String("page_count"),
							Value: &types.DocumentAttributeValueMemberLongValue{Value: 12},
						},
					},
				},
			},
			NextToken: aws.String("next-page"),
		},
	}
	service := newTestService(fake)

	result, err := service.SearchRelevantContent(context.Background(), "", "app-1", "ret-1", "quarterly numbers", 5, "")
	require.NoError(t, err)

	assert.Equal(t, "quarterly numbers", result.Query)
	assert.Equal(t, "app-1", result.ApplicationID)
	assert.Equal(t, "ret-1", result.RetrieverID)
	assert.Equal(t, "next-page", result.NextToken)
	require.Len(t, result.Results, 1)

	item := result.Results[0]
	assert.Equal(t, "The quarterly report shows", item.Content)
	assert.Equal(t, "VERY_HIGH", item.ScoreConfidence)
	require.Len(t, item.DocumentAttributes, 2)
	assert.Equal(t, "https://example.com/q1", item.DocumentAttributes[0].Value)
	assert.Equal(t, int64(12), item.DocumentAttributes[1].Value)

	require.NotNil(t, fake.searchInput)
	assert.Equal(t, int32(5), aws.ToInt32(fake.searchInput.MaxResults))
	source, ok := fake.searchInput.ContentSource.(*types.ContentSourceMemberRetriever)
	require.True(t, ok)
	assert.Equal(t, "ret-1", aws.ToString(source.Value.RetrieverId))
}

func TestSearchRelevantContentRequiresIDs(t *testing.T) {
	service := newTestService(&fakeQBusiness{})

	_, err := service.SearchRelevantContent(context.Background(), "", "", "ret-1", "q", 0, "")
	assert.Error(t, err)

	_, err = service.SearchRelevantContent(context.Background(), "", "app-1", "", "q", 0, "")
	assert.Error(t, err)
}

func TestChatSyncPluginMode(t *testing.T) {
	fake := &fakeQBusiness{
		chatOutput: &awsqbusiness.ChatSyncOutput{
			ConversationId:  aws.String("conv-1"),
			SystemMessage:   aws.String("Opportunity created."),
			SystemMessageId: aws.String("sys-1"),
			UserMessageId:   aws.String("usr-1"),
			SourceAttributions: []*types.SourceAttribution{
				{Title: aws.String("Opportunities"), Url: aws.String("https://example.my.salesforce.com/opp"), Snippet: aws.String("snippet")},
			},
		},
	}
	service := newTestService(fake)

	result, err := service.ChatSync(context.Background(), ChatRequest{
		ApplicationID:  "app-1",
		PluginID:       "plugin-1",
		UserMessage:    "create an opportunity",
		ConversationID: "conv-1",
		AuthResponse: map[string]string{
			"access_token": "sf-token",
			"instance_url": "https://example.my.salesforce.com",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "conv-1", result.ConversationID)
	assert.Equal(t, "Opportunity created.", result.SystemMessage)
	assert.Equal(t, "create an opportunity", result.UserMessage)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "Opportunities", result.Citations[0].Title)
	assert.Nil(t, result.AuthChallenge)

	require.NotNil(t, fake.chatInput)
	assert.Equal(t, types.ChatModePluginMode, fake.chatInput.ChatMode)
	modeConfig, ok := fake.chatInput.ChatModeConfiguration.(*types.ChatModeConfigurationMemberPluginConfiguration)
	require.True(t, ok)
	assert.Equal(t, "plugin-1", aws.ToString(modeConfig.Value.PluginId))
	require.NotNil(t, fake.chatInput.AuthChallengeResponse)
	assert.Equal(t, "sf-token", fake.chatInput.AuthChallengeResponse.ResponseMap["access_token"])
}

func TestChatSyncSurfacesAuthChallenge(t *testing.T) {
	fake := &fakeQBusiness{
		chatOutput: &awsqbusiness.ChatSyncOutput{
			ConversationId: aws.String("conv-2"),
			AuthChallengeRequest: &types.AuthChallengeRequest{
				AuthorizationUrl: aws.String("https://login.salesforce.com/services/oauth2/authorize?x=y"),
			},
		},
	}
	service := newTestService(fake)

	result, err := service.ChatSync(context.Background(), ChatRequest{
		ApplicationID: "app-1",
		PluginID:      "plugin-1",
		UserMessage:   "hello",
	})
	require.NoError(t, err)
	require.NotNil(t, result.AuthChallenge)
	assert.Contains(t, result.AuthChallenge.AuthorizationURL, "oauth2/authorize")
	assert.Nil(t, fake.chatInput.AuthChallengeResponse)
}

func TestChatSyncRequiresApplicationAndPlugin(t *testing.T) {
	service := newTestService(&fakeQBusiness{})

	_, err := service.ChatSync(context.Background(), ChatRequest{PluginID: "p", UserMessage: "m"})
	assert.Error(t, err)

	_, err = service.ChatSync(context.Background(), ChatRequest{ApplicationID: "a", UserMessage: "m"})
	assert.Error(t, err)
}
