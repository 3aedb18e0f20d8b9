package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/goliatone/go-restbind/core"
)

// AWSCredentialsFetcher resolves AWS keys from any aws.CredentialsProvider
// for use with SigV4Attacher.
type AWSCredentialsFetcher struct {
	Provider aws.CredentialsProvider
	Region   string
	Service  string
}

type AWSConfig struct {
	Region  string
	Profile string
	Service string
}

// NewAWSConfigFetcher uses the default AWS credential chain.
func NewAWSConfigFetcher(ctx context.Context, cfg AWSConfig) (*AWSCredentialsFetcher, error) {
	loaded, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &AWSCredentialsFetcher{
		Provider: loaded.Credentials,
		Region:   firstNonEmpty(cfg.Region, loaded.Region),
		Service:  strings.TrimSpace(cfg.Service),
	}, nil
}

func NewStaticAWSFetcher(accessKeyID, secretAccessKey, sessionToken string, cfg AWSConfig) *AWSCredentialsFetcher {
	return &AWSCredentialsFetcher{
		Provider: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken),
		Region:   strings.TrimSpace(cfg.Region),
		Service:  strings.TrimSpace(cfg.Service),
	}
}

func (f *AWSCredentialsFetcher) Fetch(ctx context.Context) (core.FetchedCredential, error) {
	if f == nil || f.Provider == nil {
		return core.FetchedCredential{}, fmt.Errorf("auth: aws credentials provider is not configured")
	}
	creds, err := f.Provider.Retrieve(ctx)
	if err != nil {
		return core.FetchedCredential{}, tokenEndpointError(err, "aws")
	}
	fetched := core.FetchedCredential{
		Credential: core.Credential{
			Token:        creds.AccessKeyID,
			Secret:       creds.SecretAccessKey,
			SessionToken: creds.SessionToken,
			Attributes:   awsAttributes(f.Region, f.Service),
		},
	}
	if creds.CanExpire {
		fetched.ExpiresAt = creds.Expires.UTC()
	}
	return fetched, nil
}

// STSClient is the subset of *sts.Client used to assume roles.
type STSClient interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

type STSAssumeRoleConfig struct {
	AWSConfig
	RoleARN     string
	SessionName string
	ExternalID  string
	Duration    time.Duration
}

// STSAssumeRoleFetcher exchanges the caller's identity for temporary role
// credentials on every fetch.
type STSAssumeRoleFetcher struct {
	client STSClient
	config STSAssumeRoleConfig
}

func NewSTSAssumeRoleFetcher(ctx context.Context, cfg STSAssumeRoleConfig) (*STSAssumeRoleFetcher, error) {
	loaded, err := loadAWSConfig(ctx, cfg.AWSConfig)
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = loaded.Region
	}
	return NewSTSAssumeRoleFetcherWithClient(sts.NewFromConfig(loaded), cfg)
}

func NewSTSAssumeRoleFetcherWithClient(client STSClient, cfg STSAssumeRoleConfig) (*STSAssumeRoleFetcher, error) {
	if client == nil {
		return nil, fmt.Errorf("auth: sts client is required")
	}
	if strings.TrimSpace(cfg.RoleARN) == "" {
		return nil, fmt.Errorf("auth: sts role_arn is required")
	}
	if strings.TrimSpace(cfg.SessionName) == "" {
		cfg.SessionName = "restbind"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = time.Hour
	}
	return &STSAssumeRoleFetcher{client: client, config: cfg}, nil
}

func (f *STSAssumeRoleFetcher) Fetch(ctx context.Context) (core.FetchedCredential, error) {
	if f == nil || f.client == nil {
		return core.FetchedCredential{}, fmt.Errorf("auth: sts fetcher is not configured")
	}
	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(strings.TrimSpace(f.config.RoleARN)),
		RoleSessionName: aws.String(strings.TrimSpace(f.config.SessionName)),
		DurationSeconds: aws.Int32(int32(f.config.Duration / time.Second)),
	}
	if externalID := strings.TrimSpace(f.config.ExternalID); externalID != "" {
		input.ExternalId = aws.String(externalID)
	}
	out, err := f.client.AssumeRole(ctx, input)
	if err != nil {
		return core.FetchedCredential{}, tokenEndpointError(err, "sts")
	}
	if out == nil || out.Credentials == nil {
		return core.FetchedCredential{}, malformedLoginError(nil, "sts returned no credentials")
	}
	fetched := core.FetchedCredential{
		Credential: core.Credential{
			Token:        aws.ToString(out.Credentials.AccessKeyId),
			Secret:       aws.ToString(out.Credentials.SecretAccessKey),
			SessionToken: aws.ToString(out.Credentials.SessionToken),
			Attributes:   awsAttributes(f.config.Region, f.config.Service),
		},
	}
	if out.Credentials.Expiration != nil {
		fetched.ExpiresAt = out.Credentials.Expiration.UTC()
	}
	return fetched, nil
}

func loadAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	var options []func(*awsconfig.LoadOptions) error
	if region := strings.TrimSpace(cfg.Region); region != "" {
		options = append(options, awsconfig.WithRegion(region))
	}
	if profile := strings.TrimSpace(cfg.Profile); profile != "" {
		options = append(options, awsconfig.WithSharedConfigProfile(profile))
	}
	loaded, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("auth: load aws config: %w", err)
	}
	return loaded, nil
}

func awsAttributes(region, service string) map[string]string {
	attributes := map[string]string{}
	if region = strings.TrimSpace(region); region != "" {
		attributes[AttributeRegion] = region
	}
	if service = strings.TrimSpace(service); service != "" {
		attributes[AttributeService] = service
	}
	return attributes
}

// AzureTokenFetcher obtains bearer tokens from an Azure identity credential.
type AzureTokenFetcher struct {
	Credential azcore.TokenCredential
	Scopes     []string
}

type AzureClientSecretConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func NewAzureClientSecretFetcher(cfg AzureClientSecretConfig) (*AzureTokenFetcher, error) {
	credential, err := azidentity.NewClientSecretCredential(
		strings.TrimSpace(cfg.TenantID),
		strings.TrimSpace(cfg.ClientID),
		strings.TrimSpace(cfg.ClientSecret),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("auth: azure client secret credential: %w", err)
	}
	return &AzureTokenFetcher{Credential: credential, Scopes: normalizeValues(cfg.Scopes)}, nil
}

// NewAzureDefaultFetcher uses the default Azure credential chain
// (environment, workload identity, managed identity, CLI).
func NewAzureDefaultFetcher(scopes ...string) (*AzureTokenFetcher, error) {
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("auth: azure default credential: %w", err)
	}
	return &AzureTokenFetcher{Credential: credential, Scopes: normalizeValues(scopes)}, nil
}

func (f *AzureTokenFetcher) Fetch(ctx context.Context) (core.FetchedCredential, error) {
	if f == nil || f.Credential == nil {
		return core.FetchedCredential{}, fmt.Errorf("auth: azure credential is not configured")
	}
	if len(f.Scopes) == 0 {
		return core.FetchedCredential{}, fmt.Errorf("auth: azure token scopes are required")
	}
	token, err := f.Credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: append([]string(nil), f.Scopes...)})
	if err != nil {
		return core.FetchedCredential{}, tokenEndpointError(err, "azure")
	}
	return core.FetchedCredential{
		Credential: core.Credential{Token: token.Token},
		ExpiresAt:  token.ExpiresOn.UTC(),
	}, nil
}

var (
	_ core.CredentialFetcher = (*AWSCredentialsFetcher)(nil)
	_ core.CredentialFetcher = (*STSAssumeRoleFetcher)(nil)
	_ core.CredentialFetcher = (*AzureTokenFetcher)(nil)
	_ STSClient              = (*sts.Client)(nil)
)
