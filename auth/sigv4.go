package auth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/goliatone/go-restbind/core"
)

const (
	SigV4ModeHeader = "header"
	SigV4ModeQuery  = "query"

	AttributeRegion  = "region"
	AttributeService = "service"

	unsignedPayload          = "UNSIGNED-PAYLOAD"
	defaultSigV4QueryExpires = 5 * time.Minute
)

// SigV4Attacher signs requests with AWS Signature Version 4. Credential.Token
// is the access key id, Secret the secret access key and SessionToken the
// optional STS session token. Region and Service fall back to the credential
// attributes of the same name.
type SigV4Attacher struct {
	Region          string
	Service         string
	Mode            string
	QueryExpires    time.Duration
	UnsignedPayload bool
	Signer          *v4.Signer
	Now             func() time.Time
}

func (a SigV4Attacher) Attach(ctx context.Context, req core.BoundRequest, cred core.Credential) (core.BoundRequest, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return req, missingCredentialError("sigv4 attacher", "access key id")
	}
	if strings.TrimSpace(cred.Secret) == "" {
		return req, missingCredentialError("sigv4 attacher", "secret access key")
	}
	region := firstNonEmpty(a.Region, readAttribute(cred, AttributeRegion))
	service := firstNonEmpty(a.Service, readAttribute(cred, AttributeService))
	if region == "" || service == "" {
		return req, missingCredentialError("sigv4 attacher", "region and service")
	}
	mode := strings.ToLower(firstNonEmpty(a.Mode, SigV4ModeHeader))
	if mode != SigV4ModeHeader && mode != SigV4ModeQuery {
		return req, fmt.Errorf("auth: unsupported sigv4 signing mode %q", mode)
	}

	signer := a.Signer
	if signer == nil {
		signer = v4.NewSigner()
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	signingTime := now().UTC()
	credentials := aws.Credentials{
		AccessKeyID:     strings.TrimSpace(cred.Token),
		SecretAccessKey: strings.TrimSpace(cred.Secret),
		SessionToken:    strings.TrimSpace(cred.SessionToken),
		Source:          "restbind",
	}

	out := prepare(req)
	var body []byte
	if out.Payload != nil {
		body = out.Payload.Body
	}
	payloadHash := unsignedPayload
	if !a.UnsignedPayload {
		sum := sha256.Sum256(body)
		payloadHash = hex.EncodeToString(sum[:])
	}

	if mode == SigV4ModeQuery {
		return a.presign(ctx, signer, out, credentials, body, payloadHash, service, region, signingTime)
	}

	httpReq, err := http.NewRequestWithContext(ctx, out.Method, out.URL(), bytes.NewReader(body))
	if err != nil {
		return req, fmt.Errorf("auth: build sigv4 request: %w", err)
	}
	httpReq.Header = out.Headers.Clone()
	if out.Payload != nil && out.Payload.ContentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", out.Payload.ContentType)
	}
	httpReq.Header.Set("X-Amz-Content-Sha256", payloadHash)
	if err := signer.SignHTTP(ctx, credentials, httpReq, payloadHash, service, region, signingTime); err != nil {
		return req, fmt.Errorf("auth: sigv4 sign: %w", err)
	}
	out.Headers = httpReq.Header.Clone()
	return out, nil
}

func (a SigV4Attacher) presign(
	ctx context.Context,
	signer *v4.Signer,
	out core.BoundRequest,
	credentials aws.Credentials,
	body []byte,
	payloadHash string,
	service string,
	region string,
	signingTime time.Time,
) (core.BoundRequest, error) {
	expires := a.QueryExpires
	if expires <= 0 {
		expires = defaultSigV4QueryExpires
	}
	if out.Query == nil {
		out.Query = url.Values{}
	}
	out.Query.Set("X-Amz-Expires", strconv.Itoa(int(expires/time.Second)))

	httpReq, err := http.NewRequestWithContext(ctx, out.Method, out.URL(), bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("auth: build sigv4 request: %w", err)
	}
	signedURI, signedHeaders, err := signer.PresignHTTP(ctx, credentials, httpReq, payloadHash, service, region, signingTime)
	if err != nil {
		return out, fmt.Errorf("auth: sigv4 presign: %w", err)
	}
	parsed, err := url.Parse(signedURI)
	if err != nil {
		return out, fmt.Errorf("auth: parse presigned url: %w", err)
	}
	out.Query = parsed.Query()
	for key, values := range signedHeaders {
		if strings.EqualFold(key, "Host") {
			continue
		}
		out.Headers[key] = append([]string(nil), values...)
	}
	return out, nil
}
