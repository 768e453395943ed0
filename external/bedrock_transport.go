// SigV4 signing transport for the bedrock provider.
package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

const bedrockService = "bedrock"

// BedrockSigningTransport signs every request for bedrock-runtime.
type BedrockSigningTransport struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	base        http.RoundTripper
	now         func() time.Time
}

// NewBedrockSigningTransport loads credentials from the default AWS chain.
// A nil base uses http.DefaultTransport.
func NewBedrockSigningTransport(ctx context.Context, region string, base http.RoundTripper) (*BedrockSigningTransport, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		return nil, &CallError{Kind: KindAuth, Provider: ProviderBedrock, Err: fmt.Errorf("retrieve AWS credentials: %w", err)}
	}
	return NewBedrockSigningTransportWithCredentials(cfg.Credentials, region, base), nil
}

// NewBedrockSigningTransportWithCredentials uses an explicit credentials
// provider.
func NewBedrockSigningTransportWithCredentials(creds aws.CredentialsProvider, region string, base http.RoundTripper) *BedrockSigningTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &BedrockSigningTransport{
		credentials: creds,
		region:      region,
		signer:      v4.NewSigner(),
		base:        base,
		now:         time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *BedrockSigningTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body for signing: %w", err)
		}
		_ = req.Body.Close()
	}

	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, &CallError{Kind: KindAuth, Provider: ProviderBedrock, Err: fmt.Errorf("retrieve AWS credentials: %w", err)}
	}

	// RoundTrippers must not modify the caller's request
	signed := req.Clone(req.Context())
	sum := sha256.Sum256(body)
	if err := t.signer.SignHTTP(req.Context(), creds, signed, hex.EncodeToString(sum[:]), bedrockService, t.region, t.now()); err != nil {
		return nil, fmt.Errorf("sign bedrock request: %w", err)
	}
	signed.Body = io.NopCloser(bytes.NewReader(body))
	signed.ContentLength = int64(len(body))

	return t.base.RoundTrip(signed)
}
