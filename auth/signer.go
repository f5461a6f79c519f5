// Package auth produces the AWS Signature V4 material the transport embeds
// in its authorize-connection frames.
//
// The signer always signs the same canonical request: a POST to / on
// dax.amazonaws.com with an empty payload. The hand-built HMAC chain (rather
// than the SDK's request signer) is deliberate: the auth frame carries the
// raw string-to-sign, which the SDK does not expose.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/pkg/errors"
)

const (
	signingHost    = "dax.amazonaws.com"
	signingService = "dax"
	contentType    = "application/x-amz-cbor-1.1"
	algorithm      = "AWS4-HMAC-SHA256"
)

// emptyPayloadHash is sha-256 of the empty string.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Signature is one signing outcome, ready for the auth frame template.
type Signature struct {
	AccessKeyID  string
	Signature    string // hex
	StringToSign []byte
	SessionToken string // empty when the credentials carry no token
}

// Signer produces signature material for connection authorization.
type Signer interface {
	Sign(ctx context.Context) (*Signature, error)
}

// SigV4Signer signs against the DAX canonical endpoint with credentials
// from an aws-sdk-v2 provider.
type SigV4Signer struct {
	region      string
	credentials aws.CredentialsProvider
	now         func() time.Time
}

// NewSigner creates a signer for the given region. The provider is
// consulted on every Sign call so rotating credentials are picked up.
func NewSigner(region string, credentials aws.CredentialsProvider) *SigV4Signer {
	return &SigV4Signer{region: region, credentials: credentials, now: time.Now}
}

// Sign resolves credentials and computes the signature for the current
// instant.
func (s *SigV4Signer) Sign(ctx context.Context) (*Signature, error) {
	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "auth: resolving credentials")
	}
	return s.sign(creds, s.now().UTC()), nil
}

func (s *SigV4Signer) sign(creds aws.Credentials, now time.Time) *Signature {
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	headers := map[string]string{
		"content-type": contentType,
		"host":         signingHost,
		"x-amz-date":   amzDate,
	}
	if creds.SessionToken != "" {
		headers["x-amz-security-token"] = creds.SessionToken
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var canonicalHeaders, signedHeaders strings.Builder
	for i, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(headers[name])
		canonicalHeaders.WriteByte('\n')
		if i > 0 {
			signedHeaders.WriteByte(';')
		}
		signedHeaders.WriteString(name)
	}

	canonicalRequest := strings.Join([]string{
		"POST",
		"/",
		"", // no query string
		canonicalHeaders.String(),
		signedHeaders.String(),
		emptyPayloadHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, s.region, signingService, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	key := signingKey(creds.SecretAccessKey, dateStamp, s.region)
	sig := hmacSHA256(key, []byte(stringToSign))

	return &Signature{
		AccessKeyID:  creds.AccessKeyID,
		Signature:    hex.EncodeToString(sig),
		StringToSign: []byte(stringToSign),
		SessionToken: creds.SessionToken,
	}
}

// signingKey derives the per-day signing key: the standard chained HMAC of
// date, region, service and the terminator.
func signingKey(secret, dateStamp, region string) []byte {
	k := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	k = hmacSHA256(k, []byte(region))
	k = hmacSHA256(k, []byte(signingService))
	return hmacSHA256(k, []byte("aws4_request"))
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
