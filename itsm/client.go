package itsm

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"
)

// Credentials identifies an Ivanti Neurons for ITSM tenant.
type Credentials struct {
	// TenantURL is the tenant base URL, e.g. https://tenant.ivanticloud.com.
	// A trailing slash is tolerated.
	TenantURL string `yaml:"tenantUrl"`
	// APIKey is the tenant REST API key, sent on every request as
	// "Authorization: rest_api_key=<key>".
	APIKey string `yaml:"apiKey"`
	// AllowUnauthorizedCerts disables TLS certificate verification, for
	// tenants behind self-signed proxies.
	AllowUnauthorizedCerts bool `yaml:"allowUnauthorizedCerts"`
}

// Client issues authenticated calls against one tenant. The zero value is
// not usable; construct with NewClient.
type Client struct {
	Credentials Credentials
	Logger      *zap.Logger

	httpClient *http.Client
}

// NewClient builds a Client for the given tenant. A nil logger is replaced
// with a no-op logger.
func NewClient(creds Credentials, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: HTTPRequestTimeout}
	if creds.AllowUnauthorizedCerts {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{
		Credentials: creds,
		Logger:      logger,
		httpClient:  httpClient,
	}
}

// APIBuilder returns a new requests.Builder configured for the tenant:
// base URL, API key header and timeout. Default status validation is
// disabled so that error bodies can be captured and classified.
func (c *Client) APIBuilder() *requests.Builder {
	return requests.
		URL(c.Credentials.TenantURL).
		Client(c.httpClient).
		Header("Authorization", fmt.Sprintf("rest_api_key=%s", c.Credentials.APIKey)).
		AddValidator(nil)
}

// captureJSON returns a response handler that copies the body into *body
// and converts non-2xx statuses into a *RequestError carrying the body.
func captureJSON(body *string, context string) requests.ResponseHandler {
	return func(res *http.Response) error {
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		*body = string(raw)
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return &RequestError{
				StatusCode: res.StatusCode,
				Body:       string(raw),
				Context:    context,
			}
		}
		return nil
	}
}

// captureBinary is captureJSON for attachment downloads: it keeps the raw
// bytes plus the filename and media type the response advertises.
func captureBinary(body *[]byte, filename, mimeType *string, context string) requests.ResponseHandler {
	return func(res *http.Response) error {
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return &RequestError{
				StatusCode: res.StatusCode,
				Body:       string(raw),
				Context:    context,
			}
		}
		*body = raw
		*filename = dispositionFilename(res.Header.Get("Content-Disposition"))
		*mimeType = res.Header.Get("Content-Type")
		return nil
	}
}
