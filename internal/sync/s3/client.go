// Package s3 implements the remote backend against S3-compatible object
// stores (AWS S3, Cloudflare R2, MinIO) using a minimal Signature V4 signer.
package s3

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/kwlin/studyloop/internal/errors"
	"github.com/kwlin/studyloop/internal/sync"
)

// Config holds connection parameters for an S3-compatible endpoint.
type Config struct {
	Endpoint       string // host, optionally with scheme
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // path-style URLs (MinIO, localstack)
}

// Client talks to one bucket. It satisfies sync.RemoteBackend.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

var _ sync.RemoteBackend = (*Client)(nil)

// New creates a client for cfg. Requests are bounded by a 30 second timeout
// so a dead network surfaces as a failed sync attempt instead of a hang.
func New(cfg Config) *Client {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		now: time.Now,
	}
}

// Configured reports whether enough credentials are present to sign requests.
func (c *Client) Configured() bool {
	return c.cfg.Bucket != "" && c.cfg.AccessKey != "" && c.cfg.SecretKey != ""
}

// IsAuthenticated probes the bucket with a cheap list call. A reachable
// bucket that accepts our signature counts as an authenticated session.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	if !c.Configured() {
		return false
	}
	_, err := c.List(ctx, "")
	return err == nil
}

// Upload writes data under key, overwriting any existing object.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	req, err := c.newRequest(ctx, http.MethodPut, key, "", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(data))

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncTransient, "upload request failed", err)
	}
	defer resp.Body.Close()

	return c.checkStatus(resp, http.StatusOK)
}

// Download reads the object stored under key.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, key, "", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncTransient, "download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "object not found: %s", key)
	}
	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncTransient, "failed to read object body", err)
	}
	return data, nil
}

// Delete removes the object stored under key. Deleting a missing object is
// not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, key, "", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncTransient, "delete request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	return c.checkStatus(resp, http.StatusNoContent)
}

// listBucketResult is the ListObjectsV2 response shape.
type listBucketResult struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		Size         int64  `xml:"Size"`
	} `xml:"Contents"`
}

// List returns metadata for every object under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]sync.BlobInfo, error) {
	query := "list-type=2&prefix=" + url.QueryEscape(prefix)
	req, err := c.newRequest(ctx, http.MethodGet, "", query, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncTransient, "list request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, apperrors.Newf(apperrors.ErrSyncAuthFailed, "list rejected with status %d", resp.StatusCode)
	}
	if err := c.checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	var result listBucketResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncTransient, "failed to parse list response", err)
	}

	infos := make([]sync.BlobInfo, 0, len(result.Contents))
	for _, obj := range result.Contents {
		info := sync.BlobInfo{Key: obj.Key, Size: obj.Size}
		if t, err := time.Parse(time.RFC3339, obj.LastModified); err == nil {
			info.LastModified = t
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *Client) checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return apperrors.Newf(apperrors.ErrSyncTransient, "unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// newRequest builds a signed request for key (empty key targets the bucket
// itself, e.g. for listing).
func (c *Client) newRequest(ctx context.Context, method, key, query string, body io.Reader) (*http.Request, error) {
	endpoint := c.cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	var rawURL, host, path string
	if c.cfg.ForcePathStyle {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid endpoint", err)
		}
		host = u.Host
		path = "/" + c.cfg.Bucket
		if key != "" {
			path += "/" + key
		}
		rawURL = endpoint + path
	} else {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid endpoint", err)
		}
		host = c.cfg.Bucket + "." + u.Host
		path = "/"
		if key != "" {
			path += key
		}
		rawURL = u.Scheme + "://" + host + path
	}
	if query != "" {
		rawURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Host = host

	stamp := c.now().UTC()
	amzDate := stamp.Format("20060102T150405Z")
	req.Header.Set("Host", host)
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", unsignedPayload)
	req.Header.Set("Authorization", c.authorization(method, host, path, query, amzDate))
	return req, nil
}

const unsignedPayload = "UNSIGNED-PAYLOAD"

// authorization computes the AWS Signature V4 authorization header for a
// request signing host, x-amz-content-sha256 and x-amz-date.
func (c *Client) authorization(method, host, path, query, amzDate string) string {
	dateStamp := amzDate[:8]
	scope := dateStamp + "/" + c.cfg.Region + "/s3/aws4_request"

	canonicalHeaders := "host:" + host + "\n" +
		"x-amz-content-sha256:" + unsignedPayload + "\n" +
		"x-amz-date:" + amzDate + "\n"
	signedHeaders := "host;x-amz-content-sha256;x-amz-date"

	canonicalRequest := strings.Join([]string{
		method,
		path,
		query,
		canonicalHeaders,
		signedHeaders,
		unsignedPayload,
	}, "\n")

	hashed := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hex.EncodeToString(hashed[:]),
	}, "\n")

	kDate := hmacSHA256([]byte("AWS4"+c.cfg.SecretKey), dateStamp)
	kRegion := hmacSHA256(kDate, c.cfg.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	return fmt.Sprintf("AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		c.cfg.AccessKey, scope, signedHeaders, signature)
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
