package aps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const PolicyTransient = "transient"

type Bucket struct {
	BucketKey string `json:"bucketKey"`
	PolicyKey string `json:"policyKey"`
}

type ObjectDetails struct {
	BucketKey   string `json:"bucketKey"`
	ObjectID    string `json:"objectId"`
	ObjectKey   string `json:"objectKey"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Location    string `json:"location,omitempty"`
}

type signedUpload struct {
	UploadKey string   `json:"uploadKey"`
	URLs      []string `json:"urls"`
}

type signedDownload struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

// ObjectURN is the object id the platform uses to reference stored objects.
func ObjectURN(bucketKey, objectKey string) string {
	return fmt.Sprintf("urn:adsk.objects:os.object:%s/%s", bucketKey, objectKey)
}

func objectPath(bucketKey, objectKey string) string {
	return "/oss/v2/buckets/" + url.PathEscape(bucketKey) + "/objects/" + url.PathEscape(objectKey)
}

func minutes(d time.Duration) string {
	m := int(d / time.Minute)
	if m < 1 {
		m = 1
	}
	return strconv.Itoa(m)
}

// CreateBucket creates a bucket. An existing bucket yields an error matching ErrConflict.
func (c *Client) CreateBucket(ctx context.Context, bucketKey, policy string) error {
	return c.do(ctx, http.MethodPost, "/oss/v2/buckets", Bucket{BucketKey: bucketKey, PolicyKey: policy}, nil)
}

// UploadObject stores size bytes from body under objectKey using a signed S3
// upload: obtain an upload URL, PUT the bytes, then complete the upload.
func (c *Client) UploadObject(ctx context.Context, bucketKey, objectKey string, body io.Reader, size int64, expiry time.Duration) (ObjectDetails, error) {
	path := objectPath(bucketKey, objectKey) + "/signeds3upload"

	var su signedUpload
	if err := c.do(ctx, http.MethodGet, path+"?minutesExpiration="+minutes(expiry), nil, &su); err != nil {
		return ObjectDetails{}, errors.Wrap(err, "request upload url")
	}
	if len(su.URLs) == 0 {
		return ObjectDetails{}, errors.New("platform returned no upload url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, su.URLs[0], body)
	if err != nil {
		return ObjectDetails{}, errors.Wrap(err, "build upload request")
	}
	req.ContentLength = size
	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return ObjectDetails{}, errors.Wrap(err, "upload object")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return ObjectDetails{}, &APIError{Method: http.MethodPut, Path: "signed upload url", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var details ObjectDetails
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"uploadKey": su.UploadKey}, &details); err != nil {
		return ObjectDetails{}, errors.Wrap(err, "complete upload")
	}
	return details, nil
}

// SignedDownloadURL returns a time limited read url for an existing object.
func (c *Client) SignedDownloadURL(ctx context.Context, bucketKey, objectKey string, expiry time.Duration) (string, error) {
	path := objectPath(bucketKey, objectKey) + "/signeds3download?minutesExpiration=" + minutes(expiry)
	var sd signedDownload
	if err := c.do(ctx, http.MethodGet, path, nil, &sd); err != nil {
		return "", err
	}
	if sd.URL == "" {
		return "", errors.Errorf("object %s/%s has no download url (status %q)", bucketKey, objectKey, sd.Status)
	}
	return sd.URL, nil
}
