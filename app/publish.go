package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Publisher stores a transcoded image and returns where it can be read.
type Publisher interface {
	Publish(ctx context.Context, name string, data []byte) (string, error)
}

// publicURL never depends on the storage response.
func publicURL(base, name string) string {
	return base + "/" + url.PathEscape(name)
}

// MultipartPublisher posts the image to {Endpoint}/upload as form field "image".
type MultipartPublisher struct {
	Client        *http.Client
	Endpoint      string
	PublicBaseURL string
	Timeout       time.Duration
}

func NewMultipartPublisher(endpoint, publicBase string, timeout time.Duration) *MultipartPublisher {
	return &MultipartPublisher{
		Client:        &http.Client{},
		Endpoint:      endpoint,
		PublicBaseURL: publicBase,
		Timeout:       timeout,
	}
}

func (p *MultipartPublisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return "", &PublishError{Name: name, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &PublishError{Name: name, Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &PublishError{Name: name, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+"/upload", &body)
	if err != nil {
		return "", &PublishError{Name: name, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	res, err := p.Client.Do(req)
	if err != nil {
		return "", &PublishError{Name: name, Err: err}
	}
	defer res.Body.Close()
	_, _ = io.CopyN(io.Discard, res.Body, 4<<10)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &PublishError{Name: name, StatusCode: res.StatusCode, Err: fmt.Errorf("bad status: %s", res.Status)}
	}
	return publicURL(p.PublicBaseURL, name), nil
}

// S3API is the subset of *s3.Client the publisher uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Publisher writes images to Bucket under Prefix.
type S3Publisher struct {
	Client        S3API
	Bucket        string
	Prefix        string
	PublicBaseURL string
	Timeout       time.Duration
}

func NewS3Publisher(client S3API, bucket, prefix, publicBase string, timeout time.Duration) *S3Publisher {
	return &S3Publisher{
		Client:        client,
		Bucket:        bucket,
		Prefix:        prefix,
		PublicBaseURL: publicBase,
		Timeout:       timeout,
	}
}

func (p *S3Publisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	key := name
	if p.Prefix != "" {
		key = path.Join(p.Prefix, name)
	}
	_, err := p.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("image/jpeg"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", &PublishError{Name: name, Err: err}
	}
	return publicURL(p.PublicBaseURL, name), nil
}
