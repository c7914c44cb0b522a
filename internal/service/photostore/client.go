package photostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/gopherauth/internal/apperrors"
	"github.com/nkiryanov/gopherauth/internal/logger"
	"github.com/nkiryanov/gopherauth/internal/models"
)

const (
	MaxPhotoSize = 5 << 20 // 5 MiB

	defaultTimeout = 10 * time.Second
)

// Allowed content types and file extensions for them
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Object storage with Supabase Storage compatible REST API
type Config struct {
	// Storage base url, like https://project.supabase.co
	URL string

	// Service key, sent as bearer token
	ServiceKey string

	Bucket string

	// Request timeout. If not set than default is used
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	serviceKey string
	bucket     string

	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		bucket:     cfg.Bucket,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     l,
	}
}

// Validate photo size and type. Type is sniffed from the content, client provided content type is not trusted
// Returns detected content type
func Validate(photo models.Photo) (string, error) {
	if len(photo.Data) == 0 {
		return "", fmt.Errorf("%w: file is empty", apperrors.ErrPhotoInvalid)
	}

	if len(photo.Data) > MaxPhotoSize {
		return "", fmt.Errorf("%w: file size exceeds %d bytes", apperrors.ErrPhotoInvalid, MaxPhotoSize)
	}

	contentType := http.DetectContentType(photo.Data)
	if _, ok := allowedTypes[contentType]; !ok {
		return "", fmt.Errorf("%w: only JPEG, PNG and WebP images are allowed, got %s", apperrors.ErrPhotoInvalid, contentType)
	}

	return contentType, nil
}

func (c *Client) objectURL(objectPath string) string {
	return c.baseURL + "/storage/v1/object/" + c.bucket + "/" + objectPath
}

func (c *Client) publicURL(objectPath string) string {
	return c.baseURL + "/storage/v1/object/public/" + c.bucket + "/" + objectPath
}

// Upload user photo and return its public url
// Photos are stored under folder named by user id
func (c *Client) Upload(ctx context.Context, userID uuid.UUID, photo models.Photo) (string, error) {
	contentType, err := Validate(photo)
	if err != nil {
		return "", err
	}

	objectPath := userID.String() + "/profile-" + uuid.NewString() + allowedTypes[contentType]

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(objectPath), bytes.NewReader(photo.Data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %w", apperrors.ErrPhotoUpload, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send request: %w", apperrors.ErrPhotoUpload, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("Failed to upload photo", "status_code", resp.StatusCode, "path", objectPath, "body", string(body))
		return "", fmt.Errorf("%w: unexpected status code %d", apperrors.ErrPhotoUpload, resp.StatusCode)
	}

	c.logger.Info("Photo uploaded", "user_id", userID, "path", objectPath)
	return c.publicURL(objectPath), nil
}

// Delete photo by its public url
// Missing photo is not an error
func (c *Client) Delete(ctx context.Context, publicURL string) error {
	prefix := c.publicURL("")
	if !strings.HasPrefix(publicURL, prefix) {
		return fmt.Errorf("url %q does not belong to bucket %s", publicURL, c.bucket)
	}
	objectPath := path.Clean(strings.TrimPrefix(publicURL, prefix))
	if objectPath == "." || strings.HasPrefix(objectPath, "..") {
		return fmt.Errorf("url %q does not point to an object", publicURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(objectPath), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug("Photo already deleted", "path", objectPath)
		return nil
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("unexpected status code %d deleting %s", resp.StatusCode, objectPath)
	default:
		c.logger.Info("Photo deleted", "path", objectPath)
		return nil
	}
}
