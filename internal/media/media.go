// Package media turns an outgoing image reference into a stored asset URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

var (
	// ErrUploadFailed means the asset store rejected or could not receive the image.
	ErrUploadFailed = errors.New("image upload failed")
	// ErrInvalidImage means the image is neither a URL nor a data URI.
	ErrInvalidImage = errors.New("image must be an http(s) URL or a data URI")
)

// Uploader stores raw image data and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, dataURI string) (string, error)
}

// Resolver passes existing URLs through and uploads inline image data.
type Resolver struct {
	uploader Uploader
}

// NewResolver builds a Resolver. A nil uploader disables inline images.
func NewResolver(u Uploader) *Resolver {
	return &Resolver{uploader: u}
}

// Resolve returns the URL to persist for image. An empty image resolves to "".
func (r *Resolver) Resolve(ctx context.Context, image string) (string, error) {
	image = strings.TrimSpace(image)
	switch {
	case image == "":
		return "", nil
	case IsURL(image):
		return image, nil
	case strings.HasPrefix(image, "data:image/"):
		if r == nil || r.uploader == nil {
			return "", fmt.Errorf("%w: no uploader configured", ErrUploadFailed)
		}
		url, err := r.uploader.Upload(ctx, image)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		return url, nil
	default:
		return "", ErrInvalidImage
	}
}

func IsURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// CloudinaryUploader uploads images to a Cloudinary folder.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
	log    *zap.Logger
}

// NewCloudinaryUploader configures an uploader from a CLOUDINARY_URL.
func NewCloudinaryUploader(cloudinaryURL, folder string, log *zap.Logger) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CloudinaryUploader{cld: cld, folder: folder, log: log}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, dataURI string) (string, error) {
	res, err := u.cld.Upload.Upload(ctx, dataURI, uploader.UploadParams{
		Folder:         u.folder,
		Transformation: "c_limit,w_1600,h_1600,q_auto",
	})
	if err != nil {
		u.log.Warn("cloudinary upload failed", zap.Error(err))
		return "", err
	}
	if res.Error.Message != "" {
		u.log.Warn("cloudinary rejected upload", zap.String("reason", res.Error.Message))
		return "", errors.New(res.Error.Message)
	}
	return res.SecureURL, nil
}

var _ Uploader = (*CloudinaryUploader)(nil)
