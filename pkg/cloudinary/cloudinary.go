package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

// Client uploads chat media and derives processed variants.
type Client interface {
	UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error)
	// TransformFromURL fetches sourceURL into folder/publicID and returns the
	// URL of the eagerly generated transformation.
	TransformFromURL(ctx context.Context, sourceURL, folder, publicID, transformation string) (string, error)
	DeleteByURL(ctx context.Context, url string) error
}

// Optimized image params for chat delivery.
const (
	ImageWidth = 800
	ThumbWidth = 200
)

// Transformations applied by the image-processing worker.
const (
	OpResize    = "resize"
	OpCompress  = "compress"
	OpWatermark = "watermark"
)

var transformations = map[string]string{
	OpResize:    "w_1280,h_1280,c_limit",
	OpCompress:  "q_auto:eco,f_auto",
	OpWatermark: "l_text:Arial_28_bold:Cadence,co_white,o_60,g_south_east,x_20,y_20",
}

var ErrUnknownOperation = errors.New("unknown image operation")

// Transformation chains the named operations, in order, into one
// transformation string. An empty list means compress only.
func Transformation(ops []string) (string, error) {
	if len(ops) == 0 {
		ops = []string{OpCompress}
	}
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		t, ok := transformations[op]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownOperation, op)
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, "/"), nil
}

// BuildOptimizedImageURL returns a delivery URL with auto quality/format.
func BuildOptimizedImageURL(cloudName, publicID string, width int) string {
	if width <= 0 {
		width = ImageWidth
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/q_auto,f_auto,w_%d,c_fill/%s",
		cloudName, width, publicID)
}

const imageEager = "q_auto,f_auto,w_800,c_limit"

var eagerAsyncFalse = false

type clientImpl struct {
	cloudName string
	uploader  *uploader.API
}

func (c *clientImpl) UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (url, thumbnailURL string, err error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:     folder,
		PublicID:   publicID,
		Eager:      imageEager,
		EagerAsync: &eagerAsyncFalse,
	})
	if err != nil {
		return "", "", err
	}
	if result.Error.Message != "" {
		return "", "", errors.New(result.Error.Message)
	}
	url = result.SecureURL
	thumbnailURL = BuildOptimizedImageURL(c.cloudName, result.PublicID, ThumbWidth)
	return url, thumbnailURL, nil
}

func (c *clientImpl) TransformFromURL(ctx context.Context, sourceURL, folder, publicID, transformation string) (string, error) {
	result, err := c.uploader.Upload(ctx, sourceURL, uploader.UploadParams{
		Folder:     folder,
		PublicID:   publicID,
		Eager:      transformation,
		EagerAsync: &eagerAsyncFalse,
	})
	if err != nil {
		return "", err
	}
	if result.Error.Message != "" {
		return "", errors.New(result.Error.Message)
	}
	if len(result.Eager) > 0 && result.Eager[0].SecureURL != "" {
		return result.Eager[0].SecureURL, nil
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s/%s", c.cloudName, transformation, result.PublicID), nil
}

// DeleteByURL destroys the asset a delivery URL points at.
func (c *clientImpl) DeleteByURL(ctx context.Context, rawURL string) error {
	publicID, err := PublicIDFromURL(rawURL)
	if err != nil {
		return err
	}
	result, err := c.uploader.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return err
	}
	if result.Error.Message != "" {
		return errors.New(result.Error.Message)
	}
	return nil
}

// PublicIDFromURL extracts the public id from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v123/Cadence/chat/u1/abc.jpg
// (-> Cadence/chat/u1/abc). Transformation and version segments are skipped.
func PublicIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	i := 0
	for i < len(segs) && segs[i] != "upload" {
		i++
	}
	if i >= len(segs)-1 {
		return "", fmt.Errorf("not a cloudinary delivery url: %s", rawURL)
	}
	rest := segs[i+1:]
	for len(rest) > 1 && (strings.Contains(rest[0], ",") || isTransform(rest[0])) {
		rest = rest[1:]
	}
	if len(rest) > 1 && isVersion(rest[0]) {
		rest = rest[1:]
	}
	id := strings.Join(rest, "/")
	return strings.TrimSuffix(id, path.Ext(id)), nil
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isTransform matches single-parameter segments like "w_200" or "q_auto".
func isTransform(s string) bool {
	return len(s) > 2 && s[1] == '_' && s[0] >= 'a' && s[0] <= 'z'
}

// NewClientFromParams builds a Client from Cloudinary cloud name, API key, and secret.
func NewClientFromParams(cloudName, apiKey, apiSecret string) (Client, error) {
	cfg, err := config.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &clientImpl{
		cloudName: cloudName,
		uploader:  up,
	}, nil
}
