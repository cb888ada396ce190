// Package storage keeps product images on local disk.
package storage

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
)

const (
	maxImageWidth = 800
	jpegQuality   = 80
)

// ErrUnsupportedFormat is returned for anything other than PNG or JPEG.
var ErrUnsupportedFormat = errors.New("unsupported image format, only PNG, JPG, JPEG are allowed")

// ImageStore writes optimized JPEGs under dir and serves them from baseURL.
type ImageStore struct {
	dir     string
	baseURL string
}

// NewImageStore creates dir if needed.
func NewImageStore(dir, baseURL string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ImageStore{dir: dir, baseURL: baseURL}, nil
}

// Dir is the directory images are written to.
func (s *ImageStore) Dir() string {
	return s.dir
}

// Upload decodes r according to filename's extension, downsizes it to at most
// 800px wide and stores it as JPEG. It returns the new object key.
func (s *ImageStore) Upload(r io.Reader, filename string) (string, error) {
	var (
		img image.Image
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		img, err = png.Decode(r)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(r)
	default:
		return "", ErrUnsupportedFormat
	}
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	if img.Bounds().Dx() > maxImageWidth {
		img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)
	}

	key := uuid.New().String() + ".jpg"
	out, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("encode image: %w", err)
	}
	return key, nil
}

// PublicURL is the address clients fetch key from.
func (s *ImageStore) PublicURL(key string) string {
	return s.baseURL + key
}

// KeyFromURL recovers the object key from a URL produced by PublicURL.
func (s *ImageStore) KeyFromURL(url string) (string, bool) {
	if s.baseURL == "" || !strings.HasPrefix(url, s.baseURL) {
		return "", false
	}
	key := strings.TrimPrefix(url, s.baseURL)
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", false
	}
	return key, true
}

// Delete removes a stored image. Missing files are not an error.
func (s *ImageStore) Delete(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid image key %q", key)
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
