package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// FileStorage keeps uploaded document images and returns their public URL.
// KYC rows only ever store that URL.
type FileStorage interface {
	Save(ctx context.Context, userID int, filename string, r io.Reader) (string, error)
	// Owns reports whether rawURL points into this storage.
	Owns(rawURL string) bool
}

const cloudinaryHost = "res.cloudinary.com"

type CloudinaryStorage struct {
	cld       *cloudinary.Cloudinary
	cloudName string
	folder    string
}

func NewCloudinaryStorage(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStorage, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryStorage{cld: cld, cloudName: cloudName, folder: folder}, nil
}

func (s *CloudinaryStorage) Save(ctx context.Context, userID int, filename string, r io.Reader) (string, error) {
	res, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       path.Join(s.folder, fmt.Sprint(userID)),
		PublicID:     uuid.NewString(),
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

// Owns принимает только https://res.cloudinary.com/<cloud>/...
func (s *CloudinaryStorage) Owns(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || u.Host != cloudinaryHost || u.User != nil {
		return false
	}
	return cleanUnder(u.Path, "/"+s.cloudName+"/")
}

// LocalStorage пишет файлы в RootDir/kyc/<user_id>/ и отдаёт их через PublicURL.
type LocalStorage struct {
	RootDir   string
	PublicURL string
}

func NewLocalStorage(rootDir, publicURL string) *LocalStorage {
	return &LocalStorage{RootDir: rootDir, PublicURL: strings.TrimRight(publicURL, "/")}
}

func (s *LocalStorage) Save(_ context.Context, userID int, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png":
	default:
		return "", invalidInput("unsupported file extension %q", ext)
	}

	rel := path.Join("kyc", fmt.Sprint(userID), uuid.NewString()+ext)
	dst := filepath.Join(s.RootDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, io.LimitReader(r, 2*maxImageBytes)); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return s.PublicURL + "/" + rel, nil
}

// Owns — URL должен лежать под PublicURL, без ".." в пути.
func (s *LocalStorage) Owns(rawURL string) bool {
	prefix := s.PublicURL + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return false
	}
	base, err := url.Parse(prefix)
	if err != nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != base.Scheme || u.Host != base.Host || u.User != nil ||
		u.RawQuery != "" || u.Fragment != "" {
		return false
	}
	return cleanUnder(u.Path, base.Path)
}

// cleanUnder reports whether p stays below dir once "." and ".." are resolved.
func cleanUnder(p, dir string) bool {
	if p == "" || !strings.HasSuffix(dir, "/") {
		return false
	}
	clean := path.Clean(p)
	return strings.HasPrefix(clean, dir) && clean+"/" != dir
}
