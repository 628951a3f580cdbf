package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"carwash/internal/models"
)

// ImageInfo is the metadata of a fetched document image.
type ImageInfo struct {
	Format string
	Width  int
	Height int
	Size   int64
	SHA256 string
}

type ImageInspector interface {
	Inspect(ctx context.Context, url string) (*ImageInfo, error)
}

// DocumentContent is what every check sees. Front/Back are nil when the
// image could not be read (FrontErr/BackErr say why).
type DocumentContent struct {
	Document *models.KYCDocument
	Front    *ImageInfo
	Back     *ImageInfo
	FrontErr error
	BackErr  error
	Now      time.Time
}

// Check is one deterministic pass/fail rule. Detail explains a failure.
type Check interface {
	Name() string
	Check(c *DocumentContent) (passed bool, detail string)
}

// VerificationChecker runs Checks (and BackChecks when the document has a
// back image) and ANDs the results.
type VerificationChecker struct {
	Inspector  ImageInspector
	Checks     []Check
	BackChecks []Check
	Now        func() time.Time
}

func NewVerificationChecker(inspector ImageInspector) *VerificationChecker {
	return &VerificationChecker{
		Inspector: inspector,
		Checks: []Check{
			ContourCheck{},
			TextFieldsCheck{},
			ImageQualityCheck{},
			TamperCheck{},
			ExpiryCheck{},
		},
		BackChecks: []Check{ContourCheck{Back: true}},
		Now:        time.Now,
	}
}

func (v *VerificationChecker) Run(ctx context.Context, doc *models.KYCDocument) (models.Verdict, error) {
	content := &DocumentContent{Document: doc, Now: time.Now()}
	if v.Now != nil {
		content.Now = v.Now()
	}

	// Ошибка загрузки картинки — не ошибка прогона, а проваленная проверка.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		content.Front, content.FrontErr = v.Inspector.Inspect(gctx, doc.FrontImageURL)
		return nil
	})
	if doc.BackImageURL != "" {
		g.Go(func() error {
			content.Back, content.BackErr = v.Inspector.Inspect(gctx, doc.BackImageURL)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return models.Verdict{}, err
	}

	checks := v.Checks
	if doc.BackImageURL != "" {
		checks = append(append([]Check(nil), checks...), v.BackChecks...)
	}

	verdict := models.Verdict{DocumentID: doc.ID, Verified: true, CheckedAt: content.Now}
	for _, c := range checks {
		passed, detail := c.Check(content)
		verdict.Checks = append(verdict.Checks, models.CheckResult{Name: c.Name(), Passed: passed, Detail: detail})
		if !passed {
			verdict.Verified = false
		}
	}
	return verdict, nil
}

// ===== checks =====

type aspectRange struct{ min, max float64 }

// ID-1 cards are ~1.59, passport pages ~1.42, A4/Letter paper 1.29-1.41.
var contourRanges = map[models.DocumentType]aspectRange{
	models.DocNationalID:      {1.3, 1.9},
	models.DocDriversLicense:  {1.3, 1.9},
	models.DocPassport:        {1.25, 1.75},
	models.DocBusinessLicense: {1.2, 1.6},
	models.DocTaxCertificate:  {1.2, 1.6},
	models.DocProofOfAddress:  {1.2, 1.6},
}

const minShortEdge = 300

// ContourCheck: image proportions must match the document's physical shape.
type ContourCheck struct {
	Back bool
}

func (c ContourCheck) Name() string {
	if c.Back {
		return "back_contour"
	}
	return "contour"
}

func (c ContourCheck) Check(dc *DocumentContent) (bool, string) {
	img, err := dc.Front, dc.FrontErr
	if c.Back {
		img, err = dc.Back, dc.BackErr
	}
	if img == nil {
		return false, unreadable(err)
	}
	long, short := img.Width, img.Height
	if short > long {
		long, short = short, long
	}
	if short < minShortEdge {
		return false, fmt.Sprintf("short edge %dpx < %dpx", short, minShortEdge)
	}
	r, ok := contourRanges[dc.Document.DocumentType]
	if !ok {
		return false, "unknown document type"
	}
	ratio := float64(long) / float64(short)
	if ratio < r.min || ratio > r.max {
		return false, fmt.Sprintf("aspect ratio %.2f outside %.2f-%.2f", ratio, r.min, r.max)
	}
	return true, ""
}

var (
	documentNumberFormats = map[models.DocumentType]*regexp.Regexp{
		models.DocNationalID:     regexp.MustCompile(`^[0-9]{6,10}$`),
		models.DocPassport:       regexp.MustCompile(`^[A-Z0-9]{6,9}$`),
		models.DocDriversLicense: regexp.MustCompile(`^[A-Z0-9-]{5,15}$`),
	}
	genericNumberFormat = regexp.MustCompile(`^[A-Z0-9/ -]{3,40}$`)
)

// TextFieldsCheck: the document number must be present for identity
// documents and well-formed for every type.
type TextFieldsCheck struct{}

func (TextFieldsCheck) Name() string { return "text_fields" }

func (TextFieldsCheck) Check(dc *DocumentContent) (bool, string) {
	num := strings.ToUpper(strings.TrimSpace(dc.Document.DocumentNumber))
	re, strict := documentNumberFormats[dc.Document.DocumentType]
	if num == "" {
		if strict {
			return false, "document_number is required"
		}
		return true, ""
	}
	if !strict {
		re = genericNumberFormat
	}
	if !re.MatchString(num) {
		return false, "document_number has unexpected format"
	}
	return true, ""
}

const (
	minImageWidth  = 600
	minImageHeight = 400
	minImageBytes  = 10 << 10
	maxImageBytes  = 10 << 20
)

// ImageQualityCheck: every supplied image is a jpeg/png of usable size.
type ImageQualityCheck struct{}

func (ImageQualityCheck) Name() string { return "image_quality" }

func (ImageQualityCheck) Check(dc *DocumentContent) (bool, string) {
	if ok, detail := imageQuality("front", dc.Front, dc.FrontErr); !ok {
		return false, detail
	}
	if dc.Document.BackImageURL != "" {
		return imageQuality("back", dc.Back, dc.BackErr)
	}
	return true, ""
}

func imageQuality(side string, img *ImageInfo, err error) (bool, string) {
	if img == nil {
		return false, side + ": " + unreadable(err)
	}
	if img.Format != "jpeg" && img.Format != "png" {
		return false, fmt.Sprintf("%s: unsupported format %q", side, img.Format)
	}
	long, short := img.Width, img.Height
	if short > long {
		long, short = short, long
	}
	if long < minImageWidth || short < minImageHeight {
		return false, fmt.Sprintf("%s: resolution %dx%d too low", side, img.Width, img.Height)
	}
	if img.Size < minImageBytes || img.Size > maxImageBytes {
		return false, fmt.Sprintf("%s: file size %d bytes out of range", side, img.Size)
	}
	return true, ""
}

// TamperCheck: front and back must be different pictures.
type TamperCheck struct{}

func (TamperCheck) Name() string { return "tamper" }

func (TamperCheck) Check(dc *DocumentContent) (bool, string) {
	doc := dc.Document
	if doc.BackImageURL == "" {
		return true, ""
	}
	if doc.BackImageURL == doc.FrontImageURL {
		return false, "front and back point to the same file"
	}
	if dc.Front != nil && dc.Back != nil && dc.Front.SHA256 != "" && dc.Front.SHA256 == dc.Back.SHA256 {
		return false, "front and back images are identical"
	}
	return true, ""
}

// ExpiryCheck: no expiry date passes, otherwise it must be in the future.
type ExpiryCheck struct{}

func (ExpiryCheck) Name() string { return "expiry" }

func (ExpiryCheck) Check(dc *DocumentContent) (bool, string) {
	exp := dc.Document.ExpiryDate
	if exp == nil {
		return true, ""
	}
	if !exp.After(dc.Now) {
		return false, "document expired on " + exp.Format(time.DateOnly)
	}
	return true, ""
}

func unreadable(err error) string {
	if err == nil {
		return "image missing"
	}
	return "image unreadable: " + err.Error()
}

// ===== inspector =====

// HTTPImageInspector downloads an image and reads its header. URLs under
// LocalPrefix are read from LocalRoot instead.
type HTTPImageInspector struct {
	Client      *http.Client
	MaxBytes    int64
	LocalPrefix string
	LocalRoot   string
}

func NewHTTPImageInspector(timeout time.Duration, localPrefix, localRoot string) *HTTPImageInspector {
	return &HTTPImageInspector{
		Client:      &http.Client{Timeout: timeout},
		MaxBytes:    2 * maxImageBytes,
		LocalPrefix: localPrefix,
		LocalRoot:   localRoot,
	}
}

func (i *HTTPImageInspector) Inspect(ctx context.Context, url string) (*ImageInfo, error) {
	var (
		data []byte
		err  error
	)
	if i.LocalPrefix != "" && strings.HasPrefix(url, i.LocalPrefix) {
		data, err = i.readLocal(strings.TrimPrefix(url, i.LocalPrefix))
	} else {
		data, err = i.fetch(ctx, url)
	}
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	sum := sha256.Sum256(data)
	return &ImageInfo{
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Size:   int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

func (i *HTTPImageInspector) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	return i.readLimited(resp.Body)
}

func (i *HTTPImageInspector) readLocal(rel string) ([]byte, error) {
	path := filepath.Join(i.LocalRoot, filepath.Clean("/"+rel))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return i.readLimited(f)
}

func (i *HTTPImageInspector) readLimited(r io.Reader) ([]byte, error) {
	limit := i.MaxBytes
	if limit <= 0 {
		limit = 2 * maxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("image larger than %d bytes", limit)
	}
	return data, nil
}
