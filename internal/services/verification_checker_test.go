package services

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"carwash/internal/models"
)

func TestChecks(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.AddDate(1, 0, 0)
	card := cardImage("a")

	tests := []struct {
		name  string
		check Check
		dc    DocumentContent
		want  bool
	}{
		{"contour card ok", ContourCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocNationalID}, Front: card}, true},
		{"contour portrait card ok", ContourCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocNationalID},
			Front:    &ImageInfo{Width: 638, Height: 1011}}, true},
		{"contour square photo", ContourCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocNationalID},
			Front:    &ImageInfo{Width: 800, Height: 800}}, false},
		{"contour too small", ContourCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocPassport},
			Front:    &ImageInfo{Width: 400, Height: 280}}, false},
		{"contour unreadable", ContourCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocPassport}, FrontErr: context.DeadlineExceeded}, false},
		{"back contour uses back", ContourCheck{Back: true}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocDriversLicense},
			Front:    card, Back: &ImageInfo{Width: 1000, Height: 1000}}, false},
		{"paper in card range", ContourCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocProofOfAddress},
			Front:    paperImage("p")}, true},

		{"national id digits", TextFieldsCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocNationalID, DocumentNumber: "12345678"}}, true},
		{"national id letters", TextFieldsCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocNationalID, DocumentNumber: "12AB5678"}}, false},
		{"national id missing number", TextFieldsCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocNationalID}}, false},
		{"passport lowercase normalised", TextFieldsCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocPassport, DocumentNumber: "ak123456"}}, true},
		{"license with dash", TextFieldsCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocDriversLicense, DocumentNumber: "DL-0042"}}, true},
		{"business license optional", TextFieldsCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocBusinessLicense}}, true},
		{"tax certificate garbage", TextFieldsCheck{}, DocumentContent{
			Document: &models.KYCDocument{DocumentType: models.DocTaxCertificate, DocumentNumber: "P05#1"}}, false},

		{"quality ok", ImageQualityCheck{}, DocumentContent{
			Document: &models.KYCDocument{}, Front: card}, true},
		{"quality gif", ImageQualityCheck{}, DocumentContent{
			Document: &models.KYCDocument{},
			Front:    &ImageInfo{Format: "gif", Width: 1000, Height: 700, Size: 50 << 10}}, false},
		{"quality low resolution", ImageQualityCheck{}, DocumentContent{
			Document: &models.KYCDocument{},
			Front:    &ImageInfo{Format: "png", Width: 500, Height: 350, Size: 50 << 10}}, false},
		{"quality tiny file", ImageQualityCheck{}, DocumentContent{
			Document: &models.KYCDocument{},
			Front:    &ImageInfo{Format: "png", Width: 1000, Height: 700, Size: 2 << 10}}, false},
		{"quality bad back", ImageQualityCheck{}, DocumentContent{
			Document: &models.KYCDocument{BackImageURL: "b"}, Front: card, BackErr: context.Canceled}, false},

		{"tamper no back", TamperCheck{}, DocumentContent{
			Document: &models.KYCDocument{FrontImageURL: "f"}}, true},
		{"tamper same url", TamperCheck{}, DocumentContent{
			Document: &models.KYCDocument{FrontImageURL: "f", BackImageURL: "f"}}, false},
		{"tamper same bytes", TamperCheck{}, DocumentContent{
			Document: &models.KYCDocument{FrontImageURL: "f", BackImageURL: "b"},
			Front:    cardImage("same"), Back: cardImage("same")}, false},
		{"tamper different", TamperCheck{}, DocumentContent{
			Document: &models.KYCDocument{FrontImageURL: "f", BackImageURL: "b"},
			Front:    cardImage("f"), Back: cardImage("b")}, true},

		{"expiry none", ExpiryCheck{}, DocumentContent{Document: &models.KYCDocument{}, Now: testNow}, true},
		{"expiry future", ExpiryCheck{}, DocumentContent{Document: &models.KYCDocument{ExpiryDate: &future}, Now: testNow}, true},
		{"expiry past", ExpiryCheck{}, DocumentContent{Document: &models.KYCDocument{ExpiryDate: &past}, Now: testNow}, false},
		{"expiry now", ExpiryCheck{}, DocumentContent{Document: &models.KYCDocument{ExpiryDate: &testNow}, Now: testNow}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc := tt.dc
			got, detail := tt.check.Check(&dc)
			if got != tt.want {
				t.Fatalf("%s = %v (%s), want %v", tt.check.Name(), got, detail, tt.want)
			}
			if !got && detail == "" {
				t.Errorf("failed check without detail")
			}
		})
	}
}

func TestCheckerRunANDsChecks(t *testing.T) {
	insp := newStubInspector()
	insp.set("front", cardImage("front"))
	insp.set("back", cardImage("back"))
	checker := NewVerificationChecker(insp)
	checker.Now = func() time.Time { return testNow }

	doc := &models.KYCDocument{ID: 3, DocumentType: models.DocNationalID, DocumentNumber: "1234567",
		FrontImageURL: "front", BackImageURL: "back"}
	v, err := checker.Run(context.Background(), doc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !v.Verified || v.DocumentID != 3 || !v.CheckedAt.Equal(testNow) {
		t.Fatalf("verdict = %+v", v)
	}
	names := map[string]bool{}
	for _, c := range v.Checks {
		names[c.Name] = true
	}
	for _, n := range []string{"contour", "text_fields", "image_quality", "tamper", "expiry", "back_contour"} {
		if !names[n] {
			t.Errorf("check %s not run", n)
		}
	}

	doc.DocumentNumber = "bad!"
	v, _ = checker.Run(context.Background(), doc)
	if v.Verified {
		t.Fatal("one failed check must fail the verdict")
	}

	// без оборота back_contour не запускается
	passport := &models.KYCDocument{DocumentType: models.DocPassport, DocumentNumber: "A1234567", FrontImageURL: "front"}
	v, _ = checker.Run(context.Background(), passport)
	for _, c := range v.Checks {
		if c.Name == "back_contour" {
			t.Fatal("back_contour ran without a back image")
		}
	}
	if !v.Verified {
		t.Fatalf("passport verdict = %+v", v)
	}
}

func TestCheckerRunCancelled(t *testing.T) {
	checker := NewVerificationChecker(newStubInspector())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := checker.Run(ctx, &models.KYCDocument{FrontImageURL: "x"}); err == nil {
		t.Fatal("expected context error")
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHTTPImageInspector(t *testing.T) {
	data := testPNG(t, 800, 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/id.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	insp := NewHTTPImageInspector(5*time.Second, "", "")
	info, err := insp.Inspect(context.Background(), srv.URL+"/id.png")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Format != "png" || info.Width != 800 || info.Height != 500 {
		t.Errorf("info = %+v", info)
	}
	if info.Size != int64(len(data)) || len(info.SHA256) != 64 {
		t.Errorf("size/hash = %d/%q", info.Size, info.SHA256)
	}

	if _, err := insp.Inspect(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Error("404 must be an error")
	}

	insp.MaxBytes = 16
	if _, err := insp.Inspect(context.Background(), srv.URL+"/id.png"); err == nil {
		t.Error("oversized body must be an error")
	}
}

func TestHTTPImageInspectorLocalFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "kyc", "1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "kyc", "1", "a.png"), testPNG(t, 640, 480), 0o644); err != nil {
		t.Fatal(err)
	}
	insp := NewHTTPImageInspector(time.Second, "http://localhost:8080/files/", root)

	info, err := insp.Inspect(context.Background(), "http://localhost:8080/files/kyc/1/a.png")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Width != 640 || info.Height != 480 {
		t.Errorf("info = %+v", info)
	}
	// выход за пределы root
	if _, err := insp.Inspect(context.Background(), "http://localhost:8080/files/../../etc/passwd"); err == nil {
		t.Error("path traversal must fail")
	}
}
