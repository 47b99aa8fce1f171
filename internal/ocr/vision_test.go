package ocr

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	statuspb "google.golang.org/genproto/googleapis/rpc/status"
)

type fakeAnnotator struct {
	resp   *visionpb.BatchAnnotateFilesResponse
	err    error
	req    *visionpb.BatchAnnotateFilesRequest
	closed bool
}

func (f *fakeAnnotator) BatchAnnotateFiles(_ context.Context, req *visionpb.BatchAnnotateFilesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error {
	f.closed = true
	return nil
}

func page(text string, confidence float32) *visionpb.AnnotateImageResponse {
	return &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{
			Text:  text,
			Pages: []*visionpb.Page{{Confidence: confidence}},
		},
	}
}

func response(pages ...*visionpb.AnnotateImageResponse) *visionpb.BatchAnnotateFilesResponse {
	return &visionpb.BatchAnnotateFilesResponse{
		Responses: []*visionpb.AnnotateFileResponse{{Responses: pages}},
	}
}

var pdf = []byte("%PDF-1.4 scanned ticket")

func TestScan(t *testing.T) {
	fake := &fakeAnnotator{resp: response(page("TRIP TICKET 045871", 0.9), page("SEAL 778812", 0.7))}
	s := NewVisionScannerWithClient(fake)

	result, err := s.Scan(context.Background(), bytes.NewReader(pdf))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if result.Text != "TRIP TICKET 045871\nSEAL 778812\n" {
		t.Errorf("Text = %q", result.Text)
	}
	if result.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", result.PageCount)
	}
	if result.Confidence < 0.79 || result.Confidence > 0.81 {
		t.Errorf("Confidence = %v, want 0.8", result.Confidence)
	}
	if result.ScannedAt.IsZero() {
		t.Error("ScannedAt not set")
	}

	sent := fake.req.GetRequests()[0]
	if sent.GetInputConfig().GetMimeType() != "application/pdf" {
		t.Errorf("mime type = %q", sent.GetInputConfig().GetMimeType())
	}
	if sent.GetFeatures()[0].GetType() != visionpb.Feature_DOCUMENT_TEXT_DETECTION {
		t.Errorf("feature = %v", sent.GetFeatures()[0].GetType())
	}

	if err := s.Close(); err != nil || !fake.closed {
		t.Fatalf("Close = %v, closed = %v", err, fake.closed)
	}
}

func TestScanRejectsNonPDF(t *testing.T) {
	fake := &fakeAnnotator{}
	s := NewVisionScannerWithClient(fake)

	_, err := s.Scan(context.Background(), strings.NewReader("PK\x03\x04 not a pdf"))
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("err = %v, want ErrInvalidPDF", err)
	}
	if fake.req != nil {
		t.Fatal("Vision called for an invalid PDF")
	}
}

func TestScanRejectsLargeFile(t *testing.T) {
	s := NewVisionScannerWithClient(&fakeAnnotator{})

	big := make([]byte, MaxFileSizeBytes+1)
	copy(big, pdf)
	_, err := s.Scan(context.Background(), bytes.NewReader(big))
	if !errors.Is(err, ErrPDFTooLarge) {
		t.Fatalf("err = %v, want ErrPDFTooLarge", err)
	}
}

func TestScanTooManyPages(t *testing.T) {
	pages := make([]*visionpb.AnnotateImageResponse, MaxPages+1)
	for i := range pages {
		pages[i] = page("text", 0.9)
	}
	s := NewVisionScannerWithClient(&fakeAnnotator{resp: response(pages...)})

	_, err := s.Scan(context.Background(), bytes.NewReader(pdf))
	if !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("err = %v, want ErrTooManyPages", err)
	}
}

func TestScanEmptyDocument(t *testing.T) {
	s := NewVisionScannerWithClient(&fakeAnnotator{resp: response(page("  \n", 0), &visionpb.AnnotateImageResponse{})})

	_, err := s.Scan(context.Background(), bytes.NewReader(pdf))
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("err = %v, want ErrEmptyDocument", err)
	}
}

func TestScanFailures(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeAnnotator
	}{
		{"api error", &fakeAnnotator{err: errors.New("permission denied")}},
		{"no responses", &fakeAnnotator{resp: &visionpb.BatchAnnotateFilesResponse{}}},
		{"file error", &fakeAnnotator{resp: &visionpb.BatchAnnotateFilesResponse{
			Responses: []*visionpb.AnnotateFileResponse{{Error: &statuspb.Status{Message: "bad file"}}},
		}}},
		{"page error", &fakeAnnotator{resp: response(&visionpb.AnnotateImageResponse{
			Error: &statuspb.Status{Message: "bad page"},
		})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVisionScannerWithClient(tt.fake).Scan(context.Background(), bytes.NewReader(pdf))
			if !errors.Is(err, ErrOCRFailed) {
				t.Fatalf("err = %v, want ErrOCRFailed", err)
			}
			var ocrErr *Error
			if !errors.As(err, &ocrErr) || ocrErr.Op != "Scan" {
				t.Fatalf("err = %#v, want *Error with Op Scan", err)
			}
		})
	}
}
