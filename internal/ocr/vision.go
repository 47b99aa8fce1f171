// Package ocr reads the text off scanned trip tickets with Google Cloud
// Vision document text detection.
//
// Scans are sent inline and synchronously, which limits them to 20MB and five
// pages. Credentials come from GOOGLE_CREDENTIALS (inline JSON) or
// GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to application
// default credentials.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"waybill/internal/logger"
)

const (
	// MaxFileSizeBytes is the largest scan accepted (20MB).
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPages is the most pages a synchronous request may return.
	MaxPages = 5
)

// Scanner turns a scanned PDF into text.
type Scanner interface {
	Scan(ctx context.Context, pdf io.Reader) (*Result, error)
}

// Result is the recognised text of one scan.
type Result struct {
	Text       string        `json:"text"`
	PageCount  int           `json:"page_count"`
	Confidence float32       `json:"confidence"` // mean page confidence, 0 to 1
	ScannedAt  time.Time     `json:"scanned_at"`
	Duration   time.Duration `json:"duration"`
}

// Annotator is the part of the Vision client the scanner calls.
type Annotator interface {
	BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error)
	Close() error
}

// VisionScanner is a Scanner backed by Google Cloud Vision.
type VisionScanner struct {
	client Annotator
	log    zerolog.Logger
}

// NewVisionScanner connects to Vision with credentials from the environment.
func NewVisionScanner(ctx context.Context) (*VisionScanner, error) {
	const op = "NewVisionScanner"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, wrap(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, wrap(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, wrap(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return NewVisionScannerWithClient(client), nil
}

// NewVisionScannerWithClient creates a scanner over an explicit client (for testing).
func NewVisionScannerWithClient(client Annotator) *VisionScanner {
	return &VisionScanner{
		client: client,
		log:    logger.WithComponent("ocr"),
	}
}

// Scan recognises the text of every page of pdf. Pages are joined with a
// newline in page order.
func (v *VisionScanner) Scan(ctx context.Context, pdf io.Reader) (*Result, error) {
	const op = "Scan"
	start := time.Now()

	data, err := io.ReadAll(pdf)
	if err != nil {
		return nil, wrap(op, err, "failed to read PDF data")
	}
	if len(data) > MaxFileSizeBytes {
		return nil, wrap(op, ErrPDFTooLarge, fmt.Sprintf("file size: %d bytes", len(data)))
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, wrap(op, ErrInvalidPDF, "missing PDF header")
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	v.log.Debug().Int("bytes", len(data)).Msg("Sending scan to Vision")

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, wrap(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.GetResponses()) == 0 {
		return nil, wrap(op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.GetResponses()[0]
	if fileResp.GetError() != nil {
		return nil, wrap(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.GetError().GetMessage()))
	}

	result, err := collectPages(fileResp.GetResponses())
	if err != nil {
		return nil, wrap(op, err, "failed to read Vision response")
	}

	result.ScannedAt = time.Now()
	result.Duration = result.ScannedAt.Sub(start)

	v.log.Info().
		Int("pages", result.PageCount).
		Float32("confidence", result.Confidence).
		Int("text_length", len(result.Text)).
		Dur("duration", result.Duration).
		Msg("Scanned trip ticket")

	return result, nil
}

// Close releases the Vision client.
func (v *VisionScanner) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

func collectPages(pages []*visionpb.AnnotateImageResponse) (*Result, error) {
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}
	if len(pages) > MaxPages {
		return nil, fmt.Errorf("%w: document has %d pages", ErrTooManyPages, len(pages))
	}

	var text strings.Builder
	var confSum float32
	var confCount int

	for i, page := range pages {
		if page.GetError() != nil {
			return nil, fmt.Errorf("%w: page %d: %s", ErrOCRFailed, i+1, page.GetError().GetMessage())
		}
		annotation := page.GetFullTextAnnotation()
		if annotation == nil {
			continue
		}
		text.WriteString(annotation.GetText())
		text.WriteString("\n")

		for _, p := range annotation.GetPages() {
			if p.GetConfidence() > 0 {
				confSum += p.GetConfidence()
				confCount++
			}
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyDocument
	}

	var confidence float32
	if confCount > 0 {
		confidence = confSum / float32(confCount)
	}

	return &Result{
		Text:       text.String(),
		PageCount:  len(pages),
		Confidence: confidence,
	}, nil
}
