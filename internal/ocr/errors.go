package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrPDFTooLarge is returned when the scan exceeds the synchronous
	// Vision limit of 20MB.
	ErrPDFTooLarge = errors.New("PDF file size exceeds the maximum limit (20MB)")

	// ErrInvalidPDF is returned when the data does not start with a PDF header.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrOCRFailed is returned when the Vision API call or one of its pages fails.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when no Google credentials could be found.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrTooManyPages is returned when a scan has more than five pages.
	ErrTooManyPages = errors.New("PDF has too many pages (maximum 5 pages for synchronous processing)")

	// ErrEmptyDocument is returned when no text was recognised.
	ErrEmptyDocument = errors.New("document contains no readable text")
)

// Error records which scan step failed.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrap returns err as an *Error unless it already is one.
func wrap(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var ocrErr *Error
	if errors.As(err, &ocrErr) {
		return err
	}
	return &Error{Op: op, Err: err, Details: details}
}
