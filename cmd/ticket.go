package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"waybill/internal/config"
	"waybill/internal/logger"
	"waybill/internal/ocr"
	"waybill/internal/ticket"
	"waybill/internal/trip"
	"waybill/pkg/models"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Work with scanned trip tickets",
}

var ticketExtractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Read trip-ticket fields from a scanned PDF",
	Long: `Run a scanned trip ticket through Google Cloud Vision OCR, pick out the trip
ticket number, seal, blocks, reference numbers, plate and origin, and fill the
crew from the reference workbook by origin.

With --complete, fields the patterns missed are requested from an OpenAI chat
model (requires OPENAI_API_KEY). With --session, a trip session file for
"waybill trip record" is written.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Print the extracted fields
  waybill ticket extract scan.pdf

  # JSON output with chat-model completion
  waybill ticket extract scan.pdf --json --complete

  # Prepare a session file for trip record
  waybill ticket extract scan.pdf --session trips.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runTicketExtract,
}

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketExtractCmd)

	ticketExtractCmd.Flags().Bool("json", false, "Output as JSON")
	ticketExtractCmd.Flags().Bool("complete", false, "Fill missing fields with a chat model")
	ticketExtractCmd.Flags().String("session", "", "Write a trip session YAML file to this path")
	ticketExtractCmd.Flags().String("raw", "", "Also write the raw OCR text to this path")
}

func runTicketExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ticket")

	jsonOutput, _ := cmd.Flags().GetBool("json")
	complete, _ := cmd.Flags().GetBool("complete")
	sessionPath, _ := cmd.Flags().GetString("session")
	rawPath, _ := cmd.Flags().GetString("raw")

	pdfPath := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validatePDFFile(pdfPath, log); err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	scanner, err := createScanner(ctx, log)
	if err != nil {
		return err
	}
	defer scanner.Close()

	pdfFile, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer pdfFile.Close()

	result, err := scanner.Scan(ctx, pdfFile)
	if err != nil {
		return handleOCRError(err, log)
	}

	if rawPath != "" {
		if err := os.WriteFile(rawPath, []byte(result.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write raw text: %w", err)
		}
	}

	data := ticket.Extract(result.Text, cfg.OriginKeywords)

	matched, err := ticket.Enrich(&data, newDirectory(cfg))
	if err != nil {
		log.Warn().Err(err).Msg("Reference lookup failed, continuing without fleet data")
	} else if !matched && data.Origin != "" {
		log.Warn().Str("origin", data.Origin).Msg("No reference entry for origin")
	}

	if complete && len(data.MissingFields()) > 0 {
		completer, err := ticket.NewCompleter(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return err
		}
		if _, err := completer.Complete(ctx, result.Text, &data); err != nil {
			log.Warn().Err(err).Msg("Chat completion failed, keeping extracted fields")
		}
	}

	if sessionPath != "" {
		if err := writeSession(sessionPath, data); err != nil {
			return err
		}
		log.Info().Str("session", sessionPath).Msg("Trip session written")
	}

	return printTicket(data, result, jsonOutput)
}

// validatePDFFile checks the scan exists, is a regular non-empty file and fits
// the OCR size limit.
func validatePDFFile(pdfPath string, log zerolog.Logger) error {
	info, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a regular file: %s", pdfPath)
	}
	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		log.Warn().Str("file", pdfPath).Msg("File does not have .pdf extension")
	}
	if info.Size() == 0 {
		return fmt.Errorf("PDF file is empty: %s", pdfPath)
	}
	if info.Size() > ocr.MaxFileSizeBytes {
		return fmt.Errorf("PDF file too large (%d bytes). Maximum size is %d bytes (20MB)",
			info.Size(), ocr.MaxFileSizeBytes)
	}
	return nil
}

func createScanner(ctx context.Context, log zerolog.Logger) (*ocr.VisionScanner, error) {
	scanner, err := ocr.NewVisionScanner(ctx)
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Error().Err(err).Msg("Google Cloud credentials not configured")
			return nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
				"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
				"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
				"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n" +
				"3. Use Application Default Credentials:\n" +
				"   gcloud auth application-default login")
		}
		return nil, fmt.Errorf("failed to create OCR scanner: %w", err)
	}
	return scanner, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try scanning at a lower resolution")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages (maximum 5 pages). Scan one trip ticket per file")
	case errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the scan")
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS and that the service account has the 'Cloud Vision API User' role: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your Google Cloud service account has the 'Cloud Vision API User' role")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "quota"):
		return fmt.Errorf("Google Cloud Vision API quota exceeded. Check your project quotas in the Google Cloud Console")
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

func writeSession(path string, data models.TicketData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer f.Close()

	if err := trip.Encode(f, trip.Session{Trips: []trip.Input{trip.FromTicket(data)}}); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func printTicket(data models.TicketData, result *ocr.Result, jsonOutput bool) error {
	if jsonOutput {
		out, err := json.MarshalIndent(struct {
			models.TicketData
			PageCount  int     `json:"page_count"`
			Confidence float32 `json:"confidence"`
		}{data, result.PageCount, result.Confidence}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	t := models.Trip{ReferenceNos: data.ReferenceNos, SealNos: data.SealNos}
	rows := [][]string{
		{"Trip ticket", orNotFound(data.TripTicket)},
		{"Delivery date", orNotFound(data.DeliveryDate)},
		{"Origin", orNotFound(data.Origin)},
		{"Plate no", orNotFound(data.PlateNo)},
		{"Total blocks", fmt.Sprintf("%d", data.TotalBlocks)},
		{"Reference nos", orNotFound(t.FormattedReferences())},
		{"Seal nos", orNotFound(t.FormattedSeals())},
	}
	if f := data.Fleet; f != nil {
		rows = append(rows,
			[]string{"Driver", orNotFound(f.Driver)},
			[]string{"Helper 1", orNotFound(f.Helper1)},
			[]string{"Helper 2", orNotFound(f.Helper2)},
			[]string{"Shipper", orNotFound(f.Shipper)},
			[]string{"Route", strings.TrimSpace(f.From + " -> " + f.To)},
		)
	}
	rows = append(rows, []string{"OCR", fmt.Sprintf("%d page(s), %.1f%% confidence", result.PageCount, result.Confidence*100)})

	fmt.Println(renderTable(tableSpec{
		columns: []column{{header: "Field"}, {header: "Value", state: true}},
		rows:    rows,
		color:   stdoutColor(),
	}))
	return nil
}

func orNotFound(s string) string {
	if s == "" {
		return notFound
	}
	return s
}
