package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	applog "fintrack/internal/log"
)

// SheetsConfig names the target sheet and the service account used to
// write it. CredentialsJSON wins over CredentialsFile.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

func (c SheetsConfig) Validate() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return errors.New("missing spreadsheet ID")
	}
	if strings.TrimSpace(c.SheetName) == "" {
		return errors.New("missing sheet name")
	}
	return nil
}

func (c SheetsConfig) credentials() ([]byte, error) {
	switch {
	case strings.TrimSpace(c.CredentialsJSON) != "":
		return []byte(c.CredentialsJSON), nil
	case strings.TrimSpace(c.CredentialsFile) != "":
		b, err := os.ReadFile(c.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// SheetsExporter replaces the contents of one sheet with exported rows.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
	logger        *applog.Logger
}

// NewSheetsExporter creates a Sheets client authenticated with the
// configured service account.
func NewSheetsExporter(ctx context.Context, cfg SheetsConfig, logger *applog.Logger) (*SheetsExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	creds, err := cfg.credentials()
	if err != nil {
		return nil, err
	}
	return newSheetsExporter(ctx, cfg, logger,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func newSheetsExporter(ctx context.Context, cfg SheetsConfig, logger *applog.Logger, opts ...goption.ClientOption) (*SheetsExporter, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheet:         cfg.SheetName,
		logger:        logger.WithComponent(applog.ComponentExport),
	}, nil
}

// Export clears the sheet and writes the header and rows starting at A1.
// It returns the number of data rows written.
func (e *SheetsExporter) Export(ctx context.Context, rows []Row) (int, error) {
	cells, err := table(rows)
	if err != nil {
		return 0, err
	}

	clearRange := fmt.Sprintf("%s!A:Z", e.sheet)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return 0, fmt.Errorf("clear sheet %s: %w", e.sheet, err)
	}

	values := make([][]any, len(cells))
	for i, row := range cells {
		values[i] = make([]any, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}
	writeRange := fmt.Sprintf("%s!A1", e.sheet)
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, writeRange, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return 0, fmt.Errorf("write sheet %s: %w", e.sheet, err)
	}

	e.logger.InfoContext(ctx, "Exported transactions to Google Sheets",
		"spreadsheet_id", e.spreadsheetID,
		"sheet", e.sheet,
		"rows", len(rows),
		applog.FieldOperation, applog.OpExport)
	return len(rows), nil
}
