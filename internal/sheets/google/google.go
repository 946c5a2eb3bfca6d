package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"tally/internal/core"
	ports "tally/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultSheetName = "Ledger"

	// Known ids are re-read from the sheet after this long so manual edits are noticed.
	defaultIDCacheTTL = 5 * time.Minute
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu                 sync.Mutex
	knownIDs           map[string]struct{}
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// Ensure interface conformance
var _ ports.LedgerExporter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Ledger")
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_SHEET_NAME"))
}

func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = DefaultSheetName
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: defaultIDCacheTTL,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials() ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) rangeOf(cols string) string {
	return fmt.Sprintf("'%s'!%s", c.sheetName, cols)
}

// EnsureHeader writes the column header when the first row is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	rng := c.rangeOf("A1:G1")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	vr := &gsheet.ValueRange{Values: [][]interface{}{headerRow()}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	slog.InfoContext(ctx, "Wrote ledger sheet header", "sheet", c.sheetName)
	return nil
}

// WarmCache loads the ids already present in the sheet.
func (c *Client) WarmCache(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.knownIDsLocked(ctx)
	return err
}

func (c *Client) AppendTransaction(ctx context.Context, tx core.Transaction) error {
	if tx.ID == "" {
		return errors.New("transaction without id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.knownIDsLocked(ctx)
	if err != nil {
		return err
	}
	if _, ok := ids[tx.ID]; ok {
		slog.DebugContext(ctx, "Transaction already exported", "id", tx.ID)
		return nil
	}

	vr := &gsheet.ValueRange{Values: [][]interface{}{transactionRow(tx)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.rangeOf("A:G"), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	ids[tx.ID] = struct{}{}
	return nil
}

func (c *Client) DeleteOwnerRows(ctx context.Context, ownerID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rangeOf("A:G")).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read rows: %w", err)
	}
	rows := ownerRowIndexes(resp.Values, ownerID)
	if len(rows) == 0 {
		return 0, nil
	}

	sheetID, err := c.sheetID(ctx)
	if err != nil {
		return 0, err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: deleteRowRequests(sheetID, rows)}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}

	// Row positions shifted; reload ids on next use.
	c.knownIDs = nil
	c.cacheExpiresAt = time.Time{}
	return len(rows), nil
}

func (c *Client) sheetID(ctx context.Context) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == c.sheetName {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}

func (c *Client) knownIDsLocked(ctx context.Context) (map[string]struct{}, error) {
	if c.knownIDs != nil && time.Now().Before(c.cacheExpiresAt) {
		return c.knownIDs, nil
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rangeOf("G:G")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read exported ids: %w", err)
	}
	c.knownIDs = idsFromColumn(resp.Values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return c.knownIDs, nil
}
