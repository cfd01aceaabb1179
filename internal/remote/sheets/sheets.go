// Package sheets stores remote tables in a Google Sheets spreadsheet, one
// tab per table with a header row of column names.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"nirmaan/internal/log"
	"nirmaan/internal/remote"
)

// Host is what connectivity probes dial for this backend.
const Host = "sheets.googleapis.com:443"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	log           *log.Logger

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var _ remote.TableStore = (*Client)(nil)

var spreadsheetURL = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// SpreadsheetID accepts either a bare id or a full spreadsheet URL.
func SpreadsheetID(ref string) string {
	ref = strings.TrimSpace(ref)
	if m := spreadsheetURL.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ref
}

// New connects to the spreadsheet at ref. credential is a service
// account key, either inline JSON or a path to the JSON file.
func New(ctx context.Context, ref, credential string, logger *log.Logger) (*Client, error) {
	id := SpreadsheetID(ref)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: id,
		log:           logger.WithComponent(log.ComponentRemote),
		sheetIDs:      make(map[string]int64),
	}, nil
}

func newSheetsService(ctx context.Context, credential string) (*gsheet.Service, error) {
	credential = strings.TrimSpace(credential)
	var credentialsJSON []byte
	switch {
	case strings.HasPrefix(credential, "{"):
		credentialsJSON = []byte(credential)
	case credential != "":
		b, err := os.ReadFile(credential)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func tableRange(table string) string {
	return fmt.Sprintf("'%s'!A:ZZ", table)
}

// SelectAll reads every data row of table. A missing tab is created and
// reads as empty.
func (c *Client) SelectAll(ctx context.Context, table string) ([]remote.Row, error) {
	if !remote.KnownTable(table) {
		return nil, fmt.Errorf("%w: %s", remote.ErrUnknownTable, table)
	}
	if _, err := c.ensureSheet(ctx, table); err != nil {
		return nil, err
	}
	values, err := c.read(ctx, table)
	if err != nil {
		return nil, err
	}
	return rowsFromValues(values), nil
}

// Upsert rewrites rows whose id is already present and appends the rest.
func (c *Client) Upsert(ctx context.Context, table string, rows []remote.Row) error {
	if !remote.KnownTable(table) {
		return fmt.Errorf("%w: %s", remote.ErrUnknownTable, table)
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := c.ensureSheet(ctx, table); err != nil {
		return err
	}
	values, err := c.read(ctx, table)
	if err != nil {
		return err
	}

	updates := planUpsert(table, values, rows)
	data := make([]*gsheet.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, &gsheet.ValueRange{
			Range:  fmt.Sprintf("'%s'!A%d", table, u.row),
			Values: [][]interface{}{u.values},
		})
	}
	_, err = c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	c.log.DebugContext(ctx, "Rows written", log.FieldTable, table, log.FieldRows, len(rows))
	return nil
}

// Delete removes the rows whose id is in ids.
func (c *Client) Delete(ctx context.Context, table string, ids []string) error {
	if !remote.KnownTable(table) {
		return fmt.Errorf("%w: %s", remote.ErrUnknownTable, table)
	}
	if len(ids) == 0 {
		return nil
	}
	sheetID, err := c.ensureSheet(ctx, table)
	if err != nil {
		return err
	}
	values, err := c.read(ctx, table)
	if err != nil {
		return err
	}
	indexes := planDelete(values, ids)
	if len(indexes) == 0 {
		return nil
	}
	reqs := make([]*gsheet.Request, 0, len(indexes))
	for _, i := range indexes {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(i),
					EndIndex:   int64(i + 1),
				},
			},
		})
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func (c *Client) read(ctx context.Context, table string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tableRange(table)).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return resp.Values, nil
}

// ensureSheet returns the tab id for table, adding the tab if needed.
func (c *Client) ensureSheet(ctx context.Context, table string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.sheetIDs[table]; ok {
		return id, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	if id, ok := c.sheetIDs[table]; ok {
		return id, nil
	}

	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{AddSheet: &gsheet.AddSheetRequest{
			Properties: &gsheet.SheetProperties{Title: table},
		}}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", table, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("add sheet %s: empty reply", table)
	}
	id := resp.Replies[0].AddSheet.Properties.SheetId
	c.sheetIDs[table] = id
	c.log.InfoContext(ctx, "Created sheet", log.FieldTable, table)
	return id, nil
}
