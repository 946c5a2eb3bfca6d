package google

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tally/internal/core"

	gsheet "google.golang.org/api/sheets/v4"
)

// Column layout of the ledger sheet.
const (
	colTimestamp = iota
	colOwner
	colEntity
	colKind
	colAmount
	colDescription
	colID
)

var headers = []string{"timestamp", "owner_id", "entity", "kind", "amount", "description", "id"}

func headerRow() []interface{} {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}

// transactionRow renders tx in sheet column order. Amounts are written as
// numbers so the sheet can sum them.
func transactionRow(tx core.Transaction) []interface{} {
	return []interface{}{
		tx.Timestamp.UTC().Format(time.RFC3339),
		tx.OwnerID,
		tx.Entity,
		tx.Kind.String(),
		tx.Amount.Float(),
		tx.Description,
		tx.ID,
	}
}

// ownerRowIndexes returns the zero-based row positions owned by ownerID.
// The header row never matches.
func ownerRowIndexes(values [][]interface{}, ownerID string) []int {
	var out []int
	for i, raw := range values {
		row := toStrings(raw)
		if i == 0 && isHeader(row) {
			continue
		}
		if strings.TrimSpace(safeGet(row, colOwner)) == ownerID {
			out = append(out, i)
		}
	}
	return out
}

// deleteRowRequests builds one DeleteDimension per row, bottom-up so earlier
// deletions do not shift the later ones.
func deleteRowRequests(sheetID int64, rows []int) []*gsheet.Request {
	sorted := append([]int(nil), rows...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	reqs := make([]*gsheet.Request, 0, len(sorted))
	for _, r := range sorted {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(r),
					EndIndex:   int64(r + 1),
				},
			},
		})
	}
	return reqs
}

// idsFromColumn collects transaction ids from a single-column read of G:G.
func idsFromColumn(values [][]interface{}) map[string]struct{} {
	ids := make(map[string]struct{}, len(values))
	for i, raw := range values {
		row := toStrings(raw)
		id := strings.TrimSpace(safeGet(row, 0))
		if id == "" || (i == 0 && strings.EqualFold(id, headers[colID])) {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

func isHeader(row []string) bool {
	return indexOf(row, headers[colOwner]) == colOwner && indexOf(row, headers[colID]) == colID
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
