package documents

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"mercator-hq/auditor/pkg/audit"
)

// cellSeparator joins cells of a row in the document text.
const cellSeparator = " | "

// readWorkbook flattens every sheet into text, one line per non-empty row,
// and emits a chunk per row. The first non-empty row of a sheet is its header.
func readWorkbook(documentID, path string) (*audit.DocumentContent, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		text   strings.Builder
		chunks []audit.DocumentChunk
	)
	sheets := f.GetSheetList()
	for tableIndex, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		rowIndex := 0
		for excelRow, cells := range rows {
			line := joinCells(cells)
			if line == "" {
				continue
			}
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			start := text.Len()
			text.WriteString(line)

			typ := audit.ChunkTableRow
			if rowIndex == 0 {
				typ = audit.ChunkTableHeader
			}
			idx := len(chunks)
			chunks = append(chunks, audit.DocumentChunk{
				ID:         fmt.Sprintf("%s#%d", documentID, idx),
				DocumentID: documentID,
				Index:      idx,
				Text:       line,
				Type:       typ,
				StartPos:   start,
				EndPos:     start + len(line),
				Metadata: map[string]any{
					"section":     sheet,
					"sheet":       sheet,
					"table_index": tableIndex,
					"row_index":   rowIndex,
					"excel_row":   excelRow + 1,
				},
			})
			rowIndex++
		}
	}

	return &audit.DocumentContent{
		ID:     documentID,
		Title:  strings.Join(sheets, ", "),
		Text:   text.String(),
		Chunks: chunks,
		Metadata: map[string]string{
			"format": "xlsx",
			"sheets": fmt.Sprint(len(sheets)),
		},
	}, nil
}

func joinCells(cells []string) string {
	last := len(cells)
	for last > 0 && strings.TrimSpace(cells[last-1]) == "" {
		last--
	}
	if last == 0 {
		return ""
	}
	parts := make([]string, last)
	for i, c := range cells[:last] {
		parts[i] = strings.Join(strings.Fields(c), " ")
	}
	return strings.Join(parts, cellSeparator)
}
