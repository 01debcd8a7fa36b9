package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const registerSheet = "Applications"

var registerHeader = []string{
	"Application ID", "Certificate Type", "Applicant", "Status",
	"Track", "Submitted", "Last Updated", "Certificate No.",
}

// writeRegisterWorkbook builds the register workbook with a styled, frozen
// header row and an auto-filter over the data range.
func writeRegisterWorkbook(rows []RegisterRow) (io.Reader, error) {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", registerSheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, title := range registerHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(registerSheet, cell, title)
	}
	endCol, _ := excelize.CoordinatesToCellName(len(registerHeader), 1)
	f.SetCellStyle(registerSheet, "A1", endCol, headerStyle)
	f.SetPanes(registerSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	for i, row := range rows {
		certNo := ""
		if row.CertificateNo != nil {
			certNo = *row.CertificateNo
		}
		values := []interface{}{
			row.ApplicationID, row.CertificateType, row.FullName, row.Status,
			row.Track, row.CreatedAt, row.UpdatedAt, certNo,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(registerSheet, cell, v)
		}
	}

	if len(rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(registerHeader), len(rows)+1)
		f.AutoFilter(registerSheet, "A1:"+lastCell, nil)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf, nil
}
