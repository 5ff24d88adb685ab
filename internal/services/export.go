package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExportWorkbook bundles the three dataset tables into one xlsx workbook,
// one sheet per table. Tables that do not exist yet are skipped.
func ExportWorkbook(dataDir, outPath string) error {
	workbook := excelize.NewFile()
	defer workbook.Close()

	sheets := []struct {
		file  string
		sheet string
	}{
		{ItemsFile, "Items"},
		{DailyFile, "Daily"},
		{OrderBookFile, "OrderBook"},
	}

	written := 0
	for _, s := range sheets {
		header, rows, err := LoadTable(filepath.Join(dataDir, s.file))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}

		if _, err := workbook.NewSheet(s.sheet); err != nil {
			return err
		}
		if err := writeSheet(workbook, s.sheet, header, rows); err != nil {
			return err
		}
		written++
	}

	if written == 0 {
		return fmt.Errorf("no dataset tables found in %s", dataDir)
	}

	// Drop the default sheet excelize creates.
	workbook.DeleteSheet("Sheet1")
	return workbook.SaveAs(outPath)
}

func writeSheet(workbook *excelize.File, sheet string, header []string, rows [][]string) error {
	writeRow := func(rowNum int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		return workbook.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeRow(i+2, row); err != nil {
			return err
		}
	}
	return nil
}
