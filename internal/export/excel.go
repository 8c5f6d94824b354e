package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/qianyu2019/firedoor-extractor/internal/models"
	"github.com/qianyu2019/firedoor-extractor/pkg/logger"
)

// Excel sheet names are capped at 31 characters.
const maxSheetName = 31

var sheetHeader = []interface{}{
	"No.", "Door Type", "Door No.", "Opening Size", "Leaf Size",
	"Frame Material", "Leaf Material", "Sill Material", "Fire Core",
	"Glass", "Frame Seal", "Leaf Seal", "Hardware Group",
	"Hardware Name", "Brand", "Model", "Qty",
	"Finish Color (Push Side)", "Finish Color (Pull Side)",
}

// ExcelExporter accumulates one sheet per batch into a single workbook.
// One row per hardware item; a document's non-hardware columns are
// merged vertically across its hardware-row span.
type ExcelExporter struct {
	f   *excelize.File
	log logger.Logger
}

// NewExcelExporter creates an empty workbook.
func NewExcelExporter(log logger.Logger) *ExcelExporter {
	if log == nil {
		log = logger.NewNop()
	}
	return &ExcelExporter{f: excelize.NewFile(), log: log}
}

// AddSheet writes one batch to a new sheet named after the batch.
func (x *ExcelExporter) AddSheet(name string, records map[string]*models.ExtractionRecord) error {
	runes := []rune(name)
	if len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	if _, err := x.f.NewSheet(name); err != nil {
		return fmt.Errorf("export: failed to create sheet %q: %w", name, err)
	}

	if err := x.f.SetSheetRow(name, "A1", &[]interface{}{"Fire Door Data Export - " + name}); err != nil {
		return err
	}
	if err := x.f.MergeCell(name, "A1", "S1"); err != nil {
		return err
	}
	centered, err := x.f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}
	if err := x.f.SetCellStyle(name, "A1", "A1", centered); err != nil {
		return err
	}
	if err := x.f.SetSheetRow(name, "A2", &sheetHeader); err != nil {
		return err
	}

	row := 3
	serial := 0
	for _, key := range SortedKeys(records) {
		rec := records[key]
		span := len(rec.Hardware)
		if span < 1 {
			span = 1
		}
		serial++

		for i := 0; i < span; i++ {
			var item models.HardwareItem
			var qty interface{} = ""
			if i < len(rec.Hardware) {
				item = rec.Hardware[i]
				qty = item.Qty
			}
			var cells []interface{}
			if i == 0 {
				cells = []interface{}{
					serial, rec.DoorType, rec.DoorNo, rec.OpeningSize, rec.LeafSize,
					rec.FrameMaterial, rec.LeafMaterial, rec.SillMaterial, rec.FireCore,
					rec.Glass, rec.FrameSeal, rec.LeafSeal, rec.HardwareGroup,
					item.Name, item.Brand, item.Model, qty,
					rec.FinishColor.PushSide, rec.FinishColor.PullSide,
				}
			} else {
				cells = []interface{}{
					"", "", "", "", "", "", "", "", "", "", "", "", "",
					item.Name, item.Brand, item.Model, qty, "", "",
				}
			}
			cell, err := excelize.CoordinatesToCellName(1, row+i)
			if err != nil {
				return err
			}
			if err := x.f.SetSheetRow(name, cell, &cells); err != nil {
				return err
			}
		}

		if span > 1 {
			if err := x.mergeDocColumns(name, row, row+span-1); err != nil {
				return err
			}
		}
		row += span
	}

	x.log.Info("excel sheet written",
		logger.String("sheet", name),
		logger.Int("documents", serial),
	)
	return nil
}

// mergeDocColumns merges the non-hardware columns (A-M and R-S) across
// one document's row span.
func (x *ExcelExporter) mergeDocColumns(sheet string, top, bottom int) error {
	merge := func(col int) error {
		from, err := excelize.CoordinatesToCellName(col, top)
		if err != nil {
			return err
		}
		to, err := excelize.CoordinatesToCellName(col, bottom)
		if err != nil {
			return err
		}
		return x.f.MergeCell(sheet, from, to)
	}
	for col := 1; col <= 13; col++ {
		if err := merge(col); err != nil {
			return err
		}
	}
	for col := 18; col <= 19; col++ {
		if err := merge(col); err != nil {
			return err
		}
	}
	return nil
}

// Save drops the default sheet and writes the workbook to path.
func (x *ExcelExporter) Save(path string) error {
	if err := x.f.DeleteSheet("Sheet1"); err != nil {
		x.log.Warn("can't delete default sheet", logger.Error(err))
	}
	if err := x.f.SaveAs(path); err != nil {
		return fmt.Errorf("export: failed to save workbook: %w", err)
	}
	return x.f.Close()
}
