package datapush

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet 导出工作表名称
const DefaultSheet = "Sheet1"

// SaveToExcel 将记录按列顺序写入 xlsx，第一行为列名
func SaveToExcel(filePath string, columns []string, rows []map[string]any) error {
	f := excelize.NewFile()
	defer f.Close()

	// 写入列名
	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(DefaultSheet, cell, name); err != nil {
			return fmt.Errorf("写入列名失败: %w", err)
		}
	}

	// 写入数据
	for rowIdx, row := range rows {
		for colIdx, name := range columns {
			v, ok := row[name]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(DefaultSheet, cell, v); err != nil {
				return fmt.Errorf("写入单元格 %s 失败: %w", cell, err)
			}
		}
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}
