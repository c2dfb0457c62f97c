package datapush

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SaveToCSV 写入带 BOM 的分号分隔文件，便于 Excel 直接打开
func SaveToCSV(filePath string, columns []string, rows []map[string]any) error {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("创建CSV文件失败: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return fmt.Errorf("写入BOM失败: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("写入列名失败: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, name := range columns {
			record[i] = formatValue(row[name])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("写入数据失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("写入CSV文件失败: %w", err)
	}
	return nil
}

// SaveToJSON 写入记录数组
func SaveToJSON(filePath string, rows []map[string]any) error {
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("写入JSON文件失败: %w", err)
	}
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
