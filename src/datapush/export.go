package datapush

import (
	"fmt"
	"os"
	"path/filepath"

	"RailPunctuality/src/pipeline"
)

// 导出格式
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Export 将结果按格式写入 dir/<base>.<ext>，返回写入的文件路径
func Export(result *pipeline.Result, dir, base string, formats ...string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	rows := result.Rows()
	columns := result.Columns()
	written := make(map[string]string, len(formats))
	for _, format := range formats {
		path := filepath.Join(dir, base+"."+format)
		var err error
		switch format {
		case FormatJSON:
			err = SaveToJSON(path, rows)
		case FormatCSV:
			err = SaveToCSV(path, columns, rows)
		case FormatXLSX:
			err = SaveToExcel(path, columns, rows)
		default:
			err = fmt.Errorf("不支持的导出格式: %s", format)
		}
		if err != nil {
			return written, err
		}
		written[format] = path
	}
	return written, nil
}
