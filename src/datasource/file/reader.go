// reader.go
package file

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/charmap"
)

const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin-1"
	EncodingXLSX   = "xlsx"
)

// 分隔符：优先分号，失败时回退逗号
var separators = []rune{';', ','}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table 解析后的原始表格，所有单元格保持字符串
type Table struct {
	Header    []string
	Rows      [][]string
	Separator rune
	Encoding  string
	Malformed int // 因字段过多被跳过的行数
}

// ToDataFrame 转换为全字符串列的 gota DataFrame
// 只有表头时返回零行的 DataFrame
func (t *Table) ToDataFrame() dataframe.DataFrame {
	if len(t.Rows) == 0 {
		columns := make([]series.Series, 0, len(t.Header))
		for _, name := range t.Header {
			columns = append(columns, series.New([]string{}, series.String, name))
		}
		return dataframe.New(columns...)
	}
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Header)
	records = append(records, t.Rows...)
	return dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

// ReadFile 按扩展名读取 csv/txt 或 xlsx 文件
func ReadFile(path, sheetName string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path, sheetName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败 %s: %w", path, err)
	}
	return ReadDelimited(data)
}

// DecodeText UTF-8 无效时按 Latin-1 解码
func DecodeText(data []byte) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), EncodingUTF8, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("latin-1 解码失败: %w", err)
	}
	return string(decoded), EncodingLatin1, nil
}

// ReadDelimited 解析分隔文本
// 分号解析失败或只得到一列时回退到逗号
func ReadDelimited(data []byte) (*Table, error) {
	text, encoding, err := DecodeText(data)
	if err != nil {
		return nil, err
	}

	var errs []error
	for i, sep := range separators {
		table, err := parseDelimited(text, sep)
		if err != nil {
			errs = append(errs, fmt.Errorf("分隔符 %q: %w", sep, err))
			continue
		}
		if len(table.Header) <= 1 && i < len(separators)-1 {
			continue
		}
		table.Encoding = encoding
		return table, nil
	}
	return nil, fmt.Errorf("无法解析分隔文本: %w", errors.Join(errs...))
}

func parseDelimited(text string, sep rune) (*Table, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	table := &Table{Separator: sep}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && table.Header != nil {
				table.Malformed++
				continue
			}
			return nil, err
		}

		if table.Header == nil {
			table.Header = trimAll(record)
			continue
		}
		if isBlank(record) {
			continue
		}
		row, ok := fitRow(record, len(table.Header))
		if !ok {
			table.Malformed++
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	if table.Header == nil {
		return nil, fmt.Errorf("缺少表头")
	}
	return table, nil
}

// fitRow 字段不足补空，字段过多视为坏行
func fitRow(record []string, width int) ([]string, bool) {
	if len(record) > width {
		return nil, false
	}
	row := make([]string, width)
	for i, v := range record {
		row[i] = strings.TrimSpace(v)
	}
	return row, true
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadXLSX 读取 xlsx 工作表，sheetName 为空时取第一个工作表
// 第一个非空行为表头
func ReadXLSX(filePath, sheetName string) (*Table, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsx 打开失败: %w", err)
	}
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表: %s", filePath)
	}

	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("工作表 %s 不存在", sheetName)
		}
		sheet = s
	}
	return convertSheet(sheet)
}

// convertSheet 将xlsx.Sheet转换为Table
func convertSheet(sheet *xlsx.Sheet) (*Table, error) {
	table := &Table{Encoding: EncodingXLSX}
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		values := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			values[i] = cell.Value
		}
		if isBlank(values) {
			continue
		}
		if table.Header == nil {
			table.Header = trimAll(values)
			continue
		}
		fitted, ok := fitRow(values, len(table.Header))
		if !ok {
			table.Malformed++
			continue
		}
		table.Rows = append(table.Rows, fitted)
	}

	if table.Header == nil {
		return nil, fmt.Errorf("工作表 %s 为空", sheet.Name)
	}
	return table, nil
}
