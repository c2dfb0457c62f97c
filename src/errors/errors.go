// errors.go
package errors

import (
	"fmt"
	"strings"
)

/******************** 错误类型定义 ********************/

// DatasetError 数据集无法定位或读取
// 除非开启 skip-on-error，否则中止整个批处理
type DatasetError struct {
	Dataset string // 数据集逻辑名称
	Err     error  // 底层错误
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("数据集 %s 加载失败: %v", e.Dataset, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}

// NewDatasetError 创建数据集错误
func NewDatasetError(dataset string, err error) *DatasetError {
	return &DatasetError{Dataset: dataset, Err: err}
}

// SchemaError 缺少必需列，始终中止
type SchemaError struct {
	Dataset string   // 数据集逻辑名称
	Missing []string // 缺失列的展示名称
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("数据集 %s 缺少必需列: %s", e.Dataset, strings.Join(e.Missing, ", "))
}

// NotFoundError 解析器中不存在该名称
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("未知的数据集名称: %q", e.Name)
}

/******************** 校验警告 ********************/

// Reason 被丢弃的行或分组的原因
type Reason string

const (
	ReasonMissingEndpoint Reason = "missing_endpoint"  // 出发或到达为空
	ReasonSelfLoop        Reason = "self_loop"         // 出发 == 到达
	ReasonMissingKey      Reason = "missing_key"       // 分组键为空
	ReasonRateOutOfRange  Reason = "rate_out_of_range" // 平均准点率为空或不在 [0,100]
	ReasonMalformedLine   Reason = "malformed_line"    // 字段数超过表头
)

// ValidationWarning 非致命的数据质量问题，计入报告
type ValidationWarning struct {
	Reason Reason
	Count  int
}

func (w ValidationWarning) Error() string {
	return fmt.Sprintf("%s: 丢弃 %d 条", w.Reason, w.Count)
}

// Warnings 将计数表转换为按原因排序的警告列表
func Warnings(counts map[Reason]int) []ValidationWarning {
	order := []Reason{
		ReasonMalformedLine,
		ReasonMissingEndpoint,
		ReasonSelfLoop,
		ReasonMissingKey,
		ReasonRateOutOfRange,
	}
	var out []ValidationWarning
	for _, r := range order {
		if n := counts[r]; n > 0 {
			out = append(out, ValidationWarning{Reason: r, Count: n})
		}
	}
	return out
}
