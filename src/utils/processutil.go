package utils

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-gota/gota/dataframe"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// FoldKey 列名比较键：去重音、小写、合并空白
// "Nombre de trains annulés " 与 "nombre de trains annules" 得到相同的键
func FoldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.NewReplacer("’", "'", "`", "'").Replace(folded)
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// ContainsFold 不区分大小写与重音的子串判断
func ContainsFold(s, substr string) bool {
	return strings.Contains(FoldKey(s), FoldKey(substr))
}

var nullValues = []string{"", "na", "nan", "n/a", "null", "<nil>"}

// IsNull 判断单元格是否为空值
func IsNull(s string) bool {
	return Contains(nullValues, strings.ToLower(strings.TrimSpace(s)))
}

var spaceRemover = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "\t", "")

// NormalizeNumber 统一数字写法："1 234,5" -> "1234.5"
func NormalizeNumber(s string) string {
	s = spaceRemover.Replace(strings.TrimSpace(s))
	return strings.ReplaceAll(s, ",", ".")
}

// ParseNumber 严格解析数字，空值或非法值返回 false
func ParseNumber(s string) (float64, bool) {
	if IsNull(s) {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(NormalizeNumber(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// ParseMetric 宽松解析计数/比率列：去掉数字、小数点和负号以外的字符后解析
// "85,3 %" -> 85.3，"-5" -> -5
func ParseMetric(s string) (float64, bool) {
	if IsNull(s) {
		return math.NaN(), false
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, NormalizeNumber(s))
	if cleaned == "" {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}

// ParseYearMonth 解析 "2023-05"、"2023-5"、"2023-05-01" 或 "05/2023"，非法月份返回 false
func ParseYearMonth(s string) (year, month int, ok bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Year(), int(t.Month()), true
	}

	var first, second string
	switch {
	case strings.Count(s, "-") == 1:
		first, second, _ = strings.Cut(s, "-")
	case strings.Count(s, "/") == 1:
		first, second, _ = strings.Cut(s, "/")
	default:
		return 0, 0, false
	}
	a, errA := strconv.Atoi(first)
	b, errB := strconv.Atoi(second)
	if errA != nil || errB != nil {
		return 0, 0, false
	}

	// 四位数在前为 年-月，否则为 月/年
	switch {
	case len(first) == 4:
		year, month = a, b
	case len(second) == 4:
		year, month = b, a
	default:
		return 0, 0, false
	}
	if month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, month, true
}
