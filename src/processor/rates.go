package processor

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DelayRate 晚点率(%)，运行车次为 0 时返回 0
func DelayRate(delayed, operated float64) float64 {
	if operated <= 0 || math.IsNaN(operated) || math.IsNaN(delayed) {
		return 0
	}
	return delayed / operated * 100
}

// CancellationRate 取消率(%)，计划车次为 0 时返回 0
func CancellationRate(cancelled, programmed float64) float64 {
	if programmed <= 0 || math.IsNaN(programmed) || math.IsNaN(cancelled) {
		return 0
	}
	return cancelled / programmed * 100
}

// Mean 算术平均，空输入返回 0
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return zeroNaN(stat.Mean(values, nil))
}

// WeightedMean 加权平均，空输入或权重和为 0 时返回 0
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}
	if floats.Sum(weights) == 0 {
		return 0
	}
	return zeroNaN(stat.Mean(values, weights))
}

// SampleStdDev 样本标准差(n-1)，少于两个值时返回 0
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return zeroNaN(stat.StdDev(values, nil))
}

// Round 展示层四舍五入，NaN 视为 0
func Round(v float64, precision int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// nanSum 忽略空值求和
func nanSum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}

// nanMean 忽略空值求平均，全部为空时返回 NaN
func nanMean(values []float64) float64 {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return math.NaN()
	}
	return stat.Mean(kept, nil)
}
