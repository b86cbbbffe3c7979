package market

import (
	"time"
)

type Candles []Candle

// Closes 提取收盘价序列，供 talib 系列函数使用。
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Highs 提取最高价序列。
func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

// Lows 提取最低价序列。
func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

// Volumes 提取成交量序列。
func (cs Candles) Volumes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

// Last 返回最近 n 根 K 线（不足 n 根时返回全部）。
func (cs Candles) Last(n int) Candles {
	if n <= 0 || len(cs) == 0 {
		return nil
	}
	if len(cs) <= n {
		return cs
	}
	return cs[len(cs)-n:]
}

// Latest 返回最后一根 K 线；空序列返回零值与 false。
func (cs Candles) Latest() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Ordered 校验时间戳是否严格递增。
func (cs Candles) Ordered() bool {
	for i := 1; i < len(cs); i++ {
		if cs[i].OpenTime <= cs[i-1].OpenTime {
			return false
		}
	}
	return true
}

func (c Candle) TimeString() string {
	ts := c.CloseTime
	if ts == 0 {
		ts = c.OpenTime
	}
	if ts <= 0 {
		return "-"
	}
	return time.UnixMilli(ts).UTC().Format("01-02 15:04") + "Z"
}
