package sizing

import (
	"math"

	"github.com/shopspring/decimal"
)

// 注金与敞口运算统一走 decimal，避免浮点累计误差影响风控比较。

// StakePerTrade 返回单笔注金：固定基础注金，可被分数凯利建议封顶
// （取两者较小值，kellyCap <= 0 表示无建议）。
func (m *Machine) StakePerTrade(kellyCap float64) float64 {
	base := decFromFloat(m.baseStake)
	if kellyCap > 0 {
		cap := decFromFloat(kellyCap)
		if cap.LessThan(base) {
			base = cap
		}
	}
	f, _ := base.Float64()
	return f
}

// TotalRisk 返回当前层级的总敞口 tradeCount × stake。
func (m *Machine) TotalRisk(kellyCap float64) float64 {
	stake := decFromFloat(m.StakePerTrade(kellyCap))
	count := decimal.NewFromInt(int64(m.TradeCount()))
	f, _ := stake.Mul(count).Float64()
	return f
}

// TotalRiskForTier 是纯函数版本：tier 层全部打满的敞口。
func TotalRiskForTier(tier int, stake float64) float64 {
	count := decimal.NewFromInt(int64(TradeCountForTier(tier)))
	f, _ := decFromFloat(stake).Mul(count).Float64()
	return f
}

// WorstCaseLoss 返回从 0 层一路输到 maxTier 的累计损失 Σ stake×2^i。
func WorstCaseLoss(maxTier int, stake float64) float64 {
	total := decimal.Zero
	s := decFromFloat(stake)
	for i := 0; i <= maxTier; i++ {
		total = total.Add(s.Mul(decimal.NewFromInt(int64(TradeCountForTier(i)))))
	}
	f, _ := total.Float64()
	return f
}

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}
