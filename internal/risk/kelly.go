package risk

import "github.com/shopspring/decimal"

// 四分之一凯利，并用余额的 5% 做硬顶；凯利为负时返回 0，绝不建议负注金。
const (
	kellyFraction = 0.25
	kellyHardCap  = 0.05
)

// KellyStake 根据近期胜率 p（0–100）与赔率 b 给出建议注金。
// f* = (b·p/100 − (1 − p/100)) / b，可用注金 = balance × min(max(0,f*)×0.25, 0.05)。
func KellyStake(winRatePct, payoutRatio, balance float64) float64 {
	if payoutRatio <= 0 || balance <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(winRatePct).Div(decimal.NewFromInt(100))
	b := decimal.NewFromFloat(payoutRatio)
	one := decimal.NewFromInt(1)

	numerator := b.Mul(p).Sub(one.Sub(p))
	fStar := numerator.Div(b)
	if fStar.IsNegative() {
		return 0
	}
	fraction := fStar.Mul(decimal.NewFromFloat(kellyFraction))
	cap := decimal.NewFromFloat(kellyHardCap)
	if fraction.GreaterThan(cap) {
		fraction = cap
	}
	out, _ := decimal.NewFromFloat(balance).Mul(fraction).Float64()
	return out
}
