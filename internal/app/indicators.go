package app

import (
	"opto/internal/indicator"
	"opto/internal/logger"
	"opto/internal/pkg/maputil"
	"opto/internal/profile"
)

// defaultProfiles 是 profiles 文件缺失或非法时的兜底配置。
func defaultProfiles() map[string]profile.IndicatorProfile {
	return map[string]profile.IndicatorProfile{
		"rsi":        {Enabled: true, Weight: 1.0},
		"trend":      {Enabled: true, Weight: 1.0},
		"volatility": {Enabled: true, Weight: 0.8},
		"volume":     {Enabled: true, Weight: 0.6},
	}
}

// buildIndicators 按 profile 快照组装指标集。未知名称跳过并告警。
func buildIndicators(profiles map[string]profile.IndicatorProfile, learningRate float64) []indicator.Indicator {
	out := make([]indicator.Indicator, 0, len(profiles))
	for name, p := range profiles {
		if !p.Enabled {
			continue
		}
		ind := buildIndicator(name, p, learningRate)
		if ind == nil {
			logger.Warnf("profiles 引用了未知指标 %q，已跳过", name)
			continue
		}
		out = append(out, ind)
	}
	return out
}

func buildIndicator(name string, p profile.IndicatorProfile, learningRate float64) indicator.Indicator {
	switch name {
	case "rsi":
		return indicator.NewRSI(indicator.RSIConfig{
			Name:          name,
			Period:        maputil.Int(p.Params, "period"),
			Oversold:      maputil.Float(p.Params, "oversold"),
			Overbought:    maputil.Float(p.Params, "overbought"),
			InitialWeight: p.Weight,
			LearningRate:  learningRate,
		})
	case "trend":
		return indicator.NewTrend(indicator.TrendConfig{
			Name:          name,
			FastPeriod:    maputil.Int(p.Params, "fast_period"),
			SlowPeriod:    maputil.Int(p.Params, "slow_period"),
			InitialWeight: p.Weight,
			LearningRate:  learningRate,
		})
	case "volatility":
		return indicator.NewVolatility(indicator.VolatilityConfig{
			Name:          name,
			Period:        maputil.Int(p.Params, "period"),
			NumDev:        maputil.Float(p.Params, "num_dev"),
			InitialWeight: p.Weight,
			LearningRate:  learningRate,
		})
	case "volume":
		return indicator.NewVolume(indicator.VolumeConfig{
			Name:          name,
			Period:        maputil.Int(p.Params, "period"),
			SurgeRatio:    maputil.Float(p.Params, "surge_ratio"),
			InitialWeight: p.Weight,
			LearningRate:  learningRate,
		})
	default:
		return nil
	}
}


