package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"opto/internal/ledger"
)

const (
	colorBackground  = "#060c1b"
	colorTextPrimary = "#eceff4"
	colorEquity      = "#3b82f6"
	colorProfit      = "#34d399"
	colorLoss        = "#f87171"

	chartWidthPx  = 1200
	chartHeightPx = 420
)

// RenderHTML 将成交历史渲染为资金曲线 + 每日盈亏柱状图的单页 HTML。
func RenderHTML(w io.Writer, records []ledger.TradeRecord, startingBalance float64) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = "opto PnL report"

	page.AddCharts(
		buildEquityCurve(records, startingBalance),
		buildDailyBars(records),
	)
	return page.Render(w)
}

func buildEquityCurve(records []ledger.TradeRecord, startingBalance float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "资金曲线",
			Subtitle:   fmt.Sprintf("起始余额 %.2f USD / %d 笔", startingBalance, len(records)),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	xAxis := make([]string, 0, len(records)+1)
	data := make([]opts.LineData, 0, len(records)+1)
	xAxis = append(xAxis, "start")
	data = append(data, opts.LineData{Value: round2(startingBalance)})
	balance := startingBalance
	for _, rec := range records {
		balance += rec.ProfitLoss
		xAxis = append(xAxis, rec.Timestamp.UTC().Format("01-02 15:04"))
		data = append(data, opts.LineData{Value: round2(balance)})
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", data, charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}))
	return line
}

func buildDailyBars(records []ledger.TradeRecord) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "每日盈亏",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	byDay := make(map[string]float64)
	for _, rec := range records {
		day := rec.Timestamp.UTC().Truncate(24 * time.Hour).Format("2006-01-02")
		byDay[day] += rec.ProfitLoss
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	data := make([]opts.BarData, 0, len(days))
	for _, day := range days {
		pnl := round2(byDay[day])
		color := colorProfit
		if pnl < 0 {
			color = colorLoss
		}
		data = append(data, opts.BarData{
			Value:     pnl,
			ItemStyle: &opts.ItemStyle{Color: color},
		})
	}
	bar.SetXAxis(days)
	bar.AddSeries("Daily PnL", data)
	return bar
}

func round2(v float64) float64 {
	return float64(int64(v*100+copysignHalf(v))) / 100
}

func copysignHalf(v float64) float64 {
	if v < 0 {
		return -0.5
	}
	return 0.5
}
