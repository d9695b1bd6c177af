package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateStore    string
	simulateRun      int
	simulateSales    float64
	simulateBaseline float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一段连续低迷班次并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateStore == "" {
			return errors.New("--store 必须指定")
		}
		if simulateRun <= 0 || simulateBaseline <= 0 {
			return errors.New("--run 与 --baseline 必须大于 0")
		}

		sales := decimal.NewFromFloat(simulateSales)
		baseline := decimal.NewFromFloat(simulateBaseline)
		return getApp().SimulateAlert(cmd.Context(), simulateStore, simulateRun, sales, baseline)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateStore, "store", "", "门店名称或 ID")
	simulateCmd.Flags().IntVar(&simulateRun, "run", 3, "连续低迷班次数")
	simulateCmd.Flags().Float64Var(&simulateSales, "sales", 0, "模拟班次销售额")
	simulateCmd.Flags().Float64Var(&simulateBaseline, "baseline", 0, "模拟基线均值")
}
