package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money 展示用金额（由整数分换算，保留 2 位小数）
type Money struct {
	decimal.Decimal
}

// MoneyFromCents 由整数分构造展示金额
func MoneyFromCents(cents int64) Money {
	return Money{Decimal: decimal.New(cents, -2)}
}

// CentsFromDecimal 将十进制金额四舍五入为整数分
func CentsFromDecimal(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Cents 返回整数分
func (m Money) Cents() int64 {
	return CentsFromDecimal(m.Decimal)
}

// MarshalJSON 统一输出 2 位小数的字符串
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal.Round(2).StringFixed(2))
}

// String 返回 2 位小数格式
func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}
