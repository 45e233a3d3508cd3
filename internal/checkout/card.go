package checkout

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joya-checkout/internal/payment/wompi"
)

// CardInput UI 提交的卡信息
type CardInput struct {
	Number       string `json:"number"`
	CVV          string `json:"cvv"`
	Expiry       string `json:"expiry"`
	ExpMonth     string `json:"expMonth"`
	ExpYear      string `json:"expYear"`
	HolderName   string `json:"holderName"`
	HolderLast   string `json:"holderLastName"`
	Installments int    `json:"installments"`
}

// NormalizeExpiry 将月份/年份规范化为 MM / YY
func NormalizeExpiry(month, year string) (string, string, error) {
	month = strings.TrimSpace(month)
	year = strings.TrimSpace(year)
	if !isDigits(month) || len(month) < 1 || len(month) > 2 {
		return "", "", fmt.Errorf("month %q is invalid", month)
	}
	m, _ := strconv.Atoi(month)
	if m < 1 || m > 12 {
		return "", "", fmt.Errorf("month %q is out of range", month)
	}
	if !isDigits(year) || (len(year) != 2 && len(year) != 4) {
		return "", "", fmt.Errorf("year %q is invalid", year)
	}
	return fmt.Sprintf("%02d", m), year[len(year)-2:], nil
}

// SplitExpiry 拆分 "MM/YY"、"MM/YYYY"、"MM-YY" 形式的有效期
func SplitExpiry(expiry string) (string, string, bool) {
	expiry = strings.TrimSpace(expiry)
	for _, sep := range []string{"/", "-"} {
		if parts := strings.SplitN(expiry, sep, 2); len(parts) == 2 {
			return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
		}
	}
	return "", "", false
}

// SplitName 拆分姓名，缺少姓氏时使用占位符
func SplitName(fullName, placeholder string) (string, string) {
	fields := strings.Fields(fullName)
	if placeholder == "" {
		placeholder = "N/A"
	}
	switch len(fields) {
	case 0:
		return "", placeholder
	case 1:
		return fields[0], placeholder
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// prepareAttempt 在任何网络调用前校验并规范化卡信息
func prepareAttempt(card CardInput, shipping *ShippingInfo, placeholder string, now time.Time) (wompi.Attempt, error) {
	fields := make(map[string]string)

	number := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(card.Number))
	if !isDigits(number) || len(number) < 13 || len(number) > 16 {
		fields["number"] = "must have 13 to 16 digits"
	}
	cvv := strings.TrimSpace(card.CVV)
	if !isDigits(cvv) || len(cvv) < 3 || len(cvv) > 4 {
		fields["cvv"] = "must have 3 or 4 digits"
	}

	month, year := card.ExpMonth, card.ExpYear
	if strings.TrimSpace(card.Expiry) != "" {
		if m, y, ok := SplitExpiry(card.Expiry); ok {
			month, year = m, y
		} else {
			month, year = "", ""
		}
	} else if strings.TrimSpace(year) == "" {
		if m, y, ok := SplitExpiry(month); ok {
			month, year = m, y
		}
	}
	mm, yy, err := NormalizeExpiry(month, year)
	if err != nil {
		fields["expiry"] = "is invalid"
	} else if !expiryInFuture(mm, yy, now) {
		fields["expiry"] = "is in the past"
	}

	holderName := strings.TrimSpace(card.HolderName)
	holderLast := strings.TrimSpace(card.HolderLast)
	if holderName == "" && shipping != nil {
		holderName = shipping.FullName
	}
	if holderLast == "" {
		holderName, holderLast = SplitName(holderName, placeholder)
	}
	if holderName == "" {
		fields["holderName"] = "is required"
	}

	if err := newValidationError(fields); err != nil {
		return wompi.Attempt{}, err
	}
	attempt := wompi.Attempt{
		CardNumber:   number,
		CVV:          cvv,
		ExpMonth:     mm,
		ExpYear:      yy,
		HolderName:   holderName,
		HolderLast:   holderLast,
		Installments: card.Installments,
	}
	if shipping != nil {
		attempt.Email = shipping.Email
	}
	return attempt, nil
}

// expiryInFuture 卡在有效期所在月份的月末前有效
func expiryInFuture(mm, yy string, now time.Time) bool {
	month, _ := strconv.Atoi(mm)
	year, _ := strconv.Atoi(yy)
	endOfMonth := time.Date(2000+year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return now.UTC().Before(endOfMonth)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
