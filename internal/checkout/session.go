package checkout

import (
	"strings"
	"time"

	"github.com/joya-checkout/internal/constants"
	"github.com/joya-checkout/internal/models"
	"github.com/joya-checkout/internal/storeapi"
)

// ShippingInfo 收货信息表单
type ShippingInfo struct {
	FullName   string `json:"fullName" validate:"required,min=2,max=120"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Phone      string `json:"phone" validate:"required,phone"`
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=120"`
	Region     string `json:"region" validate:"required,max=120"`
	PostalCode string `json:"postalCode" validate:"omitempty,max=12"`
	Notes      string `json:"notes" validate:"omitempty,max=500"`
}

func (s ShippingInfo) normalize() ShippingInfo {
	s.FullName = strings.Join(strings.Fields(s.FullName), " ")
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Phone = strings.TrimSpace(s.Phone)
	s.Address = strings.TrimSpace(s.Address)
	s.City = strings.TrimSpace(s.City)
	s.Region = strings.TrimSpace(s.Region)
	s.PostalCode = strings.TrimSpace(s.PostalCode)
	s.Notes = strings.TrimSpace(s.Notes)
	return s
}

func (s ShippingInfo) toAddress() storeapi.ShippingAddress {
	return storeapi.ShippingAddress{
		FullName:   s.FullName,
		Email:      s.Email,
		Phone:      normalizePhone(s.Phone),
		Address:    s.Address,
		City:       s.City,
		Region:     s.Region,
		PostalCode: s.PostalCode,
		Notes:      s.Notes,
	}
}

// Session 订单会话（OrderSession）
type Session struct {
	DraftOrderID     string        `json:"draftOrderId"`
	LockedOrderID    string        `json:"lockedOrderId,omitempty"`
	PaymentReference string        `json:"paymentReference,omitempty"`
	AccessToken      string        `json:"-"`
	HasToken         bool          `json:"hasToken"`
	Step             string        `json:"step"`
	LockedAt         *time.Time    `json:"lockedAt,omitempty"`
	Stale            bool          `json:"stale"`
	LastError        string        `json:"lastError,omitempty"`
	ChargeAttempt    int           `json:"-"`
	Shipping         *ShippingInfo `json:"shipping,omitempty"`
}

func newSession(draftOrderID string) Session {
	return Session{
		DraftOrderID: strings.TrimSpace(draftOrderID),
		Step:         constants.StepCollectingShipping,
	}
}

// OrderRef 支付关联订单：优先锁定订单，其次草稿
func (s Session) OrderRef() string {
	if s.LockedOrderID != "" {
		return s.LockedOrderID
	}
	return s.DraftOrderID
}

func (s Session) clone() Session {
	out := s
	out.HasToken = s.AccessToken != ""
	if s.LockedAt != nil {
		lockedAt := *s.LockedAt
		out.LockedAt = &lockedAt
	}
	if s.Shipping != nil {
		shipping := *s.Shipping
		out.Shipping = &shipping
	}
	return out
}

// State 供 UI 渲染的只读快照
type State struct {
	Session     Session           `json:"session"`
	Lines       []models.CartLine `json:"lines"`
	Totals      models.Totals     `json:"totals"`
	SyncPending bool              `json:"syncPending"`
}
