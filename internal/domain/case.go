package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemStatus classifies a single line of the estimate.
type ItemStatus string

const (
	ItemFair       ItemStatus = "fair"
	ItemNegotiable ItemStatus = "negotiable"
	ItemCut        ItemStatus = "cut"
)

// Item is one priced line of the diagnosed estimate.
type Item struct {
	Name                 string     `json:"name"`
	PriceOriginal        *float64   `json:"price_original,omitempty"`
	PriceFair            *float64   `json:"price_fair,omitempty"`
	Status               ItemStatus `json:"status"`
	Reason               string     `json:"reason,omitempty"`
	RequiresConfirmation bool       `json:"requires_confirmation,omitempty"`
}

// ProReview is the narrative advice attached to a diagnosis.
type ProReview struct {
	Content string `json:"content"`
}

// DiagnosisResult is the payload produced by the external diagnosis flow.
//
// IsSecretMode selects between the two shapes: a fortune-style result that
// only carries FortuneTitle and FortuneSummary, and the standard estimate
// review. Numeric fields are pointers so that "absent" stays distinguishable
// from zero; use the accessors below for display.
type DiagnosisResult struct {
	IsSecretMode   bool   `json:"is_secret_mode,omitempty"`
	SecretType     string `json:"secret_type,omitempty"`
	FortuneTitle   string `json:"fortune_title,omitempty"`
	FortuneSummary string `json:"fortune_summary,omitempty"`

	PropertyName         string     `json:"property_name,omitempty"`
	RoomNumber           string     `json:"room_number,omitempty"`
	Items                []Item     `json:"items,omitempty"`
	TotalOriginal        *float64   `json:"total_original,omitempty"`
	TotalFair            *float64   `json:"total_fair,omitempty"`
	DiscountAmount       *float64   `json:"discount_amount,omitempty"`
	RiskScore            *float64   `json:"risk_score,omitempty"`
	ProReview            *ProReview `json:"pro_review,omitempty"`
	HasUnconfirmedItems  bool       `json:"has_unconfirmed_items,omitempty"`
	UnconfirmedItemNames []string   `json:"unconfirmed_item_names,omitempty"`
}

// Amount returns the value of an optional numeric field and whether it was set.
func Amount(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// ItemsWithStatus returns the items carrying the given status, in order.
func (r DiagnosisResult) ItemsWithStatus(status ItemStatus) []Item {
	var out []Item
	for _, it := range r.Items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out
}

// PropertyDisplay returns "name room", or "" when the name is unknown.
func (r DiagnosisResult) PropertyDisplay() string {
	name := strings.TrimSpace(r.PropertyName)
	if name == "" {
		return ""
	}
	if room := strings.TrimSpace(r.RoomNumber); room != "" {
		return name + " " + room
	}
	return name
}

// Case is a diagnosis record. LineUserID is empty until the case is linked.
type Case struct {
	CaseID     string          `json:"case_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Result     DiagnosisResult `json:"result"`
	LineUserID string          `json:"line_user_id,omitempty"`
}

// DisplayTitle is the short label shown in a user's case history.
func (c Case) DisplayTitle() string {
	if c.Result.IsSecretMode {
		if t := strings.TrimSpace(c.Result.FortuneTitle); t != "" {
			return t
		}
		return "スペシャル診断"
	}
	if p := c.Result.PropertyDisplay(); p != "" {
		return p
	}
	return fmt.Sprintf("診断 %s", c.CreatedAt.Format("01/02"))
}

// CaseRef is one entry of a user's most-recent-first case index.
type CaseRef struct {
	CaseID       string    `json:"case_id"`
	DisplayTitle string    `json:"display_title"`
	LinkedAt     time.Time `json:"linked_at"`
}
