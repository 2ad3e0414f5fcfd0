package service

import (
	"time"

	"github.com/rl1809/labstock/internal/core/domain"
)

// ExpiryWindow is how far ahead an expiry date raises an alert.
const ExpiryWindow = 30 * 24 * time.Hour

// ExpiringItem is a catalog entry with its remaining shelf life.
type ExpiringItem struct {
	domain.InventoryItem
	DaysLeft int `json:"daysLeft"`
}

type Dashboard struct {
	ItemCount         int                    `json:"itemCount"`
	TotalStock        int                    `json:"totalStock"`
	LowStock          []domain.InventoryItem `json:"lowStock"`
	Expiring          []ExpiringItem         `json:"expiring"`
	TransactionsToday int                    `json:"transactionsToday"`
	InboundToday      int                    `json:"inboundToday"`
	OutboundToday     int                    `json:"outboundToday"`
	Link              domain.LinkState       `json:"link"`
}

func (s *InventoryService) LowStock() []domain.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lowStock(s.st.items)
}

// ExpiringSoon lists items whose expiry falls after now and within window.
// Items already expired, or with no parseable expiry date, are left out.
func (s *InventoryService) ExpiringSoon(now time.Time, window time.Duration) []ExpiringItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expiringSoon(s.st.items, now, window)
}

func (s *InventoryService) Dashboard(now time.Time) Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := Dashboard{
		ItemCount: len(s.st.items),
		LowStock:  lowStock(s.st.items),
		Expiring:  expiringSoon(s.st.items, now, ExpiryWindow),
		Link:      ClassifyLink(s.st.config.EndpointURL),
	}
	for _, it := range s.st.items {
		d.TotalStock += it.Stock
	}

	today := now.Format(domain.DateLayout)
	for _, tx := range s.st.transactions {
		if tx.Date != today {
			continue
		}
		d.TransactionsToday++
		if tx.Type == domain.TransactionIn {
			d.InboundToday++
		} else {
			d.OutboundToday++
		}
	}
	return d
}

func lowStock(items []domain.InventoryItem) []domain.InventoryItem {
	out := []domain.InventoryItem{}
	for _, it := range items {
		if it.IsLowStock() {
			out = append(out, it)
		}
	}
	return out
}

func expiringSoon(items []domain.InventoryItem, now time.Time, window time.Duration) []ExpiringItem {
	today := calendarDay(now)
	limit := int(window / (24 * time.Hour))

	out := []ExpiringItem{}
	for _, it := range items {
		expiry, err := time.Parse(domain.DateLayout, it.ExpiryDate)
		if err != nil {
			continue
		}
		days := int(expiry.Sub(today) / (24 * time.Hour))
		if days > 0 && days <= limit {
			out = append(out, ExpiringItem{InventoryItem: it, DaysLeft: days})
		}
	}
	return out
}

// calendarDay returns the local date of t as a UTC midnight, so day
// differences are exact across DST changes.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
