package requests

import (
	"kitchen_requests/internal/model"
)

// RequestView is the projection returned to clients and streamed to displays.
type RequestView struct {
	RequestID          uint                `json:"requestId"`
	CustomerID         uint                `json:"customerId"`
	MenuItems          []LineItemView      `json:"menuItems"`
	PreparedItemsCount int                 `json:"preparedItemsCount"`
	TotalItemsCount    int                 `json:"totalItemsCount"`
	Status             model.RequestStatus `json:"status"`
}

type LineItemView struct {
	LineItemID uint   `json:"lineItemId"`
	MenuItemID uint   `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Prepared   int    `json:"prepared"`
}

// newView projects a request and its line items; names maps menu item ids to
// catalog names and may miss entries.
func newView(req model.Request, items []model.RequestLineItem, names map[uint]string) RequestView {
	v := RequestView{
		RequestID:  req.ID,
		CustomerID: req.CustomerID,
		MenuItems:  make([]LineItemView, 0, len(items)),
		Status:     req.Status,
	}
	for _, it := range items {
		v.MenuItems = append(v.MenuItems, LineItemView{
			LineItemID: it.ID,
			MenuItemID: it.MenuItemID,
			Name:       names[it.MenuItemID],
			Quantity:   it.Quantity,
			Prepared:   it.PreparedQuantity,
		})
		v.PreparedItemsCount += it.PreparedQuantity
		v.TotalItemsCount += it.Quantity
	}
	return v
}

func menuNames(items []model.MenuItem) map[uint]string {
	names := make(map[uint]string, len(items))
	for _, mi := range items {
		names[mi.ID] = mi.Name
	}
	return names
}

func menuItemIDs(items []model.RequestLineItem) []uint {
	seen := make(map[uint]struct{}, len(items))
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.MenuItemID]; ok {
			continue
		}
		seen[it.MenuItemID] = struct{}{}
		ids = append(ids, it.MenuItemID)
	}
	return ids
}
