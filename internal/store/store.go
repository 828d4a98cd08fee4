package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kitchen_requests/internal/model"
)

var (
	// ErrNotFound is returned by point lookups that match no row.
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned when a status compare-and-set lost to another writer.
	ErrStatusConflict = errors.New("request status changed concurrently")
)

// Repository is the entity store used by the request pipeline. Every method runs in
// the scope it was obtained from: the root store or the tx passed to Transaction.
type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	// LockRequest reads a request and holds its row lock until the transaction ends.
	LockRequest(ctx context.Context, id uint) (model.Request, error)
	Request(ctx context.Context, id uint) (model.Request, error)
	RequestsByStatus(ctx context.Context, statuses ...model.RequestStatus) ([]model.Request, error)
	InsertRequest(ctx context.Context, req *model.Request, items []model.RequestLineItem) error
	UpdateRequestStatus(ctx context.Context, id uint, from, to model.RequestStatus) error

	// LineItem finds the line item of requestID for menuItemID. A non-zero lineItemID
	// selects one entry among duplicates; otherwise the oldest match wins.
	LineItem(ctx context.Context, requestID, menuItemID, lineItemID uint) (model.RequestLineItem, error)
	LineItems(ctx context.Context, requestIDs ...uint) ([]model.RequestLineItem, error)
	SetPreparedQuantity(ctx context.Context, lineItemID uint, prepared int) error

	AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error
	PendingOutbox(ctx context.Context, createdBefore time.Time, limit int) ([]model.OutboxMessage, error)
	MarkOutboxDelivered(ctx context.Context, id uint) error
	MarkOutboxFailed(ctx context.Context, id uint, reason string) error

	MenuItemsByID(ctx context.Context, ids []uint) ([]model.MenuItem, error)
	MenuItems(ctx context.Context) ([]model.MenuItem, error)
	UpsertMenuItems(ctx context.Context, items []model.MenuItem) error
}

// Store implements Repository on gorm.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for wiring and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) LockRequest(ctx context.Context, id uint) (model.Request, error) {
	var req model.Request
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, id).Error
	return req, wrapLookup(err)
}

func (s *Store) Request(ctx context.Context, id uint) (model.Request, error) {
	var req model.Request
	err := s.db.WithContext(ctx).First(&req, id).Error
	return req, wrapLookup(err)
}

func (s *Store) RequestsByStatus(ctx context.Context, statuses ...model.RequestStatus) ([]model.Request, error) {
	var list []model.Request
	if len(statuses) == 0 {
		return list, nil
	}
	err := s.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("id").
		Find(&list).Error
	return list, err
}

// InsertRequest stores a request and its line items in one transaction. Ids are
// always assigned by the database; whatever the caller put there is discarded.
func (s *Store) InsertRequest(ctx context.Context, req *model.Request, items []model.RequestLineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("insert request: no line items")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req.ID = 0
		req.LineItems = nil
		if err := tx.Omit(clause.Associations).Create(req).Error; err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		for i := range items {
			items[i].ID = 0
			items[i].RequestID = req.ID
			items[i].PreparedQuantity = 0
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("insert line items: %w", err)
		}
		req.LineItems = items
		return nil
	})
}

// UpdateRequestStatus moves a request from one status to another. It only succeeds
// when the stored status still equals from.
func (s *Store) UpdateRequestStatus(ctx context.Context, id uint, from, to model.RequestStatus) error {
	res := s.db.WithContext(ctx).
		Model(&model.Request{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *Store) LineItem(ctx context.Context, requestID, menuItemID, lineItemID uint) (model.RequestLineItem, error) {
	q := s.db.WithContext(ctx).Where("request_id = ? AND menu_item_id = ?", requestID, menuItemID)
	if lineItemID != 0 {
		q = q.Where("id = ?", lineItemID)
	}
	var item model.RequestLineItem
	err := q.Order("id").First(&item).Error
	return item, wrapLookup(err)
}

func (s *Store) LineItems(ctx context.Context, requestIDs ...uint) ([]model.RequestLineItem, error) {
	var items []model.RequestLineItem
	if len(requestIDs) == 0 {
		return items, nil
	}
	err := s.db.WithContext(ctx).
		Where("request_id IN ?", requestIDs).
		Order("request_id, id").
		Find(&items).Error
	return items, err
}

func (s *Store) SetPreparedQuantity(ctx context.Context, lineItemID uint, prepared int) error {
	res := s.db.WithContext(ctx).
		Model(&model.RequestLineItem{}).
		Where("id = ?", lineItemID).
		Update("prepared_quantity", prepared)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendOutbox(ctx context.Context, msg *model.OutboxMessage) error {
	msg.ID = 0
	msg.DeliveredAt = nil
	return s.db.WithContext(ctx).Create(msg).Error
}

// PendingOutbox lists undelivered messages created before the given instant, oldest
// first.
func (s *Store) PendingOutbox(ctx context.Context, createdBefore time.Time, limit int) ([]model.OutboxMessage, error) {
	var list []model.OutboxMessage
	err := s.db.WithContext(ctx).
		Where("delivered_at IS NULL AND created_at <= ?", createdBefore).
		Order("id").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (s *Store) MarkOutboxDelivered(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND delivered_at IS NULL", id).
		Updates(map[string]any{
			"delivered_at": &now,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id uint, reason string) error {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	return s.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}

// MenuItemsByID returns the catalog entries that exist among ids. Missing ids are
// simply absent from the result.
func (s *Store) MenuItemsByID(ctx context.Context, ids []uint) ([]model.MenuItem, error) {
	var list []model.MenuItem
	if len(ids) == 0 {
		return list, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&list).Error
	return list, err
}

func (s *Store) MenuItems(ctx context.Context) ([]model.MenuItem, error) {
	var list []model.MenuItem
	err := s.db.WithContext(ctx).Order("id").Find(&list).Error
	return list, err
}

func (s *Store) UpsertMenuItems(ctx context.Context, items []model.MenuItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
		}).
		Create(&items).Error
}

func wrapLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
