package client

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/domain"
)

// loggingEngine wraps an Engine, logging method, arguments and outcome
// around every call before delegating.
type loggingEngine struct {
	logger log.Logger
	engine Engine
}

// NewLoggingEngine decorates e so every call is logged through logger.
func NewLoggingEngine(e Engine, logger log.Logger) Engine {
	return &loggingEngine{logger: logger, engine: e}
}

func (e *loggingEngine) CreateList(name string) (list domain.List, err error) {
	logger := log.With(e.logger, "method", "CreateList", "name", name)
	defer func() { level.Info(logger).Log("err", err) }()
	return e.engine.CreateList(name)
}

func (e *loggingEngine) GetList(id string) (domain.ListSnapshot, error) {
	return e.engine.GetList(id)
}

func (e *loggingEngine) DeleteList(id string) (err error) {
	logger := log.With(e.logger, "method", "DeleteList", "id", id)
	defer func() { level.Info(logger).Log("err", err) }()
	return e.engine.DeleteList(id)
}

func (e *loggingEngine) ListLists() ([]domain.List, error) {
	return e.engine.ListLists()
}

func (e *loggingEngine) AddItem(listID, name string, quantity int64) (item domain.Item, err error) {
	logger := log.With(e.logger, "method", "AddItem", "listId", listID, "name", name)
	defer func() { level.Info(logger).Log("err", err) }()
	return e.engine.AddItem(listID, name, quantity)
}

func (e *loggingEngine) UpdateName(itemID, name string) (item domain.Item, err error) {
	logger := log.With(e.logger, "method", "UpdateName", "itemId", itemID, "name", name)
	defer func() { level.Info(logger).Log("err", err) }()
	return e.engine.UpdateName(itemID, name)
}

func (e *loggingEngine) UpdateQuantity(itemID string, quantity int64) (item domain.Item, err error) {
	logger := log.With(e.logger, "method", "UpdateQuantity", "itemId", itemID, "quantity", quantity)
	defer func() { level.Info(logger).Log("err", err) }()
	return e.engine.UpdateQuantity(itemID, quantity)
}

func (e *loggingEngine) ToggleItem(itemID string) (item domain.Item, err error) {
	logger := log.With(e.logger, "method", "ToggleItem", "itemId", itemID)
	defer func() { level.Info(logger).Log("err", err) }()
	return e.engine.ToggleItem(itemID)
}

func (e *loggingEngine) RemoveItem(itemID string) (err error) {
	logger := log.With(e.logger, "method", "RemoveItem", "itemId", itemID)
	defer func() { level.Info(logger).Log("err", err) }()
	return e.engine.RemoveItem(itemID)
}

func (e *loggingEngine) ListItems() ([]domain.Item, error) {
	return e.engine.ListItems()
}

func (e *loggingEngine) PendingCount() (int, error) {
	return e.engine.PendingCount()
}
