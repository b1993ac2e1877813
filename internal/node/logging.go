package node

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/crdt"
	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/transport"
)

// loggingService wraps a Service, logging method, arguments and outcome
// around each mutating call, GetList and HandlePeerMessage. ListLists,
// ListItems and Health are delegated without logging.
type loggingService struct {
	logger  log.Logger
	service Service
}

// NewLoggingService decorates s so its calls are logged through logger, as
// described on loggingService.
func NewLoggingService(s Service, logger log.Logger) Service {
	return &loggingService{logger: logger, service: s}
}

func (s *loggingService) CreateList(id, name string, vc crdt.VectorClock, createdAt, lastUpdated int64) (list domain.List, err error) {
	logger := log.With(s.logger, "method", "CreateList", "id", id, "name", name)
	defer func() { level.Info(logger).Log("took_err", err) }()
	return s.service.CreateList(id, name, vc, createdAt, lastUpdated)
}

func (s *loggingService) GetList(id string) (snap domain.ListSnapshot, err error) {
	logger := log.With(s.logger, "method", "GetList", "id", id)
	defer func() { level.Debug(logger).Log("err", err) }()
	return s.service.GetList(id)
}

func (s *loggingService) DeleteList(id string) (err error) {
	logger := log.With(s.logger, "method", "DeleteList", "id", id)
	defer func() { level.Info(logger).Log("err", err) }()
	return s.service.DeleteList(id)
}

func (s *loggingService) ListLists() ([]domain.List, error) {
	return s.service.ListLists()
}

func (s *loggingService) AddItem(listID, id, name string, quantity, acquired int64, vc crdt.VectorClock, createdAt, lastUpdated int64) (item domain.Item, err error) {
	logger := log.With(s.logger, "method", "AddItem", "listId", listID, "id", id, "name", name)
	defer func() { level.Info(logger).Log("err", err) }()
	return s.service.AddItem(listID, id, name, quantity, acquired, vc, createdAt, lastUpdated)
}

func (s *loggingService) UpdateName(itemID, name string, vc crdt.VectorClock, lastUpdated int64) (item domain.Item, err error) {
	logger := log.With(s.logger, "method", "UpdateName", "itemId", itemID, "name", name)
	defer func() { level.Info(logger).Log("err", err) }()
	return s.service.UpdateName(itemID, name, vc, lastUpdated)
}

func (s *loggingService) UpdateQuantity(itemID string, quantity int64, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (item domain.Item, err error) {
	logger := log.With(s.logger, "method", "UpdateQuantity", "itemId", itemID, "quantity", quantity)
	defer func() { level.Info(logger).Log("err", err) }()
	return s.service.UpdateQuantity(itemID, quantity, acquired, vc, lastUpdated)
}

func (s *loggingService) ToggleItem(itemID string, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (item domain.Item, err error) {
	logger := log.With(s.logger, "method", "ToggleItem", "itemId", itemID)
	defer func() { level.Info(logger).Log("err", err) }()
	return s.service.ToggleItem(itemID, acquired, vc, lastUpdated)
}

func (s *loggingService) RemoveItem(itemID string) (err error) {
	logger := log.With(s.logger, "method", "RemoveItem", "itemId", itemID)
	defer func() { level.Info(logger).Log("err", err) }()
	return s.service.RemoveItem(itemID)
}

func (s *loggingService) ListItems() ([]domain.Item, error) {
	return s.service.ListItems()
}

func (s *loggingService) Health() HealthStatus {
	return s.service.Health()
}

func (s *loggingService) HandlePeerMessage(msg transport.Message) transport.Message {
	logger := log.With(s.logger, "method", "HandlePeerMessage", "type", msg.Type)
	reply := s.service.HandlePeerMessage(msg)
	level.Debug(logger).Log("status", reply.Status)
	return reply
}
