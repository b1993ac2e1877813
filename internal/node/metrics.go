package node

import (
	"errors"

	"github.com/go-kit/kit/metrics"

	"github.com/listring/listring/internal/apierr"
	"github.com/listring/listring/internal/crdt"
	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/transport"
)

// metricsService wraps a Service, counting writes, reads and replication
// failures through go-kit metrics so a Prometheus exporter can scrape them.
type metricsService struct {
	service Service

	writes       metrics.Counter
	reads        metrics.Counter
	quorumErrors metrics.Counter
}

// NewMetricsService decorates s, incrementing writes for every mutating
// call, reads for every lookup, and quorumErrors whenever a mutating call
// returns an apierr QuorumUnavailable error. Errors from lookups are not
// counted.
func NewMetricsService(s Service, writes, reads, quorumErrors metrics.Counter) Service {
	return &metricsService{service: s, writes: writes, reads: reads, quorumErrors: quorumErrors}
}

func (s *metricsService) countWrite(err error) {
	s.writes.Add(1)
	if isQuorumUnavailable(err) {
		s.quorumErrors.Add(1)
	}
}

func (s *metricsService) CreateList(id, name string, vc crdt.VectorClock, createdAt, lastUpdated int64) (domain.List, error) {
	list, err := s.service.CreateList(id, name, vc, createdAt, lastUpdated)
	s.countWrite(err)
	return list, err
}

func (s *metricsService) GetList(id string) (domain.ListSnapshot, error) {
	s.reads.Add(1)
	return s.service.GetList(id)
}

func (s *metricsService) DeleteList(id string) error {
	err := s.service.DeleteList(id)
	s.countWrite(err)
	return err
}

func (s *metricsService) ListLists() ([]domain.List, error) {
	s.reads.Add(1)
	return s.service.ListLists()
}

func (s *metricsService) AddItem(listID, id, name string, quantity, acquired int64, vc crdt.VectorClock, createdAt, lastUpdated int64) (domain.Item, error) {
	item, err := s.service.AddItem(listID, id, name, quantity, acquired, vc, createdAt, lastUpdated)
	s.countWrite(err)
	return item, err
}

func (s *metricsService) UpdateName(itemID, name string, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error) {
	item, err := s.service.UpdateName(itemID, name, vc, lastUpdated)
	s.countWrite(err)
	return item, err
}

func (s *metricsService) UpdateQuantity(itemID string, quantity int64, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error) {
	item, err := s.service.UpdateQuantity(itemID, quantity, acquired, vc, lastUpdated)
	s.countWrite(err)
	return item, err
}

func (s *metricsService) ToggleItem(itemID string, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error) {
	item, err := s.service.ToggleItem(itemID, acquired, vc, lastUpdated)
	s.countWrite(err)
	return item, err
}

func (s *metricsService) RemoveItem(itemID string) error {
	err := s.service.RemoveItem(itemID)
	s.countWrite(err)
	return err
}

func (s *metricsService) ListItems() ([]domain.Item, error) {
	s.reads.Add(1)
	return s.service.ListItems()
}

func (s *metricsService) Health() HealthStatus {
	return s.service.Health()
}

func (s *metricsService) HandlePeerMessage(msg transport.Message) transport.Message {
	return s.service.HandlePeerMessage(msg)
}

func isQuorumUnavailable(err error) bool {
	var apiErr *apierr.Error
	return errors.As(err, &apiErr) && apiErr.Kind == apierr.KindQuorumUnavailable
}
