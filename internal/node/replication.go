package node

import (
	"encoding/json"
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/apierr"
	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/quorum"
	"github.com/listring/listring/internal/transport"
)

// replicateItem fans msg out to the rest of key's preference list via the
// quorum coordinator (spec §4.9 step 6), queuing a hint for any replica
// that didn't acknowledge. A nil coordinator (single-node deployment, or a
// unit test exercising the service directly) makes this a no-op.
func (s *service) replicateItem(item domain.Item, msgType transport.MessageType) {
	if s.quorum == nil {
		return
	}
	msg := transport.Message{Type: msgType, ItemID: item.ID, ListID: item.ListID, Item: &item}
	result, err := s.quorum.Write(item.ID, s.nodeID, msg)
	if err != nil {
		level.Warn(s.logger).Log("msg", "write quorum not met", "item", item.ID, "err", err)
	}
	s.queueHints(result, transport.MessageType(msgType), domain.ReplicaOp{Type: string(msgType), Item: &item, ItemID: item.ID, ListID: item.ListID})
}

func (s *service) replicateItemRemove(itemID string) {
	if s.quorum == nil {
		return
	}
	msg := transport.Message{Type: transport.MsgRemoveItem, ItemID: itemID}
	result, err := s.quorum.Write(itemID, s.nodeID, msg)
	if err != nil {
		level.Warn(s.logger).Log("msg", "write quorum not met", "item", itemID, "err", err)
	}
	s.queueHints(result, transport.MsgRemoveItem, domain.ReplicaOp{Type: string(transport.MsgRemoveItem), ItemID: itemID})
}

func (s *service) replicateList(id string, list domain.List, msgType transport.MessageType) {
	if s.quorum == nil {
		return
	}
	msg := transport.Message{Type: msgType, ListID: id, List: &list}
	result, err := s.quorum.Write(id, s.nodeID, msg)
	if err != nil {
		level.Warn(s.logger).Log("msg", "write quorum not met", "list", id, "err", err)
	}
	s.queueHints(result, msgType, domain.ReplicaOp{Type: string(msgType), List: &list, ListID: id})
}

func (s *service) replicateListDelete(id string) {
	if s.quorum == nil {
		return
	}
	msg := transport.Message{Type: transport.MsgDeleteList, ListID: id}
	result, err := s.quorum.Write(id, s.nodeID, msg)
	if err != nil {
		level.Warn(s.logger).Log("msg", "write quorum not met", "list", id, "err", err)
	}
	s.queueHints(result, transport.MsgDeleteList, domain.ReplicaOp{Type: string(transport.MsgDeleteList), ListID: id})
}

// queueHints durably records op for every node in result.Failed, so the
// hinted-handoff loop (handoff.go) can redeliver it once that replica comes
// back (spec §4.9 "Hinted handoff").
func (s *service) queueHints(result quorum.WriteResult, _ transport.MessageType, op domain.ReplicaOp) {
	for _, target := range result.Failed {
		hint := domain.Hint{TargetNodeID: target, Operation: op}
		if err := s.store.SaveHint(hint); err != nil {
			level.Error(s.logger).Log("msg", "failed to persist hint", "target", target, "err", err)
		}
	}
}

// quorumReadItem implements spec §4.9's read path: "Read path uses C8's
// quorum read; it falls back to a local lookup if quorum is not yet
// initialized." The local copy, if any, is folded in as one of the R votes
// (via localReply) rather than served on its own, so a replica that missed
// a write and hasn't yet had its hint flushed cannot answer a read with
// stale state — exactly the window the quorum invariant (spec §8: "any
// successful write is observable by the very next quorum read") exists to
// close. Every replying replica's value is reconciled through the same
// three-case vector-clock merge the write path uses.
func (s *service) quorumReadItem(id string) (domain.Item, error) {
	if s.quorum == nil {
		item, ok := s.items.Get(id)
		if !ok {
			return domain.Item{}, apierr.NotFound(fmt.Sprintf("item %s not found", id), nil)
		}
		return item, nil
	}

	var localReply *transport.Message
	if local, ok := s.items.Get(id); ok {
		reply, _ := transport.OK(local)
		localReply = &reply
	}

	msg := transport.Message{Type: transport.MsgRead, Key: id, DataType: transport.DataTypeItem, ItemID: id}
	replies, err := s.quorum.Read(id, s.nodeID, msg, localReply)
	if err != nil {
		if len(replies) == 0 {
			return domain.Item{}, apierr.NotFound(fmt.Sprintf("item %s not found", id), err)
		}
		return domain.Item{}, apierr.QuorumUnavailable(fmt.Sprintf("read quorum not met for item %s", id), err)
	}

	var merged *domain.Item
	for _, reply := range replies {
		var candidate domain.Item
		if err := json.Unmarshal(reply.Data, &candidate); err != nil {
			continue
		}
		result, _ := domain.ApplyIncomingItem(merged, candidate, domain.ScopeAll)
		merged = &result
	}
	if merged == nil {
		return domain.Item{}, apierr.NotFound(fmt.Sprintf("item %s not found", id), nil)
	}

	if _, ok := s.items.Get(id); ok {
		s.items.Put(id, *merged)
	} else {
		s.items.Add(*merged)
	}
	if err := s.store.SaveItem(*merged); err != nil {
		return domain.Item{}, apierr.Internal("persist item", err)
	}
	return *merged, nil
}

// quorumReadList is quorumReadItem's list-side counterpart.
func (s *service) quorumReadList(id string) (domain.List, error) {
	if s.quorum == nil {
		list, err := s.store.GetList(id)
		if err != nil {
			return domain.List{}, apierr.NotFound(fmt.Sprintf("list %s not found", id), err)
		}
		return list, nil
	}

	var localReply *transport.Message
	if local, err := s.store.GetList(id); err == nil {
		reply, _ := transport.OK(local)
		localReply = &reply
	}

	msg := transport.Message{Type: transport.MsgRead, Key: id, DataType: transport.DataTypeList, ListID: id}
	replies, err := s.quorum.Read(id, s.nodeID, msg, localReply)
	if err != nil {
		if len(replies) == 0 {
			return domain.List{}, apierr.NotFound(fmt.Sprintf("list %s not found", id), err)
		}
		return domain.List{}, apierr.QuorumUnavailable(fmt.Sprintf("read quorum not met for list %s", id), err)
	}

	var merged *domain.List
	for _, reply := range replies {
		var candidate domain.List
		if err := json.Unmarshal(reply.Data, &candidate); err != nil {
			continue
		}
		result, _ := domain.ApplyIncomingList(merged, candidate)
		merged = &result
	}
	if merged == nil {
		return domain.List{}, apierr.NotFound(fmt.Sprintf("list %s not found", id), nil)
	}

	if err := s.store.SaveList(*merged); err != nil {
		return domain.List{}, apierr.Internal("persist list", err)
	}
	return *merged, nil
}

// HandlePeerMessage is the C7 handler: it applies an incoming replication
// or read request from another replica through the same state machine a
// local HTTP write uses, so the ring never has two code paths for how a
// value converges.
func (s *service) HandlePeerMessage(msg transport.Message) transport.Message {
	switch msg.Type {
	case transport.MsgRead:
		return s.handlePeerRead(msg)
	case transport.MsgCreateList:
		return s.handlePeerList(msg)
	case transport.MsgDeleteList:
		if msg.ListID != "" {
			_ = s.store.DeleteList(msg.ListID)
			s.items.RemoveAllForList(msg.ListID)
		}
		ok, _ := transport.OK(nil)
		return ok
	case transport.MsgAddItem, transport.MsgUpdateItem, transport.MsgUpdateQuantity, transport.MsgUpdateName, transport.MsgToggleCheck:
		return s.handlePeerItem(msg)
	case transport.MsgRemoveItem:
		if msg.ItemID != "" {
			s.items.Remove(msg.ItemID)
			_ = s.store.DeleteItem(msg.ItemID)
		}
		ok, _ := transport.OK(nil)
		return ok
	default:
		return transport.Error("unknown message type")
	}
}

func (s *service) handlePeerRead(msg transport.Message) transport.Message {
	switch msg.DataType {
	case transport.DataTypeList:
		list, err := s.store.GetList(msg.ListID)
		if err != nil {
			return transport.Error("list not found")
		}
		reply, _ := transport.OK(list)
		return reply
	default:
		item, ok := s.items.Get(msg.ItemID)
		if !ok {
			return transport.Error("item not found")
		}
		reply, _ := transport.OK(item)
		return reply
	}
}

func (s *service) handlePeerList(msg transport.Message) transport.Message {
	if msg.List == nil {
		return transport.Error("missing list payload")
	}
	existing, err := s.store.GetList(msg.List.ID)
	var basePtr *domain.List
	if err == nil {
		basePtr = &existing
	}
	merged, _ := domain.ApplyIncomingList(basePtr, *msg.List)
	if err := s.store.SaveList(merged); err != nil {
		return transport.Error(err.Error())
	}
	ok, _ := transport.OK(merged)
	return ok
}

func (s *service) handlePeerItem(msg transport.Message) transport.Message {
	if msg.Item == nil {
		return transport.Error("missing item payload")
	}
	existing, hasLocal := s.items.Get(msg.Item.ID)
	var basePtr *domain.Item
	if hasLocal {
		basePtr = &existing
	}
	merged, _ := domain.ApplyIncomingItem(basePtr, *msg.Item, domain.ScopeAll)
	if hasLocal {
		s.items.Put(merged.ID, merged)
	} else {
		s.items.Add(merged)
	}
	if err := s.store.SaveItem(merged); err != nil {
		return transport.Error(err.Error())
	}
	ok, _ := transport.OK(merged)
	return ok
}
