// Package transport implements the node request channel (C7, spec §4.7):
// a point-to-point JSON request/reply protocol over a persistent TCP
// connection per peer pair, with Lazy-Pirate retry (close, reopen, retry up
// to R_max=3 attempts) on timeout.
package transport

import (
	"encoding/json"

	"github.com/listring/listring/internal/domain"
)

// MessageType enumerates the inter-node envelope kinds from spec §6.
type MessageType string

const (
	MsgRead           MessageType = "READ"
	MsgCreateList     MessageType = "CREATE_LIST"
	MsgAddItem        MessageType = "ADD_ITEM"
	MsgUpdateItem     MessageType = "UPDATE_ITEM"
	MsgUpdateQuantity MessageType = "UPDATE_QUANTITY"
	MsgUpdateName     MessageType = "UPDATE_NAME"
	MsgToggleCheck    MessageType = "TOGGLE_CHECK"
	MsgRemoveItem     MessageType = "REMOVE_ITEM"
	MsgDeleteList     MessageType = "DELETE_LIST"
	MsgBroadcast      MessageType = "BROADCAST"
	MsgGossip         MessageType = "GOSSIP"
	MsgAntiEntropy    MessageType = "ANTI_ENTROPY"
)

// DataType distinguishes which entity a READ addresses.
type DataType string

const (
	DataTypeList DataType = "list"
	DataTypeItem DataType = "item"
)

// Message is the single envelope shape exchanged in both directions over a
// peer channel (spec §6 "Inter-node messages"). A request sets Type and
// whichever payload fields it needs; a reply sets Status and Data.
type Message struct {
	Type     MessageType     `json:"type"`
	Key      string          `json:"key,omitempty"`
	DataType DataType        `json:"dataType,omitempty"`
	List     *domain.List    `json:"list,omitempty"`
	Item     *domain.Item    `json:"item,omitempty"`
	ItemID   string          `json:"itemId,omitempty"`
	ListID   string          `json:"listId,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Status   string          `json:"status,omitempty"`
}

// OK builds a successful reply carrying data (marshaled to Data).
func OK(data any) (Message, error) {
	if data == nil {
		return Message{Status: "ok"}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Status: "ok", Data: raw}, nil
}

// Error builds an error reply.
func Error(reason string) Message {
	raw, _ := json.Marshal(reason)
	return Message{Status: "error", Data: raw}
}

// IsOK reports whether a reply's Status is "ok".
func (m Message) IsOK() bool {
	return m.Status == "ok"
}
