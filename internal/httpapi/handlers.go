package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"

	"github.com/listring/listring/internal/apierr"
	"github.com/listring/listring/internal/crdt"
	"github.com/listring/listring/internal/node"
)

type handlers struct {
	svc    node.Service
	logger log.Logger
}

// writeJSON encodes v as the response body with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps err to spec §7's HTTP status via apierr.StatusCode and
// writes a small JSON body carrying the message.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apierr.StatusCode(err), map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && err.Error() != "EOF" {
		return apierr.BadRequest("malformed request body", err)
	}
	return nil
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

// ===== Lists =====

type createListRequest struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	VectorClock crdt.VectorClock `json:"vectorClock"`
	CreatedAt   int64            `json:"createdAt"`
	LastUpdated int64            `json:"lastUpdated"`
}

func (h *handlers) createList(w http.ResponseWriter, r *http.Request) {
	var req createListRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	list, err := h.svc.CreateList(req.ID, req.Name, req.VectorClock, req.CreatedAt, req.LastUpdated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (h *handlers) listLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.svc.ListLists()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *handlers) getList(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snapshot, err := h.svc.GetList(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *handlers) deleteList(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.svc.DeleteList(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ===== Items =====

type addItemRequest struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Quantity    int64            `json:"quantity"`
	Acquired    int64            `json:"acquired"`
	VectorClock crdt.VectorClock `json:"vectorClock"`
	CreatedAt   int64            `json:"createdAt"`
	LastUpdated int64            `json:"lastUpdated"`
}

func (h *handlers) addItem(w http.ResponseWriter, r *http.Request) {
	listID := mux.Vars(r)["id"]
	var req addItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := h.svc.AddItem(listID, req.ID, req.Name, req.Quantity, req.Acquired, req.VectorClock, req.CreatedAt, req.LastUpdated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *handlers) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type updateNameRequest struct {
	Name        string           `json:"name"`
	VectorClock crdt.VectorClock `json:"vectorClock"`
	LastUpdated int64            `json:"lastUpdated"`
}

func (h *handlers) updateName(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	var req updateNameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := h.svc.UpdateName(itemID, req.Name, req.VectorClock, req.LastUpdated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type updateQuantityRequest struct {
	Quantity    int64            `json:"quantity"`
	Acquired    *int64           `json:"acquired"`
	VectorClock crdt.VectorClock `json:"vectorClock"`
	LastUpdated int64            `json:"lastUpdated"`
}

func (h *handlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	var req updateQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := h.svc.UpdateQuantity(itemID, req.Quantity, req.Acquired, req.VectorClock, req.LastUpdated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type toggleItemRequest struct {
	Acquired    *int64           `json:"acquired"`
	VectorClock crdt.VectorClock `json:"vectorClock"`
	LastUpdated int64            `json:"lastUpdated"`
}

func (h *handlers) toggleItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	var req toggleItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := h.svc.ToggleItem(itemID, req.Acquired, req.VectorClock, req.LastUpdated)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handlers) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	if err := h.svc.RemoveItem(itemID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
