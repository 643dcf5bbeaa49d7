package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/openmined/bulkpin/internal/drivesdk"
	"github.com/stretchr/testify/assert"
)

// fakeDrive is an in-memory drive service. Pinning a file completes it at
// once through the events socket.
type fakeDrive struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	items    []drivesdk.Item
	pins     []drivesdk.PinParams
	listErr  bool
	noEvents bool

	conn      *websocket.Conn
	connReady chan struct{}
}

func newFakeDrive(t *testing.T, items ...drivesdk.Item) *fakeDrive {
	t.Helper()

	d := &fakeDrive{t: t, items: items, connReady: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/files/list", d.list)
	mux.HandleFunc("GET /api/v1/files/metadata", d.metadata)
	mux.HandleFunc("POST /api/v1/files/pin", d.pin)
	mux.HandleFunc("/api/v1/events", d.events)

	d.server = httptest.NewServer(mux)
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDrive) set(fn func(d *fakeDrive)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

func (d *fakeDrive) URL() string {
	return d.server.URL
}

func (d *fakeDrive) Pins() []drivesdk.PinParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]drivesdk.PinParams(nil), d.pins...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (d *fakeDrive) list(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listErr {
		writeJSON(w, http.StatusInternalServerError, drivesdk.NewAPIError(drivesdk.CodeListFailed, "boom"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	if limit <= 0 {
		limit = len(d.items)
	}

	end := min(offset+limit, len(d.items))
	resp := drivesdk.ListResponse{Items: append([]drivesdk.Item{}, d.items[offset:end]...)}
	if end < len(d.items) {
		resp.NextCursor = strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *fakeDrive) metadata(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := r.URL.Query().Get("id")
	for _, item := range d.items {
		if item.ID == id {
			writeJSON(w, http.StatusOK, item)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, drivesdk.NewAPIError(drivesdk.CodeFileNotFound, "no such file"))
}

func (d *fakeDrive) pin(w http.ResponseWriter, r *http.Request) {
	var params drivesdk.PinParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, drivesdk.NewAPIError(drivesdk.CodeInvalidRequest, err.Error()))
		return
	}

	d.mu.Lock()
	d.pins = append(d.pins, params)
	var size int64
	for i := range d.items {
		if d.items[i].ID == params.ID {
			d.items[i].Pinned = params.Pinned
			d.items[i].AvailableOffline = params.Pinned
			size = d.items[i].Size
		}
	}
	d.mu.Unlock()

	writeJSON(w, http.StatusOK, drivesdk.PinResponse{ID: params.ID, Pinned: params.Pinned})

	if params.Pinned {
		d.push(drivesdk.Event{
			Type: drivesdk.EventSyncStatus,
			Sync: []drivesdk.SyncStatus{{
				ID:               params.ID,
				Path:             params.Path,
				State:            drivesdk.SyncCompleted,
				BytesTransferred: size,
				BytesToTransfer:  size,
			}},
		})
	}
}

func (d *fakeDrive) push(event drivesdk.Event) {
	select {
	case <-d.connReady:
	case <-time.After(5 * time.Second):
		d.t.Error("events socket never connected")
		return
	}

	data, _ := json.Marshal(event)
	_ = d.conn.Write(d.t.Context(), websocket.MessageText, data)
}

func (d *fakeDrive) events(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	noEvents := d.noEvents
	d.mu.Unlock()

	if noEvents {
		http.NotFound(w, r)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if !assert.NoError(d.t, err) {
		return
	}
	defer conn.CloseNow()

	d.conn = conn
	close(d.connReady)

	// hold the connection until the client goes away
	_, _, _ = conn.Read(r.Context())
}
