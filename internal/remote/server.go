package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// sysEnvelope is the stamp the server attaches to every accepted write.
// Clients store and echo it without interpretation.
type sysEnvelope struct {
	RecordID       string    `json:"record_id"`
	StoreRevision  int64     `json:"store_revision"`
	RecordRevision int64     `json:"record_revision"`
	ModifiedAt     time.Time `json:"modified_at"`
}

type serverRecord struct {
	rec      Record
	revision int64 // bumped on every accepted write
	storeRev int64 // zone revision at last change
}

type zoneState struct {
	revision   int64 // monotonic zone-wide change counter
	records    map[string]*serverRecord
	tombstones map[string]int64 // record id -> zone revision at deletion
}

// Server is a reference in-memory implementation of the record service wire
// protocol: push with a per-record optimistic check, pull since a cursor,
// zone lifecycle, and a websocket event stream. It exists so two devices
// have something to sync through and so integration tests can exercise the
// real wire path; it is not durable.
type Server struct {
	mu           sync.Mutex
	zones        map[string]*zoneState
	deletedZones map[string]bool

	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex
	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// NewServer creates a server. If logger is nil a stderr logger is used.
func NewServer(logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		zones:        make(map[string]*zoneState),
		deletedZones: make(map[string]bool),
		clients:      make(map[*websocket.Conn]bool),
		broadcast:    make(chan Event, 100),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
}

// Start begins serving on addr (e.g. ":8787"). Use Addr() for the bound
// address when addr carries port 0.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /zones/{zone}", s.handleCreateZone)
	mux.HandleFunc("DELETE /zones/{zone}", s.handleDeleteZone)
	mux.HandleFunc("POST /zones/{zone}/push", s.handlePush)
	mux.HandleFunc("POST /zones/{zone}/pull", s.handlePull)
	mux.HandleFunc("GET /zones/{zone}/count", s.handleCount)
	mux.HandleFunc("POST /account", s.handleAccount)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	s.wg.Add(2)
	go s.broadcastLoop()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Record service listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}

// Broadcast queues an event for every connected event-stream client.
func (s *Server) Broadcast(ev Event) {
	select {
	case s.broadcast <- ev:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping event")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Printf("Failed to marshal event: %v", err)
				continue
			}
			s.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				conns = append(conns, conn)
			}
			s.clientsMu.RUnlock()
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.Read(s.ctx); err != nil {
				return
			}
		}
	}()
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if _, ok := s.clients[conn]; ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		delete(s.clients, conn)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	s.mu.Lock()
	if _, ok := s.zones[zone]; !ok {
		s.zones[zone] = &zoneState{
			records:    make(map[string]*serverRecord),
			tombstones: make(map[string]int64),
		}
	}
	delete(s.deletedZones, zone)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	s.mu.Lock()
	delete(s.zones, zone)
	s.deletedZones[zone] = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	var req struct {
		Upserts []Record `json:"upserts"`
		Deletes []string `json:"deletes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed push request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	z, ok := s.zones[zone]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "zone not found", http.StatusNotFound)
		return
	}

	results := make([]PerRecordResult, 0, len(req.Upserts)+len(req.Deletes))
	for _, rec := range req.Upserts {
		results = append(results, s.applyUpsert(z, rec))
	}
	for _, id := range req.Deletes {
		z.revision++
		delete(z.records, id)
		z.tombstones[id] = z.revision
		results = append(results, PerRecordResult{ID: id, Status: StatusOK})
	}
	cursor := encodeCursor(z.revision)
	s.mu.Unlock()

	s.Broadcast(Event{Type: EventStateUpdated, Cursor: cursor})

	writeJSON(w, struct {
		Results []PerRecordResult `json:"results"`
	}{results})
}

// applyUpsert performs the optimistic check for one record. The caller holds
// s.mu.
func (s *Server) applyUpsert(z *zoneState, rec Record) PerRecordResult {
	existing := z.records[rec.ID]

	var claimed int64
	if len(rec.SysFields) > 0 {
		var env sysEnvelope
		if err := json.Unmarshal(rec.SysFields, &env); err != nil {
			return PerRecordResult{ID: rec.ID, Status: StatusConflict, ServerRecord: currentState(existing)}
		}
		claimed = env.RecordRevision
	}

	var current int64
	if existing != nil {
		current = existing.revision
	}
	if claimed != current {
		// Stale stamp: report the authoritative state (nil if the record
		// was deleted server-side).
		return PerRecordResult{ID: rec.ID, Status: StatusConflict, ServerRecord: currentState(existing)}
	}

	z.revision++
	newRev := current + 1
	sys, _ := json.Marshal(sysEnvelope{
		RecordID:       rec.ID,
		StoreRevision:  z.revision,
		RecordRevision: newRev,
		ModifiedAt:     time.Now().UTC(),
	})
	stored := rec
	stored.SysFields = sys
	z.records[rec.ID] = &serverRecord{rec: stored, revision: newRev, storeRev: z.revision}
	delete(z.tombstones, rec.ID)

	return PerRecordResult{ID: rec.ID, Status: StatusOK, SysFields: sys}
}

func currentState(existing *serverRecord) *Record {
	if existing == nil {
		return nil
	}
	rec := existing.rec
	return &rec
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	var req struct {
		Since []byte `json:"since"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed pull request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[zone]
	if !ok {
		if s.deletedZones[zone] {
			writeJSON(w, PullResponse{ZoneDeleted: true})
			return
		}
		http.Error(w, "zone not found", http.StatusNotFound)
		return
	}

	since := decodeCursor(req.Since)
	resp := PullResponse{NextCursor: encodeCursor(z.revision)}
	for _, sr := range z.records {
		if sr.storeRev > since {
			resp.Modified = append(resp.Modified, sr.rec)
		}
	}
	for id, rev := range z.tombstones {
		if rev > since {
			resp.Deleted = append(resp.Deleted, id)
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	kind := r.URL.Query().Get("kind")

	s.mu.Lock()
	z, ok := s.zones[zone]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "zone not found", http.StatusNotFound)
		return
	}
	n := 0
	for _, sr := range z.records {
		if kind == "" || sr.rec.Kind == kind {
			n++
		}
	}
	s.mu.Unlock()

	writeJSON(w, struct {
		Count int `json:"count"`
	}{n})
}

// handleAccount broadcasts a session transition to every subscriber. The
// production session authority pushes these; the reference server accepts
// them over HTTP so tests and demos can drive the lifecycle.
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Change AccountChange `json:"change"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed account request", http.StatusBadRequest)
		return
	}
	switch req.Change {
	case AccountSignIn, AccountSignOut, AccountSwitch:
	default:
		http.Error(w, "unknown account change", http.StatusBadRequest)
		return
	}
	s.Broadcast(Event{Type: EventAccountChanged, Account: req.Change})
	w.WriteHeader(http.StatusOK)
}

func encodeCursor(revision int64) []byte {
	return []byte(strconv.FormatInt(revision, 10))
}

func decodeCursor(cursor []byte) int64 {
	if len(cursor) == 0 {
		return 0
	}
	rev, err := strconv.ParseInt(string(cursor), 10, 64)
	if err != nil {
		return 0
	}
	return rev
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
