// ABOUTME: In-process fake oicq-webapi gateway for tests
// ABOUTME: Serves enumeration and call endpoints over HTTP and pushes frames over WebSocket

// Package gatewaytest runs a scriptable stand-in for the oicq-webapi gateway.
package gatewaytest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/2389/coven-bot/internal/transport"
)

// ErrNoConnections is returned by Push when no push channel is connected.
var ErrNoConnections = errors.New("no push connections")

// Member is one entry of a group member list.
type Member struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	Alias    string `json:"alias"`
}

// Call is one recorded POST to a call endpoint.
type Call struct {
	Path string
	Body map[string]any
}

type status struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type pushConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Server is a fake gateway. The zero configuration answers every list with
// an empty list and every call with a fresh message id.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	name        string
	version     string
	selfID      int64
	selfNick    string
	friends     map[int64]string
	groups      map[int64]string
	members     map[int64][]Member
	failures    map[string]int
	fetches     map[string]int
	calls       []Call
	nextMsgID   int
	rejectNext  int
	conns       map[*pushConn]struct{}
	connections int
}

// New starts a fake gateway that is closed when tb finishes.
func New(tb testing.TB) *Server {
	tb.Helper()
	s := &Server{
		name:     "oicq-webapi",
		version:  "test",
		friends:  map[int64]string{},
		groups:   map[int64]string{},
		members:  map[int64][]Member{},
		failures: map[string]int{},
		fetches:  map[string]int{},
		conns:    map[*pushConn]struct{}{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	tb.Cleanup(s.Close)
	return s
}

// Close drops push connections and stops the server.
func (s *Server) Close() {
	s.CloseConnections()
	s.srv.Close()
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

// Endpoint returns the server address as a transport endpoint.
func (s *Server) Endpoint() transport.Endpoint {
	u, err := url.Parse(s.srv.URL)
	if err != nil {
		panic(fmt.Sprintf("gatewaytest: bad server url %q: %v", s.srv.URL, err))
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		panic(fmt.Sprintf("gatewaytest: bad server port %q: %v", u.Port(), err))
	}
	return transport.Endpoint{Host: u.Hostname(), Port: port}
}

// SetProbe sets what the root endpoint reports.
func (s *Server) SetProbe(name, version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name, s.version = name, version
}

// SetSelf sets the bot's own account.
func (s *Server) SetSelf(id int64, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID, s.selfNick = id, nick
}

// SetFriends replaces the friend list.
func (s *Server) SetFriends(friends map[int64]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends = friends
}

// SetGroups replaces the group list.
func (s *Server) SetGroups(groups map[int64]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
}

// SetMembers replaces one group's member list.
func (s *Server) SetMembers(groupID int64, members []Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[groupID] = members
}

// FailEndpoint makes path answer with a non-zero status code. Code 0 clears it.
func (s *Server) FailEndpoint(path string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = code
}

// RejectUpgrades makes the next n WebSocket upgrades fail with 503.
func (s *Server) RejectUpgrades(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = n
}

// Fetches returns how many times a GET endpoint was requested.
func (s *Server) Fetches(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[path]
}

// Calls returns the recorded POSTs to path.
func (s *Server) Calls(path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Connected returns how many push connections are open.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Connections returns how many push connections were ever accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections
}

// CloseConnections drops every open push connection.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := make([]*pushConn, 0, len(s.conns))
	for pc := range s.conns {
		conns = append(conns, pc)
	}
	s.mu.Unlock()

	for _, pc := range conns {
		pc.writeMu.Lock()
		_ = pc.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway restarting"))
		pc.writeMu.Unlock()
		_ = pc.conn.Close()
	}
}

// Push sends a {type, data} frame to every open push connection.
func (s *Server) Push(frameType string, data any) error {
	raw, err := json.Marshal(map[string]any{"type": frameType, "data": data})
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return s.PushRaw(string(raw))
}

// PushRaw sends text verbatim to every open push connection.
func (s *Server) PushRaw(text string) error {
	s.mu.Lock()
	conns := make([]*pushConn, 0, len(s.conns))
	for pc := range s.conns {
		conns = append(conns, pc)
	}
	s.mu.Unlock()

	if len(conns) == 0 {
		return ErrNoConnections
	}
	var errs []error
	for _, pc := range conns {
		pc.writeMu.Lock()
		err := pc.conn.WriteMessage(websocket.TextMessage, []byte(text))
		pc.writeMu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.servePush(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.serveGet(w, r)
	case http.MethodPost:
		s.servePost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) servePush(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.rejectNext > 0 {
		s.rejectNext--
		s.mu.Unlock()
		http.Error(w, "gateway restarting", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	pc := &pushConn{conn: conn}

	s.mu.Lock()
	s.conns[pc] = struct{}{}
	s.connections++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, pc)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serveGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	s.fetches[path]++
	st := status{Code: s.failures[path]}
	if st.Code != 0 {
		st.Message = "injected failure"
	}

	switch path {
	case "/", "":
		writeJSON(w, map[string]string{"name": s.name, "version": s.version})
	case "/user/getBasicInfo":
		writeJSON(w, map[string]any{"status": st, "id": s.selfID, "nickname": s.selfNick})
	case "/user/getFriendList":
		list := make([]map[string]any, 0, len(s.friends))
		for id, nick := range s.friends {
			list = append(list, map[string]any{"id": id, "nickname": nick})
		}
		writeJSON(w, map[string]any{"status": st, "list": list})
	case "/user/getGroupList":
		list := make([]map[string]any, 0, len(s.groups))
		for id, name := range s.groups {
			list = append(list, map[string]any{"id": id, "name": name})
		}
		writeJSON(w, map[string]any{"status": st, "list": list})
	case "/group/getMemberList":
		gid, err := strconv.ParseInt(r.URL.Query().Get("group"), 10, 64)
		if err != nil {
			writeJSON(w, map[string]any{"status": status{Code: 400, Message: "bad group"}})
			return
		}
		list := s.members[gid]
		if list == nil {
			list = []Member{}
		}
		writeJSON(w, map[string]any{"status": st, "list": list})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) servePost(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch path {
	case "/user/sendMsg", "/group/sendMsg",
		"/user/revokeMsg", "/group/revokeMsg",
		"/user/dealFriendRequest", "/user/dealGroupInvitation", "/group/dealJoinRequest":
	default:
		http.NotFound(w, r)
		return
	}

	s.calls = append(s.calls, Call{Path: path, Body: body})
	if code := s.failures[path]; code != 0 {
		writeJSON(w, map[string]any{"status": status{Code: code, Message: "injected failure"}})
		return
	}
	resp := map[string]any{"status": status{}}
	if path == "/user/sendMsg" || path == "/group/sendMsg" {
		s.nextMsgID++
		resp["msgID"] = "sent-" + strconv.Itoa(s.nextMsgID)
	}
	writeJSON(w, resp)
}
