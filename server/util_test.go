package server

import (
	"sync"

	"github.com/globalsign/mgo/bson"
	"github.com/pkg/errors"
	"github.com/satori/go.uuid"
	"matchbroker/model"
)

//Shared fixtures for the server package tests. The stats holder registers
//opencensus views process wide, so it exists exactly once.
var testStats = NewStatsHolder()

func testLogger() *Logger {
	return NewLogger(&Config{DevelopmentEnabled: true})
}

func testConfig(teamPlayers int) *Config {
	config := &Config{}
	config.MatchmakerConfig.TeamPlayers = teamPlayers
	config.MatchmakerConfig.ScanInterval = 10
	config.MatchmakerConfig.RatingMarginStep = 25
	config.SocketConfig.OutgoingQueueSize = 16
	return config
}

func testUser(steamID string, ratings map[string]int) *model.User {
	return &model.User{
		Id:          bson.NewObjectId(),
		SteamID:     steamID,
		Username:    steamID,
		DisplayName: steamID,
		Ratings:     ratings,
	}
}

type testSession struct {
	sync.Mutex
	id     uuid.UUID
	sent   [][]byte
	closed bool
}

func newTestSession() *testSession {
	return &testSession{id: uuid.NewV4()}
}

func (s *testSession) ID() uuid.UUID      { return s.id }
func (s *testSession) ClientIP() string   { return "127.0.0.1" }
func (s *testSession) ClientPort() string { return "0" }

func (s *testSession) Consume(func(session Session, data []byte) bool) {}

func (s *testSession) SendBytes(payload []byte) error {
	s.Lock()
	s.sent = append(s.sent, payload)
	s.Unlock()
	return nil
}

func (s *testSession) Close() {
	s.Lock()
	s.closed = true
	s.Unlock()
}

func (s *testSession) IsClosed() bool {
	s.Lock()
	defer s.Unlock()
	return s.closed
}

func (s *testSession) payloads() [][]byte {
	s.Lock()
	defer s.Unlock()
	return append([][]byte(nil), s.sent...)
}

type memoryUserStore struct {
	sync.Mutex
	users     map[string]*model.User
	saveCount map[string]int
}

func newMemoryUserStore(users ...*model.User) *memoryUserStore {
	store := &memoryUserStore{
		users:     make(map[string]*model.User),
		saveCount: make(map[string]int),
	}
	for _, user := range users {
		store.users[user.Id.Hex()] = user
	}
	return store
}

func (s *memoryUserStore) ByID(id string) (*model.User, error) {
	s.Lock()
	defer s.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, errors.Errorf("user %s not found", id)
	}
	return user, nil
}

func (s *memoryUserStore) EnsureUser(steamID string) (*model.User, error) {
	s.Lock()
	for _, user := range s.users {
		if user.SteamID == steamID {
			s.Unlock()
			return user, nil
		}
	}
	s.Unlock()

	user := testUser(steamID, make(map[string]int))
	s.Lock()
	s.users[user.Id.Hex()] = user
	s.Unlock()
	return user, nil
}

func (s *memoryUserStore) Save(user *model.User) error {
	s.Lock()
	s.users[user.Id.Hex()] = user
	s.saveCount[user.Id.Hex()]++
	s.Unlock()
	return nil
}

func (s *memoryUserStore) saves(user *model.User) int {
	s.Lock()
	defer s.Unlock()
	return s.saveCount[user.Id.Hex()]
}

type fakeLobbyCreator struct {
	sync.Mutex
	created []*Lobby
}

func (f *fakeLobbyCreator) CreateMatchedLobby(a *Group, b *Group, variant string) *Lobby {
	lobby := &Lobby{
		Id:      uuid.NewV4().String(),
		Name:    "test lobby",
		Variant: variant,
		TeamA:   a.MemberIDs(),
		TeamB:   b.MemberIDs(),
		Status:  "awaiting",
	}
	f.Lock()
	f.created = append(f.created, lobby)
	f.Unlock()
	return lobby
}

func (f *fakeLobbyCreator) count() int {
	f.Lock()
	defer f.Unlock()
	return len(f.created)
}

//authedClient connects a fresh session and authenticates it as the given
//user, returning the canonical client and the underlying session stub.
func authedClient(h *ClientHolder, user *model.User) (*Client, *testSession) {
	s := newTestSession()
	placeholder := h.Connected(s)
	client := h.RegisterUser(placeholder, s, user)
	return client, s
}
