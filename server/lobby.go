package server

import (
	"fmt"
	"sync"

	"github.com/satori/go.uuid"
)

type Lobby struct {
	Id      string
	Name    string
	Variant string
	TeamA   []string
	TeamB   []string
	Status  string
}

var lobbyFieldMap = FieldMap{
	"name": func(e Syncable) (interface{}, error) {
		return e.(*Lobby).Name, nil
	},
	"variant": func(e Syncable) (interface{}, error) {
		return e.(*Lobby).Variant, nil
	},
	"teamA": func(e Syncable) (interface{}, error) {
		return e.(*Lobby).TeamA, nil
	},
	"teamB": func(e Syncable) (interface{}, error) {
		return e.(*Lobby).TeamB, nil
	},
	"status": func(e Syncable) (interface{}, error) {
		return e.(*Lobby).Status, nil
	},
}

func (l *Lobby) SyncID() string {
	return l.Id
}

func (l *Lobby) FieldMap() FieldMap {
	return lobbyFieldMap
}

//LobbyCreator is the session creation collaborator the matchmaker hands two
//full groups to.
type LobbyCreator interface {
	CreateMatchedLobby(a *Group, b *Group, variant string) *Lobby
}

//LobbyHolder tracks the playable lobbies and mirrors them into every
//connected client's publicLobbies collection.
type LobbyHolder struct {
	sync.RWMutex
	lobbies      map[string]*Lobby
	clientHolder *ClientHolder
	notification *Notification
	stats        *Stats
	logger       *Logger
}

func NewLobbyHolder(clientHolder *ClientHolder, notification *Notification, stats *Stats, logger *Logger) *LobbyHolder {
	return &LobbyHolder{
		lobbies:      make(map[string]*Lobby),
		clientHolder: clientHolder,
		notification: notification,
		stats:        stats,
		logger:       logger,
	}
}

func (h *LobbyHolder) CreateMatchedLobby(a *Group, b *Group, variant string) *Lobby {

	lobby := &Lobby{
		Id:      uuid.NewV4().String(),
		Name:    fmt.Sprintf("Matched %s", variant),
		Variant: variant,
		TeamA:   a.MemberIDs(),
		TeamB:   b.MemberIDs(),
		Status:  "awaiting",
	}

	h.Lock()
	h.lobbies[lobby.Id] = lobby
	h.Unlock()

	h.stats.IncrLobbyCreated()

	h.clientHolder.Broadcast(MarshalEnvelope(h.logger, InsertOp(lobby, "publicLobbies", h.logger)))

	if h.notification != nil {
		h.notification.SendNotificationWithUserIDs(
			map[string]string{"en": "Match found"},
			map[string]string{"en": "Your match is ready, head back to the lobby."},
			append(lobby.TeamA, lobby.TeamB...)...,
		)
	}

	return lobby

}

func (h *LobbyHolder) Get(lobbyID string) *Lobby {
	h.RLock()
	defer h.RUnlock()
	return h.lobbies[lobbyID]
}

func (h *LobbyHolder) Remove(lobby *Lobby) {

	h.Lock()
	delete(h.lobbies, lobby.Id)
	h.Unlock()

	h.clientHolder.Broadcast(MarshalEnvelope(h.logger, RemoveOp(lobby, "publicLobbies")))

}

//PublicSnapshot replaces the session's whole publicLobbies collection in a
//single envelope.
func (h *LobbyHolder) PublicSnapshot(s Session) {

	h.RLock()
	ops := make([]Op, 0, len(h.lobbies)+1)
	ops = append(ops, ClearOp("publicLobbies"))
	for _, lobby := range h.lobbies {
		ops = append(ops, InsertOp(lobby, "publicLobbies", h.logger))
	}
	h.RUnlock()

	_ = s.SendBytes(MarshalEnvelope(h.logger, ops...))

}

//LeaveLobby detaches the client's user from its current lobby. A lobby with
//no players left is removed for everyone.
func (h *LobbyHolder) LeaveLobby(client *Client) {

	lobby := client.Lobby()
	user := client.User()
	if lobby == nil || user == nil {
		return
	}

	client.SetLobby(nil)

	userID := user.Id.Hex()

	h.Lock()
	lobby.TeamA = removeID(lobby.TeamA, userID)
	lobby.TeamB = removeID(lobby.TeamB, userID)
	empty := len(lobby.TeamA) == 0 && len(lobby.TeamB) == 0
	h.Unlock()

	client.Send(MarshalEnvelope(h.logger, ClearOp("lobbies")))

	if empty {
		h.Remove(lobby)
	}

}

func removeID(ids []string, id string) []string {
	result := ids[:0]
	for _, current := range ids {
		if current == id {
			continue
		}
		result = append(result, current)
	}
	return result
}
