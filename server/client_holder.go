package server

import (
	"github.com/satori/go.uuid"
	"matchbroker/model"
	"sync"
)

//ClientHolder is the connection registry. It maps live session handles to
//logical clients and authenticated identities to their canonical client,
//and it is the broadcast router for replication envelopes.
type ClientHolder struct {
	sync.RWMutex
	clients     map[uuid.UUID]*Client
	userClients map[string]*Client
	offlineHook func(*Client)
	config      *Config
	logger      *Logger
}

func NewClientHolder(config *Config, logger *Logger) *ClientHolder {
	return &ClientHolder{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[string]*Client),
		config:      config,
		logger:      logger,
	}
}

//HandleOffline registers the hook that runs after a client's last session
//dropped while it still carried an identity. The hook is invoked outside the
//registry lock and may walk the registry itself.
func (h *ClientHolder) HandleOffline(hook func(*Client)) {
	h.offlineHook = hook
}

//Connected creates a fresh unauthenticated client for a new session.
func (h *ClientHolder) Connected(s Session) *Client {

	client := newClient(s)

	h.Lock()
	h.clients[s.ID()] = client
	h.Unlock()

	return client

}

func (h *ClientHolder) GetBySession(sessionID uuid.UUID) *Client {
	h.RLock()
	defer h.RUnlock()
	return h.clients[sessionID]
}

func (h *ClientHolder) GetByUser(userID string) *Client {
	h.RLock()
	defer h.RUnlock()
	return h.userClients[userID]
}

//RegisterUser resolves an authenticated session to its canonical client.
//
//If the identity is already known, the session moves into the existing
//client's session set, the placeholder client created on connect is marked
//obsolete, and the joining session alone receives a full snapshot of any
//lobby or matchmaking state the identity currently holds. Otherwise the
//placeholder is promoted to be the identity's canonical client.
func (h *ClientHolder) RegisterUser(placeholder *Client, s Session, user *model.User) *Client {

	userID := user.Id.Hex()

	h.Lock()
	existing, ok := h.userClients[userID]
	if ok && existing != placeholder {
		existing.attach(s)
		h.clients[s.ID()] = existing
		placeholder.detach(s.ID())
		placeholder.markObsolete()
		h.Unlock()

		h.logger.Debugw("Session merged into existing client", "sessionID", s.ID().String(), "userID", userID)

		//The new session must catch up on state the other sessions already track
		if lobby := existing.Lobby(); lobby != nil {
			_ = s.SendBytes(MarshalEnvelope(h.logger, ClearOp("lobbies"), InsertOp(lobby, "lobbies", h.logger)))
		}
		if group := existing.Group(); group != nil {
			_ = s.SendBytes(MarshalEnvelope(h.logger, ClearOp("matchmake"), InsertOp(group, "matchmake", h.logger)))
		}

		return existing
	}

	placeholder.setUser(user)
	h.userClients[userID] = placeholder
	h.Unlock()

	return placeholder

}

//DeregisterUser detaches the given session from its authenticated identity.
//The caller is expected to have already cleared matchmaking and lobby
//membership through the matchmaker's leave path.
func (h *ClientHolder) DeregisterUser(client *Client, s Session) {

	user := client.User()
	if user == nil {
		return
	}

	//The deauthed session keeps its connection but loses all replicated state
	_ = s.SendBytes(MarshalEnvelope(h.logger, ClearOp("lobbies"), ClearOp("matchmake")))

	h.Lock()
	if client.SessionCount() > 1 {
		//Other sessions stay authenticated, this one becomes a fresh orphan
		client.detach(s.ID())
		orphan := newClient(s)
		h.clients[s.ID()] = orphan
	} else {
		delete(h.userClients, user.Id.Hex())
		client.setUser(nil)
	}
	h.Unlock()

}

//Disconnected removes the session mapping. When this was the client's last
//session and it had an identity, the identity mapping is dropped as well and
//the offline hook runs, so the identity also leaves any group or lobby it
//still occupied.
func (h *ClientHolder) Disconnected(sessionID uuid.UUID) {

	h.Lock()
	client, ok := h.clients[sessionID]
	if !ok {
		h.Unlock()
		h.logger.Debugw("Deregister for unknown session", "sessionID", sessionID.String())
		return
	}
	delete(h.clients, sessionID)
	var offline *Client
	if client.detach(sessionID) == 0 {
		if user := client.User(); user != nil {
			delete(h.userClients, user.Id.Hex())
			offline = client
		}
	}
	h.Unlock()

	h.logger.Debugw("Session deregistered", "sessionID", sessionID.String())

	if offline != nil && h.offlineHook != nil {
		h.offlineHook(offline)
	}

}

//Broadcast sends the payload to every connected client. Targets are
//collected under the read lock but sends happen outside it, a slow or dying
//session must never stall the registry.
func (h *ClientHolder) Broadcast(payload []byte) {
	h.BroadcastWhere(func(*Client) bool { return true }, payload)
}

func (h *ClientHolder) BroadcastWhere(predicate func(*Client) bool, payload []byte) {

	if payload == nil {
		return
	}

	for _, client := range h.FindWhere(predicate) {
		client.Send(payload)
	}

}

//SendToUser delivers the payload to every session of one identity. An
//unknown identity is a no-op, the client may have raced a disconnect.
func (h *ClientHolder) SendToUser(userID string, payload []byte) {

	h.RLock()
	client := h.userClients[userID]
	h.RUnlock()

	if client == nil {
		h.logger.Debugw("No connected client for user", "userID", userID)
		return
	}

	client.Send(payload)

}

//FindWhere returns the distinct clients satisfying the predicate. Clients
//with several sessions appear once.
func (h *ClientHolder) FindWhere(predicate func(*Client) bool) []*Client {

	h.RLock()
	seen := make(map[*Client]struct{}, len(h.clients))
	result := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		if _, ok := seen[client]; ok {
			continue
		}
		seen[client] = struct{}{}
		if predicate(client) {
			result = append(result, client)
		}
	}
	h.RUnlock()

	return result

}
