package server

import (
	"github.com/satori/go.uuid"
	"matchbroker/model"
	"sync"
)

//Client is the durable, logical side of a connection. One client can own
//several live sessions at once (multiple tabs of the same user), and it
//survives individual sessions as long as its identity keeps at least one
//open. A client that has been merged into another one during authentication
//is marked obsolete and rejects further use.
type Client struct {
	sync.Mutex
	sessions  map[uuid.UUID]Session
	user      *model.User
	matchmake *Group
	lobby     *Lobby
	obsolete  bool
}

func newClient(s Session) *Client {
	return &Client{
		sessions: map[uuid.UUID]Session{
			s.ID(): s,
		},
	}
}

func (c *Client) User() *model.User {
	c.Lock()
	defer c.Unlock()
	return c.user
}

func (c *Client) setUser(user *model.User) {
	c.Lock()
	c.user = user
	c.Unlock()
}

func (c *Client) Group() *Group {
	c.Lock()
	defer c.Unlock()
	return c.matchmake
}

func (c *Client) SetGroup(g *Group) {
	c.Lock()
	c.matchmake = g
	c.Unlock()
}

func (c *Client) Lobby() *Lobby {
	c.Lock()
	defer c.Unlock()
	return c.lobby
}

func (c *Client) SetLobby(lobby *Lobby) {
	c.Lock()
	c.lobby = lobby
	c.Unlock()
}

func (c *Client) IsObsolete() bool {
	c.Lock()
	defer c.Unlock()
	return c.obsolete
}

func (c *Client) markObsolete() {
	c.Lock()
	c.obsolete = true
	c.Unlock()
}

func (c *Client) attach(s Session) {
	c.Lock()
	c.sessions[s.ID()] = s
	c.Unlock()
}

//detach removes the session from the client and returns how many sessions
//remain attached.
func (c *Client) detach(sessionID uuid.UUID) int {
	c.Lock()
	delete(c.sessions, sessionID)
	remaining := len(c.sessions)
	c.Unlock()
	return remaining
}

func (c *Client) session(sessionID uuid.UUID) Session {
	c.Lock()
	defer c.Unlock()
	return c.sessions[sessionID]
}

func (c *Client) SessionCount() int {
	c.Lock()
	defer c.Unlock()
	return len(c.sessions)
}

//Send delivers the payload to every session of this client. Sessions are
//snapshotted first so a send that ends up closing a connection can never
//re-enter this client's lock.
func (c *Client) Send(payload []byte) {

	if payload == nil {
		return
	}

	c.Lock()
	if c.obsolete {
		c.Unlock()
		return
	}
	sessions := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.Unlock()

	for _, s := range sessions {
		_ = s.SendBytes(payload)
	}

}
