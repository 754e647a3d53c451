package server

import (
	"bytes"
	"encoding/json"
	"testing"
)

func newTestLobbyHolder() (*LobbyHolder, *ClientHolder) {
	logger := testLogger()
	clientHolder := NewClientHolder(testConfig(5), logger)
	return NewLobbyHolder(clientHolder, nil, testStats, logger), clientHolder
}

func TestCreateMatchedLobbyPublishesToEveryone(t *testing.T) {

	lobbyHolder, clientHolder := newTestLobbyHolder()

	spectator := newTestSession()
	clientHolder.Connected(spectator)

	u1 := testUser("a", map[string]int{"ctf": 1500})
	u2 := testUser("b", map[string]int{"ctf": 1500})
	a := newGroup(u1, []string{"ctf"})
	b := newGroup(u2, []string{"ctf"})

	lobby := lobbyHolder.CreateMatchedLobby(a, b, "ctf")

	if lobbyHolder.Get(lobby.Id) != lobby {
		t.Error("the created lobby should be retrievable")
	}
	if len(lobby.TeamA) != 1 || lobby.TeamA[0] != u1.Id.Hex() {
		t.Errorf("unexpected team A roster: %v", lobby.TeamA)
	}
	if len(lobby.TeamB) != 1 || lobby.TeamB[0] != u2.Id.Hex() {
		t.Errorf("unexpected team B roster: %v", lobby.TeamB)
	}
	if lobby.Status != "awaiting" {
		t.Errorf("expected awaiting status, got %s", lobby.Status)
	}

	payloads := spectator.payloads()
	if len(payloads) != 1 {
		t.Fatalf("expected one public insert for the spectator, got %d", len(payloads))
	}
	if !bytes.Contains(payloads[0], []byte(`"publicLobbies"`)) {
		t.Errorf("expected a publicLobbies insert, got %s", payloads[0])
	}

}

func TestPublicSnapshotReplacesCollectionInOneEnvelope(t *testing.T) {

	lobbyHolder, _ := newTestLobbyHolder()

	u1 := testUser("a", map[string]int{"ctf": 1500})
	u2 := testUser("b", map[string]int{"ctf": 1500})
	lobbyHolder.CreateMatchedLobby(newGroup(u1, []string{"ctf"}), newGroup(u2, []string{"ctf"}), "ctf")
	lobbyHolder.CreateMatchedLobby(newGroup(u1, []string{"koth"}), newGroup(u2, []string{"koth"}), "koth")

	s := newTestSession()
	lobbyHolder.PublicSnapshot(s)

	payloads := s.payloads()
	if len(payloads) != 1 {
		t.Fatalf("the snapshot must be a single envelope, got %d", len(payloads))
	}

	var envelope struct {
		Msg string                   `json:"msg"`
		Ops []map[string]interface{} `json:"ops"`
	}
	if err := json.Unmarshal(payloads[0], &envelope); err != nil {
		t.Fatal(err)
	}

	if len(envelope.Ops) != 3 {
		t.Fatalf("expected a clear plus two inserts, got %d ops", len(envelope.Ops))
	}
	if envelope.Ops[0]["_o"] != "remove" || envelope.Ops[0]["_c"] != "publicLobbies" {
		t.Errorf("the first op must clear the collection, got %v", envelope.Ops[0])
	}

}

func TestLeaveLobbyRemovesEmptiedLobby(t *testing.T) {

	lobbyHolder, clientHolder := newTestLobbyHolder()

	u1 := testUser("a", map[string]int{"ctf": 1500})
	u2 := testUser("b", map[string]int{"ctf": 1500})

	c1, s1 := authedClient(clientHolder, u1)
	c2, _ := authedClient(clientHolder, u2)

	lobby := lobbyHolder.CreateMatchedLobby(newGroup(u1, []string{"ctf"}), newGroup(u2, []string{"ctf"}), "ctf")
	c1.SetLobby(lobby)
	c2.SetLobby(lobby)

	lobbyHolder.LeaveLobby(c1)

	if c1.Lobby() != nil {
		t.Error("the leaver should no longer reference the lobby")
	}
	if len(lobby.TeamA) != 0 {
		t.Errorf("expected the leaver off team A, got %v", lobby.TeamA)
	}
	if lobbyHolder.Get(lobby.Id) != lobby {
		t.Error("a lobby with players left must survive")
	}

	payloads := s1.payloads()
	if len(payloads) == 0 || !bytes.Contains(payloads[len(payloads)-1], []byte(`"lobbies"`)) {
		t.Error("the leaver's sessions should drop their lobbies collection")
	}

	lobbyHolder.LeaveLobby(c2)

	if lobbyHolder.Get(lobby.Id) != nil {
		t.Error("an emptied lobby must be removed")
	}

	//leaving without a lobby is harmless
	lobbyHolder.LeaveLobby(c2)

}
