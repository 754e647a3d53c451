package server

import (
	"crypto"
	"encoding/json"
	"fmt"
	"github.com/dgrijalva/jwt-go"
)

//Pipeline runs the logic part of every inbound socket message. The wire
//format is a small JSON command envelope, replies travel as replication
//envelopes or error messages.
type Pipeline struct {
	config       *Config
	logger       *Logger
	clientHolder *ClientHolder
	matchmaker   *Matchmaker
	lobbyHolder  *LobbyHolder
	userStore    UserStore
	presence     *Presence
}

type command struct {
	ID       string   `json:"id"`
	Token    string   `json:"token,omitempty"`
	Variants []string `json:"variants,omitempty"`
}

func NewPipeline(config *Config, logger *Logger, clientHolder *ClientHolder, matchmaker *Matchmaker, lobbyHolder *LobbyHolder, userStore UserStore, presence *Presence) *Pipeline {

	p := &Pipeline{
		config:       config,
		logger:       logger,
		clientHolder: clientHolder,
		matchmaker:   matchmaker,
		lobbyHolder:  lobbyHolder,
		userStore:    userStore,
		presence:     presence,
	}

	//A dead connection must clean up the same way an explicit deauth does
	clientHolder.HandleOffline(p.handleOffline)

	return p

}

func (p *Pipeline) handleMessage(s Session, data []byte) bool {

	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		p.logger.Errorw("Unparseable message received", "sessionID", s.ID().String(), "error", err)
		p.sendError(s, "unparseable message")
		return false
	}

	client := p.clientHolder.GetBySession(s.ID())
	if client == nil {
		p.logger.Debugw("Message from unregistered session", "sessionID", s.ID().String())
		return false
	}

	switch cmd.ID {
	case "auth":
		p.handleAuth(s, client, cmd.Token)
	case "deauth":
		p.handleDeauth(s, client)
	case "matchmake":
		if _, err := p.matchmaker.CreateGroup(client, cmd.Variants); err != nil {
			p.sendError(s, err.Error())
		}
	case "leavematchmake":
		p.matchmaker.Leave(client)
	case "leavelobby":
		p.lobbyHolder.LeaveLobby(client)
	default:
		//Browser builds may be newer than the broker, an unknown command is
		//answered but doesn't cost the connection
		p.logger.Debugw("Unrecognized command received", "command", cmd.ID, "sessionID", s.ID().String())
		p.sendError(s, "unrecognized command")
	}

	return true

}

func (p *Pipeline) handleAuth(s Session, client *Client, token string) {

	if client.IsObsolete() {
		p.sendError(s, "client is obsolete")
		return
	}

	//One identity per client, a second identity needs a deauth first
	if client.User() != nil {
		p.sendError(s, "session is already authenticated")
		return
	}

	steamID, ok := parseToken([]byte(p.config.AuthConfig.JWTSecret), token)
	if !ok {
		p.sendError(s, "invalid token")
		return
	}

	user, err := p.userStore.EnsureUser(steamID)
	if err != nil {
		p.logger.Errorw("Couldn't resolve user for auth request", "steamID", steamID, "error", err)
		p.sendError(s, "authentication failed")
		return
	}

	canonical := p.clientHolder.RegisterUser(client, s, user)
	p.presence.SetOnline(user.Id.Hex())

	p.logger.Infow("User authenticated", "userID", user.Id.Hex(), "username", user.Username)

	//The authed session gets its own profile entry
	canonicalUser := canonical.User()
	if canonicalUser != nil {
		_ = s.SendBytes(MarshalEnvelope(p.logger, ClearOp("users"), InsertOp(userEntity{canonicalUser}, "users", p.logger)))
	}

}

func (p *Pipeline) handleDeauth(s Session, client *Client) {

	user := client.User()
	if user == nil {
		return
	}

	//Membership is always cleared through the engine's leave path first
	p.matchmaker.Leave(client)
	p.lobbyHolder.LeaveLobby(client)
	p.presence.SetOffline(user.Id.Hex())
	p.clientHolder.DeregisterUser(client, s)

	p.logger.Infow("User deauthenticated", "userID", user.Id.Hex())

}

//handleOffline mirrors the deauth path for identities whose last session
//dropped without a clean deauth. Remaining group members and lobby rosters
//must not keep an offline player.
func (p *Pipeline) handleOffline(client *Client) {

	user := client.User()
	if user == nil {
		return
	}

	p.matchmaker.Leave(client)
	p.lobbyHolder.LeaveLobby(client)
	p.presence.SetOffline(user.Id.Hex())

	p.logger.Infow("User went offline", "userID", user.Id.Hex())

}

func (p *Pipeline) sendError(s Session, reason string) {

	data, err := json.Marshal(map[string]string{
		"msg":    "error",
		"reason": reason,
	})
	if err != nil {
		p.logger.Errorw("Couldn't marshal error reply", "error", err)
		return
	}

	_ = s.SendBytes(data)

}

//parseToken validates the token the external auth service issued and
//extracts the steam identity it vouches for.
func parseToken(hmacSecretByte []byte, tokenString string) (steamID string, ok bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if s, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || s.Hash != crypto.SHA256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return hmacSecretByte, nil
	})
	if err != nil {
		return
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", false
	}
	steamID, ok = claims["sid"].(string)
	return
}
