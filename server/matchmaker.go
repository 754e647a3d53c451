package server

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

//Matchmaker owns the two matching queues and their periodic scan loops.
//
//Groups in the player queue fill up to team size by merging, full groups
//move to the team queue and wait to be paired against another full group.
//Both queues have their own mutex. Any operation that needs both locks
//always takes the player queue lock before the team queue lock, never the
//other way around, including demotion.
type Matchmaker struct {
	config       *Config
	logger       *Logger
	stats        *Stats
	clientHolder *ClientHolder
	userStore    UserStore
	lobbies      LobbyCreator

	queueMutex     sync.Mutex
	teamQueueMutex sync.Mutex
	queue          []*Group
	teamQueue      []*Group

	rnd *rand.Rand

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMatchmaker(config *Config, logger *Logger, stats *Stats, clientHolder *ClientHolder, userStore UserStore, lobbies LobbyCreator) *Matchmaker {
	return &Matchmaker{
		config:       config,
		logger:       logger,
		stats:        stats,
		clientHolder: clientHolder,
		userStore:    userStore,
		lobbies:      lobbies,
		queue:        make([]*Group, 0),
		teamQueue:    make([]*Group, 0),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

//Start spawns the two scan loops. Stop cancels and joins them, it never
//interrupts a scan mid-mutation.
func (m *Matchmaker) Start() {

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(2)
	go m.scanLoop(ctx, m.scanPlayerQueue)
	go m.scanLoop(ctx, m.scanTeamQueue)

}

func (m *Matchmaker) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Matchmaker) scanLoop(ctx context.Context, scan func()) {

	defer m.wg.Done()

	ticker := time.NewTicker(time.Duration(m.config.MatchmakerConfig.ScanInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scan()
		}
	}

}

//CreateGroup enqueues the client's user into the player queue. Variants the
//user has never played get the base rating assigned first, persisted once.
func (m *Matchmaker) CreateGroup(client *Client, variants []string) (*Group, error) {

	if client.IsObsolete() {
		return nil, errors.New("client is obsolete")
	}

	user := client.User()
	if user == nil {
		return nil, errors.New("client is not authenticated")
	}

	if client.Group() != nil || client.Lobby() != nil {
		return nil, errors.New("client is already in matchmaking or in a lobby")
	}

	if len(variants) == 0 {
		return nil, errors.New("at least one variant is required")
	}

	if user.Ratings == nil {
		user.Ratings = make(map[string]int)
	}
	assigned := false
	for _, variant := range variants {
		if _, ok := user.Ratings[variant]; !ok {
			user.Ratings[variant] = BaseRating
			assigned = true
		}
	}
	if assigned {
		if err := m.userStore.Save(user); err != nil {
			return nil, errors.Wrap(err, "couldn't persist initial ratings")
		}
	}

	group := newGroup(user, variants)

	//The client must point at the group before the scan loops can see it,
	//a merge right after the append has to find this client to re-point it
	client.SetGroup(group)

	m.queueMutex.Lock()
	m.queue = append(m.queue, group)
	m.queueMutex.Unlock()

	m.stats.IncrGroupCreated()

	m.logger.Infow("User started matchmaking", "userID", user.Id.Hex(), "groupID", group.Id, "variants", variants)

	client.Send(MarshalEnvelope(m.logger, InsertOp(group, "matchmake", m.logger)))

	return group, nil

}

//Leave removes the client's user from its current group. The owning queue is
//located first and the membership mutation happens under that queue's lock,
//a scan loop must never observe a half-updated group. Emptied groups are
//dropped, no longer full team queue groups fall back to the player queue.
func (m *Matchmaker) Leave(client *Client) {

	group := client.Group()
	user := client.User()
	if group == nil || user == nil {
		return
	}

	client.SetGroup(nil)

	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	if containsGroup(m.queue, group) {
		group.RemoveMember(user.Id)

		m.logger.Infow("User stopped matchmaking", "userID", user.Id.Hex(), "groupID", group.Id)

		if len(group.Members) == 0 {
			m.queue = removeGroup(m.queue, group)
		} else {
			group.RefreshRatings()
			m.transmitGroupUpdate(group, []string{"userCount"})
		}
		client.Send(MarshalEnvelope(m.logger, RemoveOp(group, "matchmake")))
		return
	}

	m.teamQueueMutex.Lock()
	inTeamQueue := containsGroup(m.teamQueue, group)
	if inTeamQueue {
		//The group leaves the team queue before it mutates
		m.teamQueue = removeGroup(m.teamQueue, group)
		group.RemoveMember(user.Id)
		if len(group.Members) > 0 {
			group.RefreshRatings()
		}
	}
	m.teamQueueMutex.Unlock()

	if !inTeamQueue {
		//The group was matched away in the meantime, nothing left to leave
		return
	}

	m.logger.Infow("User stopped matchmaking", "userID", user.Id.Hex(), "groupID", group.Id)

	if len(group.Members) > 0 {
		//Not a full team anymore, back to the player queue
		m.queue = append(m.queue, group)
		group.Status = GroupStatusPlayerQueue
		m.transmitGroupUpdate(group, []string{"status", "userCount"})
	}

	client.Send(MarshalEnvelope(m.logger, RemoveOp(group, "matchmake")))

}

//scanPlayerQueue runs one merge pass over the player queue. First fit, the
//scan only guarantees progress, not optimal pairings.
func (m *Matchmaker) scanPlayerQueue() {

	m.queueMutex.Lock()
	defer m.queueMutex.Unlock()

	teamPlayers := m.config.MatchmakerConfig.TeamPlayers
	marginStep := m.config.MatchmakerConfig.RatingMarginStep

	snapshot := append([]*Group(nil), m.queue...)
	for _, group := range snapshot {
		//groups absorbed or promoted earlier in this pass are skipped
		if !containsGroup(m.queue, group) {
			continue
		}

		var found *Group
		for _, other := range m.queue {
			if group.IsMatch(other, teamPlayers, marginStep, false) {
				found = other
				break
			}
		}

		if found != nil {
			found.Merge(group)

			//clients still pointing at the absorbed group follow the merge
			for _, client := range m.clientHolder.FindWhere(func(c *Client) bool { return c.Group() == group }) {
				client.SetGroup(found)
			}

			m.logger.Infow("Matchmake groups merged", "from", len(group.Members), "to", len(found.Members), "tries", group.Tries, "groupID", found.Id)
			m.stats.IncrGroupMerge()

			m.queue = removeGroup(m.queue, group)

			if len(found.Members) == teamPlayers {
				m.promoteLocked(found)
			} else {
				m.transmitGroupUpdate(found, []string{"userCount"})
			}
		} else if len(group.Members) == teamPlayers {
			//already full without a merge, can only happen with a team size of one
			m.promoteLocked(group)
		} else {
			//no match found, open the possibilities
			group.Tries++
		}
	}

}

//promoteLocked moves a full group into the team queue. Caller holds the
//player queue lock, the team queue lock is taken second per the lock order.
func (m *Matchmaker) promoteLocked(group *Group) {

	group.Tries = 1

	m.queue = removeGroup(m.queue, group)

	m.teamQueueMutex.Lock()
	m.teamQueue = append(m.teamQueue, group)
	m.teamQueueMutex.Unlock()

	group.Status = GroupStatusTeamQueue
	m.transmitGroupUpdate(group, []string{"status", "userCount"})

}

//scanTeamQueue pairs two full groups into a lobby. The played variant is
//picked at random from the intersection of both groups' variant sets.
func (m *Matchmaker) scanTeamQueue() {

	m.teamQueueMutex.Lock()
	defer m.teamQueueMutex.Unlock()

	teamPlayers := m.config.MatchmakerConfig.TeamPlayers
	marginStep := m.config.MatchmakerConfig.RatingMarginStep

	snapshot := append([]*Group(nil), m.teamQueue...)
	for _, group := range snapshot {
		if !containsGroup(m.teamQueue, group) {
			continue
		}

		var found *Group
		for _, other := range m.teamQueue {
			if group.IsMatch(other, teamPlayers, marginStep, true) {
				found = other
				break
			}
		}

		if found == nil {
			group.Tries++
			continue
		}

		shared := group.SharedVariants(found)
		variant := shared[m.rnd.Intn(len(shared))]

		lobby := m.lobbies.CreateMatchedLobby(group, found, variant)

		m.logger.Infow("Matched lobby created", "lobbyID", lobby.Id, "variant", variant, "groupA", group.Id, "groupB", found.Id)

		//everyone in either group moves from the matchmake view into the lobby
		payload := MarshalEnvelope(m.logger, ClearOp("matchmake"), ClearOp("lobbies"), InsertOp(lobby, "lobbies", m.logger))
		for _, client := range m.clientHolder.FindWhere(func(c *Client) bool {
			g := c.Group()
			return g == group || g == found
		}) {
			client.SetGroup(nil)
			client.SetLobby(lobby)
			client.Send(payload)
		}

		m.teamQueue = removeGroup(m.teamQueue, group)
		m.teamQueue = removeGroup(m.teamQueue, found)
	}

}

func (m *Matchmaker) transmitGroupUpdate(group *Group, fields []string) {

	payload := MarshalEnvelope(m.logger, UpdateOp(group, "matchmake", fields, m.logger))
	m.clientHolder.BroadcastWhere(func(c *Client) bool {
		g := c.Group()
		return g != nil && g.Id == group.Id
	}, payload)

}

func containsGroup(groups []*Group, group *Group) bool {
	for _, g := range groups {
		if g == group {
			return true
		}
	}
	return false
}

func removeGroup(groups []*Group, group *Group) []*Group {
	for i, g := range groups {
		if g == group {
			return append(groups[:i], groups[i+1:]...)
		}
	}
	return groups
}
