package server

import (
	"github.com/globalsign/mgo/bson"
	"github.com/satori/go.uuid"
	"matchbroker/model"
)

type GroupStatus int32

const (
	GroupStatusPlayerQueue GroupStatus = iota
	GroupStatusTeamQueue
)

func (s GroupStatus) String() string {
	if s == GroupStatusTeamQueue {
		return "TeamQueue"
	}
	return "PlayerQueue"
}

//Group is the matchmaking unit. It starts with a single player in the
//player queue, absorbs other groups until it reaches team size, then waits
//in the team queue to be paired against another full group.
//
//A group is exclusively owned by whichever queue currently holds it, all
//mutation happens under that queue's lock inside the matchmaker.
type Group struct {
	Id       string
	Members  []*model.User
	Variants []string
	Ratings  map[string]int
	Tries    int
	Status   GroupStatus
}

var groupFieldMap = FieldMap{
	"status": func(e Syncable) (interface{}, error) {
		return e.(*Group).Status.String(), nil
	},
	"userCount": func(e Syncable) (interface{}, error) {
		return len(e.(*Group).Members), nil
	},
	"variants": func(e Syncable) (interface{}, error) {
		return e.(*Group).Variants, nil
	},
	"ratings": func(e Syncable) (interface{}, error) {
		return e.(*Group).Ratings, nil
	},
}

func (g *Group) SyncID() string {
	return g.Id
}

func (g *Group) FieldMap() FieldMap {
	return groupFieldMap
}

func newGroup(user *model.User, variants []string) *Group {

	ratings := make(map[string]int, len(variants))
	for _, variant := range variants {
		if rating, ok := user.Rating(variant); ok {
			ratings[variant] = rating
		}
	}

	return &Group{
		Id:       uuid.NewV4().String(),
		Members:  []*model.User{user},
		Variants: variants,
		Ratings:  ratings,
		Tries:    1,
		Status:   GroupStatusPlayerQueue,
	}

}

//IsMatch reports whether the other group can be combined with this one. It
//is symmetric. The accepted rating distance widens with every failed scan of
//either group, so no group starves in the queue forever.
func (g *Group) IsMatch(other *Group, teamPlayers int, marginStep int, exactSize bool) bool {

	if other == nil || other.Id == g.Id {
		return false
	}

	if exactSize {
		if len(g.Members) != teamPlayers || len(other.Members) != teamPlayers {
			return false
		}
	} else if len(g.Members)+len(other.Members) > teamPlayers {
		return false
	}

	shared := g.SharedVariants(other)
	if len(shared) == 0 {
		return false
	}

	margin := marginStep * (g.Tries + other.Tries)
	for _, variant := range shared {
		diff := g.Ratings[variant] - other.Ratings[variant]
		if diff < 0 {
			diff = -diff
		}
		if diff > margin {
			return false
		}
	}

	return true

}

func (g *Group) SharedVariants(other *Group) []string {

	shared := make([]string, 0, len(g.Variants))
	for _, variant := range g.Variants {
		for _, otherVariant := range other.Variants {
			if variant == otherVariant {
				shared = append(shared, variant)
				break
			}
		}
	}
	return shared

}

//Merge absorbs the other group's members into this one. The compatible
//variant set shrinks to the intersection and the rating snapshot is rebuilt
//from the combined membership.
func (g *Group) Merge(other *Group) {
	g.Members = append(g.Members, other.Members...)
	g.Variants = g.SharedVariants(other)
	g.RefreshRatings()
}

//RefreshRatings rebuilds the per variant snapshot as the average over the
//current members. Members lacking a rating for a variant count as base,
//CreateGroup normally guarantees one exists for every requested variant.
func (g *Group) RefreshRatings() {

	ratings := make(map[string]int, len(g.Variants))
	if len(g.Members) == 0 {
		g.Ratings = ratings
		return
	}

	for _, variant := range g.Variants {
		sum := 0
		for _, member := range g.Members {
			rating, ok := member.Rating(variant)
			if !ok {
				rating = BaseRating
			}
			sum += rating
		}
		ratings[variant] = sum / len(g.Members)
	}

	g.Ratings = ratings

}

func (g *Group) HasMember(id bson.ObjectId) bool {
	for _, member := range g.Members {
		if member != nil && member.Id == id {
			return true
		}
	}
	return false
}

func (g *Group) RemoveMember(id bson.ObjectId) {
	members := g.Members[:0]
	for _, member := range g.Members {
		if member == nil || member.Id == id {
			continue
		}
		members = append(members, member)
	}
	g.Members = members
}

func (g *Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, member := range g.Members {
		if member == nil {
			continue
		}
		ids = append(ids, member.Id.Hex())
	}
	return ids
}
