package server

import (
	"math"

	"github.com/pkg/errors"
	"matchbroker/model"
)

//Base rating for players queueing a variant for the first time, and the
//bounds a stored rating can never leave.
const (
	BaseRating  = 1500
	RatingFloor = 100
	RatingRoof  = 5000
)

type kFactor struct {
	MinRating int
	MaxRating int
	Factor    int
}

//Higher rated teams move in smaller steps.
var kFactors = []kFactor{
	{MinRating: RatingFloor, MaxRating: 2099, Factor: 32},
	{MinRating: 2100, MaxRating: 3399, Factor: 24},
	{MinRating: 3400, MaxRating: RatingRoof, Factor: 16},
}

//validateKFactors checks that the band table covers the whole rating range
//without gaps. A table that leaves an average unmatched is a configuration
//error and must abort startup.
func validateKFactors(bands []kFactor) error {

	if len(bands) == 0 {
		return errors.New("k-factor table is empty")
	}

	if bands[0].MinRating != RatingFloor {
		return errors.Errorf("k-factor table starts at %d, expected %d", bands[0].MinRating, RatingFloor)
	}

	for i := 1; i < len(bands); i++ {
		if bands[i].MinRating != bands[i-1].MaxRating+1 {
			return errors.Errorf("k-factor bands %d and %d are not contiguous", i-1, i)
		}
	}

	if bands[len(bands)-1].MaxRating != RatingRoof {
		return errors.Errorf("k-factor table ends at %d, expected %d", bands[len(bands)-1].MaxRating, RatingRoof)
	}

	return nil

}

func factorForAverage(bands []kFactor, avg float64) (int, error) {
	for _, band := range bands {
		if avg >= float64(band.MinRating) && avg <= float64(band.MaxRating) {
			return band.Factor, nil
		}
	}
	return 0, errors.Errorf("no k-factor band for average rating %.1f", avg)
}

//MatchResult is the completed session outcome a game server reports back.
type MatchResult struct {
	MatchID      string     `json:"matchId"`
	Variant      string     `json:"variant"`
	Teams        [][]string `json:"teams"`
	FirstTeamWon bool       `json:"firstTeamWon"`
}

//RatingEngine recalculates stored skill ratings once a session outcome is
//known and pushes the resulting profile updates to connected clients.
type RatingEngine struct {
	userStore    UserStore
	clientHolder *ClientHolder
	logger       *Logger
}

func NewRatingEngine(userStore UserStore, clientHolder *ClientHolder, logger *Logger) (*RatingEngine, error) {

	if err := validateKFactors(kFactors); err != nil {
		return nil, err
	}

	return &RatingEngine{
		userStore:    userStore,
		clientHolder: clientHolder,
		logger:       logger,
	}, nil

}

func (r *RatingEngine) CalculateAfterMatch(result *MatchResult) error {

	if len(result.Teams) != 2 {
		return errors.Errorf("expected exactly two rosters, got %d", len(result.Teams))
	}

	teamA, err := r.loadRoster(result.Teams[0])
	if err != nil {
		return err
	}
	teamB, err := r.loadRoster(result.Teams[1])
	if err != nil {
		return err
	}

	avgA := averageRating(teamA, result.Variant)
	avgB := averageRating(teamB, result.Variant)

	//standard logistic expectation
	qa := math.Pow(10, avgA/400.0)
	qb := math.Pow(10, avgB/400.0)
	expectedA := qa / (qa + qb)
	expectedB := qb / (qa + qb)

	factorA, err := factorForAverage(kFactors, avgA)
	if err != nil {
		return err
	}
	factorB, err := factorForAverage(kFactors, avgB)
	if err != nil {
		return err
	}

	var deltaA, deltaB int
	if result.FirstTeamWon {
		deltaA = int(math.Round(float64(factorA) * (1.0 - expectedA)))
		deltaB = int(math.Round(float64(factorB) * -expectedB))
	} else {
		deltaA = int(math.Round(float64(factorA) * -expectedA))
		deltaB = int(math.Round(float64(factorB) * (1.0 - expectedB)))
	}

	r.logger.Infow("Match result processed", "matchID", result.MatchID, "variant", result.Variant, "deltaA", deltaA, "deltaB", deltaB)

	if err := r.applyDelta(teamA, result.Variant, deltaA); err != nil {
		return err
	}
	return r.applyDelta(teamB, result.Variant, deltaB)

}

//loadRoster resolves reported user ids to user records. Unknown ids are
//skipped, a player may have been deleted since the match started.
func (r *RatingEngine) loadRoster(ids []string) ([]*model.User, error) {

	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		user, err := r.userStore.ByID(id)
		if err != nil {
			r.logger.Warnw("Couldn't load roster member", "userID", id, "error", err)
			continue
		}
		users = append(users, user)
	}

	if len(users) == 0 {
		return nil, errors.New("no known players in roster")
	}

	return users, nil

}

func averageRating(users []*model.User, variant string) float64 {
	sum := 0
	for _, user := range users {
		rating, ok := user.Rating(variant)
		if !ok {
			rating = BaseRating
		}
		sum += rating
	}
	return float64(sum) / float64(len(users))
}

func (r *RatingEngine) applyDelta(users []*model.User, variant string, delta int) error {

	for _, user := range users {
		if user.Ratings == nil {
			user.Ratings = make(map[string]int)
		}
		rating, ok := user.Rating(variant)
		if !ok {
			rating = BaseRating
		}
		rating += delta
		if rating > RatingRoof {
			rating = RatingRoof
		}
		if rating < RatingFloor {
			rating = RatingFloor
		}
		user.Ratings[variant] = rating

		if err := r.userStore.Save(user); err != nil {
			return errors.Wrapf(err, "couldn't persist rating for user %s", user.Id.Hex())
		}

		r.clientHolder.SendToUser(user.Id.Hex(), MarshalEnvelope(r.logger, UpdateOp(userEntity{user}, "users", []string{"ratings"}, r.logger)))
	}

	return nil

}

//userEntity adapts a user record to the replication protocol for profile
//pushes.
type userEntity struct {
	*model.User
}

var userFieldMap = FieldMap{
	"username": func(e Syncable) (interface{}, error) {
		return e.(userEntity).Username, nil
	},
	"displayName": func(e Syncable) (interface{}, error) {
		return e.(userEntity).DisplayName, nil
	},
	"avatarUrl": func(e Syncable) (interface{}, error) {
		return e.(userEntity).AvatarUrl, nil
	},
	"ratings": func(e Syncable) (interface{}, error) {
		return e.(userEntity).Ratings, nil
	},
}

func (u userEntity) SyncID() string {
	return u.Id.Hex()
}

func (u userEntity) FieldMap() FieldMap {
	return userFieldMap
}
