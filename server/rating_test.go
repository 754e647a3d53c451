package server

import (
	"testing"
)

func newTestRatingEngine(t *testing.T, store UserStore) (*RatingEngine, *ClientHolder) {
	t.Helper()
	config := testConfig(5)
	logger := testLogger()
	holder := NewClientHolder(config, logger)
	engine, err := NewRatingEngine(store, holder, logger)
	if err != nil {
		t.Fatal(err)
	}
	return engine, holder
}

func TestValidateKFactorsRejectsBrokenTables(t *testing.T) {

	tests := []struct {
		name  string
		bands []kFactor
	}{
		{"empty table", nil},
		{"doesn't start at the floor", []kFactor{
			{MinRating: 200, MaxRating: RatingRoof, Factor: 32},
		}},
		{"gap between bands", []kFactor{
			{MinRating: RatingFloor, MaxRating: 2000, Factor: 32},
			{MinRating: 2100, MaxRating: RatingRoof, Factor: 16},
		}},
		{"doesn't reach the roof", []kFactor{
			{MinRating: RatingFloor, MaxRating: 4000, Factor: 32},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateKFactors(tt.bands); err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	if err := validateKFactors(kFactors); err != nil {
		t.Errorf("the default band table must validate: %v", err)
	}

}

func TestFactorForAverage(t *testing.T) {

	tests := []struct {
		avg    float64
		factor int
	}{
		{1500, 32},
		{2099, 32},
		{2100, 24},
		{3400, 16},
		{5000, 16},
	}

	for _, tt := range tests {
		factor, err := factorForAverage(kFactors, tt.avg)
		if err != nil {
			t.Fatalf("average %.0f: %v", tt.avg, err)
		}
		if factor != tt.factor {
			t.Errorf("average %.0f: expected factor %d, got %d", tt.avg, tt.factor, factor)
		}
	}

	if _, err := factorForAverage(kFactors, 50); err == nil {
		t.Error("expected an error for an average below the floor")
	}

}

func TestCalculateAfterMatchDeltaSigns(t *testing.T) {

	winner := testUser("a", map[string]int{"ctf": 1500})
	loser := testUser("b", map[string]int{"ctf": 1500})
	store := newMemoryUserStore(winner, loser)
	engine, _ := newTestRatingEngine(t, store)

	err := engine.CalculateAfterMatch(&MatchResult{
		MatchID:      "m1",
		Variant:      "ctf",
		Teams:        [][]string{{winner.Id.Hex()}, {loser.Id.Hex()}},
		FirstTeamWon: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	//equal teams, K=32: winner gains 16, loser gives up 16
	if winner.Ratings["ctf"] != 1516 {
		t.Errorf("expected winner at 1516, got %d", winner.Ratings["ctf"])
	}
	if loser.Ratings["ctf"] != 1484 {
		t.Errorf("expected loser at 1484, got %d", loser.Ratings["ctf"])
	}
	if store.saves(winner) != 1 || store.saves(loser) != 1 {
		t.Error("both users should be persisted exactly once")
	}

}

func TestCalculateAfterMatchFavorsTheUnderdog(t *testing.T) {

	underdog := testUser("a", map[string]int{"ctf": 1400})
	favorite := testUser("b", map[string]int{"ctf": 1800})
	store := newMemoryUserStore(underdog, favorite)
	engine, _ := newTestRatingEngine(t, store)

	err := engine.CalculateAfterMatch(&MatchResult{
		MatchID:      "m2",
		Variant:      "ctf",
		Teams:        [][]string{{underdog.Id.Hex()}, {favorite.Id.Hex()}},
		FirstTeamWon: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	gain := underdog.Ratings["ctf"] - 1400
	loss := 1800 - favorite.Ratings["ctf"]

	if gain <= 16 {
		t.Errorf("an upset win should pay more than an even one, got +%d", gain)
	}
	if loss <= 0 {
		t.Errorf("the beaten favorite must lose points, got -%d", loss)
	}

}

func TestCalculateAfterMatchClampsToFloor(t *testing.T) {

	bottom := testUser("a", map[string]int{"ctf": RatingFloor + 2})
	rival := testUser("b", map[string]int{"ctf": RatingFloor + 20})
	store := newMemoryUserStore(bottom, rival)
	engine, _ := newTestRatingEngine(t, store)

	//a near-even loss costs ~16 points, far more than the 2 point headroom
	err := engine.CalculateAfterMatch(&MatchResult{
		MatchID:      "m3",
		Variant:      "ctf",
		Teams:        [][]string{{bottom.Id.Hex()}, {rival.Id.Hex()}},
		FirstTeamWon: false,
	})
	if err != nil {
		t.Fatal(err)
	}

	if bottom.Ratings["ctf"] != RatingFloor {
		t.Errorf("expected the rating pinned to the floor, got %d", bottom.Ratings["ctf"])
	}

}

func TestCalculateAfterMatchClampsToRoof(t *testing.T) {

	top := testUser("a", map[string]int{"ctf": RatingRoof - 2})
	rival := testUser("b", map[string]int{"ctf": RatingRoof - 10})
	store := newMemoryUserStore(top, rival)
	engine, _ := newTestRatingEngine(t, store)

	//a near-even win pays ~8 points, more than the 2 point headroom
	err := engine.CalculateAfterMatch(&MatchResult{
		MatchID:      "m8",
		Variant:      "ctf",
		Teams:        [][]string{{top.Id.Hex()}, {rival.Id.Hex()}},
		FirstTeamWon: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if top.Ratings["ctf"] != RatingRoof {
		t.Errorf("expected the rating pinned to the roof, got %d", top.Ratings["ctf"])
	}

}

func TestCalculateAfterMatchUsesBaseRatingForUnplayedVariant(t *testing.T) {

	fresh := testUser("a", map[string]int{})
	veteran := testUser("b", map[string]int{"ctf": 1500})
	store := newMemoryUserStore(fresh, veteran)
	engine, _ := newTestRatingEngine(t, store)

	err := engine.CalculateAfterMatch(&MatchResult{
		MatchID:      "m4",
		Variant:      "ctf",
		Teams:        [][]string{{fresh.Id.Hex()}, {veteran.Id.Hex()}},
		FirstTeamWon: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if fresh.Ratings["ctf"] != BaseRating+16 {
		t.Errorf("a fresh player counts as base rated, expected %d, got %d", BaseRating+16, fresh.Ratings["ctf"])
	}

}

func TestCalculateAfterMatchRosterValidation(t *testing.T) {

	u1 := testUser("a", map[string]int{"ctf": 1500})
	store := newMemoryUserStore(u1)
	engine, _ := newTestRatingEngine(t, store)

	err := engine.CalculateAfterMatch(&MatchResult{
		MatchID: "m5",
		Variant: "ctf",
		Teams:   [][]string{{u1.Id.Hex()}},
	})
	if err == nil {
		t.Error("expected an error for a single roster")
	}

	err = engine.CalculateAfterMatch(&MatchResult{
		MatchID: "m6",
		Variant: "ctf",
		Teams:   [][]string{{u1.Id.Hex()}, {"000000000000000000000000"}},
	})
	if err == nil {
		t.Error("expected an error for a roster without any known player")
	}

}

func TestRatingUpdateReachesConnectedSessions(t *testing.T) {

	winner := testUser("a", map[string]int{"ctf": 1500})
	loser := testUser("b", map[string]int{"ctf": 1500})
	store := newMemoryUserStore(winner, loser)
	engine, holder := newTestRatingEngine(t, store)

	_, s := authedClient(holder, winner)

	err := engine.CalculateAfterMatch(&MatchResult{
		MatchID:      "m7",
		Variant:      "ctf",
		Teams:        [][]string{{winner.Id.Hex()}, {loser.Id.Hex()}},
		FirstTeamWon: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(s.payloads()) != 1 {
		t.Fatalf("expected one profile push, got %d", len(s.payloads()))
	}

}
