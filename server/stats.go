package server

import (
	"context"
	"github.com/prometheus/common/log"
	"go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

type Stats struct {
	prometheusExporter *prometheus.Exporter
	mSocketRequest     *stats.Int64Measure
	mSocketConnection  *stats.Int64Measure
	mGroupCreated      *stats.Int64Measure
	mGroupMerge        *stats.Int64Measure
	mLobbyCreated      *stats.Int64Measure
}

func NewStatsHolder() *Stats {

	mSocketRequest := stats.Int64("matchbroker/socket_requests", "Socket Request Count", "By")
	vSocketRequestSum := &view.View{
		Name:        "matchbroker/socket_requests_sum",
		Measure:     mSocketRequest,
		Description: "The number of total socket request",
		Aggregation: view.Sum(),
	}

	mSocketConnection := stats.Int64("matchbroker/socket_connection", "Socket Connection Count", "By")
	vSocketConnectionSum := &view.View{
		Name:        "matchbroker/socket_connection_sum",
		Measure:     mSocketConnection,
		Description: "The number of total socket connection",
		Aggregation: view.Sum(),
	}

	mGroupCreated := stats.Int64("matchbroker/matchmake_groups", "Matchmake Group Count", "By")
	vGroupCreatedSum := &view.View{
		Name:        "matchbroker/matchmake_groups_sum",
		Measure:     mGroupCreated,
		Description: "The number of matchmaking groups created",
		Aggregation: view.Sum(),
	}

	mGroupMerge := stats.Int64("matchbroker/matchmake_merges", "Matchmake Merge Count", "By")
	vGroupMergeSum := &view.View{
		Name:        "matchbroker/matchmake_merges_sum",
		Measure:     mGroupMerge,
		Description: "The number of matchmaking group merges",
		Aggregation: view.Sum(),
	}

	mLobbyCreated := stats.Int64("matchbroker/lobbies", "Matched Lobby Count", "By")
	vLobbyCreatedSum := &view.View{
		Name:        "matchbroker/lobbies_sum",
		Measure:     mLobbyCreated,
		Description: "The number of matched lobbies created",
		Aggregation: view.Sum(),
	}

	if err := view.Register(vSocketRequestSum, vSocketConnectionSum, vGroupCreatedSum, vGroupMergeSum, vLobbyCreatedSum); err != nil {
		log.Fatalln("Error while registering stat views")
	}

	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "matchbroker",
	})
	if err != nil {
		log.Fatalln("Error while creating new prometheus exporter")
	}

	view.RegisterExporter(pe)

	return &Stats{
		prometheusExporter: pe,
		mSocketRequest:     mSocketRequest,
		mSocketConnection:  mSocketConnection,
		mGroupCreated:      mGroupCreated,
		mGroupMerge:        mGroupMerge,
		mLobbyCreated:      mLobbyCreated,
	}

}

func (s Stats) IncrSocketRequest() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mSocketRequest.M(1))

}

func (s Stats) IncrSocketConnection() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mSocketConnection.M(1))

}

func (s Stats) DecrSocketConnection() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mSocketConnection.M(-1))

}

func (s Stats) IncrGroupCreated() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mGroupCreated.M(1))

}

func (s Stats) IncrGroupMerge() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mGroupMerge.M(1))

}

func (s Stats) IncrLobbyCreated() {

	ctx, _ := tag.New(context.Background())
	stats.Record(ctx, s.mLobbyCreated.M(1))

}
