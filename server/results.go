package server

import (
	"context"
	"encoding/json"

	"github.com/kayalardanmehmet/redsync-radix"
	"github.com/mediocregopher/radix/v3"
	"github.com/streadway/amqp"
)

//ResultConsumer feeds completed session outcomes from the game servers into
//the rating engine. Game servers publish one JSON MatchResult per finished
//match onto the result queue; a per match redis lock keeps redelivered
//messages from being applied twice.
type ResultConsumer struct {
	isEnabled bool
	engine    *RatingEngine
	redis     radix.Client
	logger    *Logger
	context   context.Context
}

func NewResultConsumer(ctx context.Context, config *Config, engine *RatingEngine, redis radix.Client, logger *Logger) *ResultConsumer {

	consumer := &ResultConsumer{
		isEnabled: config.RabbitMQConfig.ConnString != "",
		engine:    engine,
		redis:     redis,
		logger:    logger,
		context:   ctx,
	}

	if !consumer.isEnabled {
		logger.Info("Match result consumer is disabled, no amqp connection string was configured")
		return consumer
	}

	conn, err := amqp.Dial(config.RabbitMQConfig.ConnString)
	if err != nil {
		logger.Fatalw("Error while trying to connect amqp server", "error", err)
	}

	subChan, err := conn.Channel()
	if err != nil {
		logger.Fatalw("Error while trying to open a channel over amqp connection", "error", err)
	}

	q, err := subChan.QueueDeclare(
		config.RabbitMQConfig.ResultQueue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to declare result queue", "error", err)
	}

	msgs, err := subChan.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatalw("Error while trying to create consumer on result queue", "error", err)
	}

	go func() {

		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				logger.Info("Exiting from match result consume routine")
				return
			case msg := <-msgs:
				if msg.ContentType != "application/json" {
					logger.Errorw("Unrecognized content type received on result queue", "content-type", msg.ContentType)
					continue
				}
				consumer.handleResult(msg.Body)
			}
		}

	}()

	return consumer

}

func (rc *ResultConsumer) handleResult(body []byte) {

	result := &MatchResult{}
	if err := json.Unmarshal(body, result); err != nil {
		rc.logger.Errorw("Error while unmarshal match result data", "error", err)
		return
	}

	//A result may be redelivered after a broker restart, the lock makes the
	//rating recalculation apply once per match
	rs := redsyncradix.New([]radix.Client{rc.redis})
	mutex := rs.NewMutex("lock|result|" + result.MatchID)
	if err := mutex.Lock(); err != nil {
		rc.logger.Errorw("Couldn't acquire result lock", "matchID", result.MatchID, "error", err)
	} else {
		defer mutex.Unlock()
	}

	if err := rc.engine.CalculateAfterMatch(result); err != nil {
		rc.logger.Errorw("Error while recalculating ratings for match", "matchID", result.MatchID, "error", err)
	}

}
