package server

type Config struct {
	SocketConfig struct {
		PingPeriodTime                int `default:"8000"`
		PongWaitTime                  int `default:"10000"`
		WriteWaitTime                 int `default:"5000"`
		ReceivedMessageDecrementCount int `default:"20"`
		OutgoingQueueSize             int `default:"64"`
	}
	DBConfig struct {
		ConnString string `default:"mongo"`
		Name       string `default:"matchbroker"`
	}
	RedisConfig struct {
		ConnString string `default:"redis:6379"`
		PoolSize   int    `default:"10"`
	}
	RabbitMQConfig struct {
		ConnString  string
		ResultQueue string `default:"match-results"`
	}
	AuthConfig struct {
		JWTSecret string `default:"asdasdqweqasdqwwe"`
	}
	MatchmakerConfig struct {
		TeamPlayers      int `default:"5"`
		ScanInterval     int `default:"500"`
		RatingMarginStep int `default:"25"`
	}
	NotificationConfig struct {
		AppKey string
		AppID  string
	}
	Port               int    `default:"7350"`
	MaxRequestBodySize int64  `default:"4096"`
	DevelopmentEnabled bool   `default:"false"`
}
