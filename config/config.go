package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// a missing .env is fine, the environment may already be populated
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("socket_url", "SOCKET_URL")
		viper.BindEnv("socket_api_key", "SOCKET_API_KEY")
		viper.BindEnv("feed_reconnect_max", "FEED_RECONNECT_MAX")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("pending_path", "PENDING_PATH")
		viper.BindEnv("pending_ttl", "PENDING_TTL")
		viper.BindEnv("token_info_url", "TOKEN_INFO_URL")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("log_level", "LOG_LEVEL")
		viper.BindEnv("lang", "LANG")

		viper.SetDefault("feed_reconnect_max", 10*time.Second)
		viper.SetDefault("db_path", "subscriptions.db")
		viper.SetDefault("pending_path", ":memory:")
		viper.SetDefault("pending_ttl", 15*time.Minute)
		viper.SetDefault("token_info_url", "https://data.pumpmod.live/coin/")
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
