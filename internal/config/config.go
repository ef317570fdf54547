// Package config loads the supervisor's environment-driven configuration
// (§4.4 initialize(), §6.2 file paths).
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full set of knobs the `start` subcommand reads before
// constructing Browser -> Detector -> Wrapper -> Monitor.
type Config struct {
	MaxConcurrent      int    `env:"TWITCASTREC_MAX_CONCURRENT" envDefault:"2"`
	PollIntervalSeconds int   `env:"TWITCASTREC_POLL_INTERVAL" envDefault:"30"`
	DataDir            string `env:"TWITCASTREC_DATA_DIR" envDefault:"./data"`
	TargetsPath        string `env:"TWITCASTREC_TARGETS_PATH" envDefault:"./data/targets.json"`
	ChromiumBinaryPath string `env:"TWITCASTREC_CHROMIUM_PATH"`
	YtdlpPath          string `env:"TWITCASTREC_YTDLP_PATH" envDefault:"yt-dlp"`
	StreamlinkPath     string `env:"TWITCASTREC_STREAMLINK_PATH" envDefault:"streamlink"`
	LoginURL           string `env:"TWITCASTREC_LOGIN_URL" envDefault:"https://twitcasting.tv/indexpagetoplogin.php"`
	AccountURL         string `env:"TWITCASTREC_ACCOUNT_URL" envDefault:"https://twitcasting.tv/accountsettings.php"`
	Quality            string `env:"TWITCASTREC_QUALITY" envDefault:"res,fps"`
	UserAgent          string `env:"TWITCASTREC_USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
	LogLevel           string `env:"TWITCASTREC_LOG_LEVEL" envDefault:"info"`
	LogJSON            bool   `env:"TWITCASTREC_LOG_JSON" envDefault:"true"`
	GCSBucket          string `env:"TWITCASTREC_GCS_BUCKET"`
}

// Load parses Config from the process environment, applying envDefault tags
// for any unset variable.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
