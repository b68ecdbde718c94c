package setup

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"fedauction/internal/coordinator"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ConfigName is the optional config file, read from $HOME/.config as json.
const ConfigName = ".fedauction"

var defaultPrices = []uint64{2, 3, 1}

var defaults = map[string]any{
	"num_workers":        3,
	"num_rounds":         1,
	"num_evil":           0,
	"top_k":              0,
	"committee_size":     1,
	"stake":              "10000000000000000000",
	"model_uri":          "",
	"auction_rule":       "greedy",
	"auction_budget":     "0",
	"score_reducer":      "mean",
	"failure_policy":     string(coordinator.Isolate),
	"parallel":           true,
	"halt_on_mismatch":   false,
	"call_timeout":       "30s",
	"commit_timeout":     "2m",
	"ledger_url":         "",
	"ledger_max_retries": 5,
	"requester_key":      "//Requester",
	"ss58_network":       42,
	"seed":               1,
	"metrics_addr":       "",
	"discord_url":        "",
	"debug":              false,
	"ledger_addr":        ":8080",
}

type Env struct {
	NumWorkers    int
	NumEvil       int
	Rounds        uint64
	TopK          int
	CommitteeSize int
	Stake         decimal.Decimal
	ModelURI      string
	AuctionRule   string
	AuctionBudget decimal.Decimal
	Reducer       string
	FailurePolicy string
	Parallel      bool

	HaltOnMismatch bool
	CallTimeout    time.Duration
	CommitTimeout  time.Duration

	LedgerURL        string
	LedgerMaxRetries int
	LedgerAddr       string

	RequesterKey string
	WorkerKeys   []string
	WorkerPrices []uint64
	Network      uint16
	Seed         int64

	MetricsAddr string
	DiscordURL  string
	Debug       bool
}

// NewViper reads every key from the environment, upper cased, falling back
// to the config file and then the defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(ConfigName)
	v.SetConfigType("json")
	v.AddConfigPath("$HOME/.config")
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

// ReadConfigFile loads the config file into v. A missing file is not an error.
func ReadConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("fatal error config file: %w", err)
}

func LoadEnv(v *viper.Viper) (Env, error) {
	env := Env{
		NumWorkers:       v.GetInt("num_workers"),
		NumEvil:          v.GetInt("num_evil"),
		Rounds:           v.GetUint64("num_rounds"),
		TopK:             v.GetInt("top_k"),
		CommitteeSize:    v.GetInt("committee_size"),
		ModelURI:         v.GetString("model_uri"),
		AuctionRule:      v.GetString("auction_rule"),
		Reducer:          v.GetString("score_reducer"),
		FailurePolicy:    v.GetString("failure_policy"),
		Parallel:         v.GetBool("parallel"),
		HaltOnMismatch:   v.GetBool("halt_on_mismatch"),
		CallTimeout:      v.GetDuration("call_timeout"),
		CommitTimeout:    v.GetDuration("commit_timeout"),
		LedgerURL:        v.GetString("ledger_url"),
		LedgerMaxRetries: v.GetInt("ledger_max_retries"),
		LedgerAddr:       v.GetString("ledger_addr"),
		RequesterKey:     v.GetString("requester_key"),
		Network:          v.GetUint16("ss58_network"),
		Seed:             v.GetInt64("seed"),
		MetricsAddr:      v.GetString("metrics_addr"),
		DiscordURL:       v.GetString("discord_url"),
		Debug:            v.GetBool("debug"),
	}
	var err error
	if env.Stake, err = decimal.NewFromString(v.GetString("stake")); err != nil {
		return Env{}, fmt.Errorf("invalid STAKE: %w", err)
	}
	if env.AuctionBudget, err = decimal.NewFromString(v.GetString("auction_budget")); err != nil {
		return Env{}, fmt.Errorf("invalid AUCTION_BUDGET: %w", err)
	}
	if env.NumWorkers < coordinator.MinActiveWorkers {
		return Env{}, fmt.Errorf("NUM_WORKERS must be at least %d, got %d", coordinator.MinActiveWorkers, env.NumWorkers)
	}
	if env.NumEvil < 0 || env.NumEvil > env.NumWorkers {
		return Env{}, fmt.Errorf("NUM_EVIL must be within [0, %d], got %d", env.NumWorkers, env.NumEvil)
	}
	if env.LedgerMaxRetries < 0 {
		return Env{}, fmt.Errorf("LEDGER_MAX_RETRIES must not be negative")
	}

	env.WorkerKeys = make([]string, env.NumWorkers)
	env.WorkerPrices = make([]uint64, env.NumWorkers)
	// workers are numbered from 1 in the environment
	for i := 0; i < env.NumWorkers; i++ {
		n := i + 1
		env.WorkerKeys[i] = v.GetString(fmt.Sprintf("worker%d_key", n))
		if env.WorkerKeys[i] == "" {
			env.WorkerKeys[i] = fmt.Sprintf("//Worker%d", n)
		}
		price := v.GetString(fmt.Sprintf("worker%d_price", n))
		if price == "" {
			env.WorkerPrices[i] = defaultPrices[i%len(defaultPrices)]
			continue
		}
		p, err := strconv.ParseUint(price, 10, 64)
		if err != nil || p == 0 {
			return Env{}, fmt.Errorf("WORKER%d_PRICE must be a positive integer, got %q", n, price)
		}
		env.WorkerPrices[i] = p
	}
	return env, nil
}

// CoordinatorConfig maps the environment onto a coordinator configuration.
// Validation is left to the coordinator.
func (e Env) CoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		Rounds:         e.Rounds,
		TopK:           e.TopK,
		CommitteeSize:  e.CommitteeSize,
		Stake:          e.Stake,
		ModelURI:       e.ModelURI,
		AuctionRule:    e.AuctionRule,
		AuctionBudget:  e.AuctionBudget,
		Reducer:        e.Reducer,
		FailurePolicy:  coordinator.FailurePolicy(e.FailurePolicy),
		Parallel:       e.Parallel,
		HaltOnMismatch: e.HaltOnMismatch,
		CallTimeout:    e.CallTimeout,
		CommitTimeout:  e.CommitTimeout,
	}
}
