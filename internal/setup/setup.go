package setup

import (
	"errors"
	"fmt"
	"os"

	"fedauction/internal/discord"

	"github.com/joho/godotenv"
	"github.com/manifold-inc/manifold-sdk/lib/utils"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Dependencies struct {
	Log   *zap.SugaredLogger
	Env   Env
	Mongo *mongo.Client
}

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetEnvOrPanic(key string, logger *zap.SugaredLogger) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	logger.Panicf("Could not find env key [%s]", key)
	return ""
}

// NewLogger builds the production logger, or the development one when debug
// is set. level overrides the configured level when non nil.
func NewLogger(debug bool, level *zapcore.Level) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Sampling = nil
	if level != nil {
		cfg.Level.SetLevel(*level)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to get logger")
	}
	return logger.Sugar()
}

// DiscordHook posts every error level entry to the webhook at url.
func DiscordHook(url, username string) func(zapcore.Entry) error {
	return func(e zapcore.Entry) error {
		if e.Level != zap.ErrorLevel || url == "" {
			return nil
		}
		go func() {
			color := "15548997"
			title := "Coordinator Error"
			desc := fmt.Sprintf("%s\n\n%s", e.Message, e.Stack)
			msg := discord.Message{
				Username: &username,
				Embeds: &[]discord.Embed{{
					Title:       &title,
					Description: &desc,
					Color:       &color,
				}},
			}
			_ = discord.SendDiscordMessage(url, msg)
		}()
		return nil
	}
}

// Init loads .env and the optional config file, builds the logger and
// connects to mongo when credentials are present. An optional zapcore.Level
// overrides the log level.
func Init(opts ...any) *Dependencies {
	var level *zapcore.Level
	if len(opts) != 0 {
		l := opts[0].(zapcore.Level)
		level = &l
	}
	sugar := NewLogger(false, level)

	// Env Variables
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		sugar.Fatalw("Error loading .env file", "error", err)
	}
	v := NewViper()
	if err := ReadConfigFile(v); err != nil {
		sugar.Fatalw("Error reading config file", "error", err)
	}
	env, err := LoadEnv(v)
	if err != nil {
		sugar.Fatalw("Invalid configuration", "error", err)
	}
	if env.Debug {
		sugar = NewLogger(true, level)
	}
	sugar = sugar.WithOptions(zap.Hooks(DiscordHook(env.DiscordURL, "Coordinator Logs")))

	mongoClient, err := InitMongo()
	switch {
	case errors.Is(err, ErrNoMongo):
		sugar.Infow("Mongo credentials not set, round archive disabled")
	case err != nil:
		sugar.Fatal(utils.Wrap("failed connecting to mongo error", err))
	}

	return &Dependencies{
		Log:   sugar,
		Env:   env,
		Mongo: mongoClient,
	}
}
