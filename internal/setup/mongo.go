package setup

import (
	"errors"
	"fmt"

	"github.com/manifold-inc/manifold-sdk/lib/utils"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var ErrNoMongo = errors.New("no mongo env keys found")

func InitMongo() (*mongo.Client, error) {
	MongoUsername := GetEnv("MONGO_USERNAME", "")
	MongoPassword := GetEnv("MONGO_PASSWORD", "")
	MongoHost := GetEnv("MONGO_HOST", "mongo")
	if MongoUsername == "" || MongoPassword == "" {
		return nil, ErrNoMongo
	}
	clientOpts := options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s@%s:27017/fedauction?authSource=admin&authMechanism=SCRAM-SHA-256", MongoUsername, MongoPassword, MongoHost))

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, utils.Wrap("failed connecting to mongo", err)
	}
	return client, nil
}
