package test

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/mailclean/saas-backend/internal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	mongoPort = "27017/tcp"
	redisPort = "6379/tcp"
)

// StartMongoContainer starts a standalone MongoDB server. Use
// container.Endpoint(ctx, "mongodb") to get its connection string.
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{mongoPort},
				WaitingFor: wait.ForAll(
					wait.ForLog("Waiting for connections"),
					wait.ForListeningPort(nat.Port(mongoPort)),
				),
			},
			Started: true,
		})
}

// StartRedisContainer starts a Redis server and returns it together with
// its host:port address.
func StartRedisContainer(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{redisPort},
				WaitingFor:   wait.ForListeningPort(nat.Port(redisPort)),
			},
			Started: true,
		})
	if err != nil {
		return nil, "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", err
	}
	port, err := container.MappedPort(ctx, nat.Port(redisPort))
	if err != nil {
		return nil, "", err
	}
	return container, fmt.Sprintf("%s:%s", host, port.Port()), nil
}

// RandomDatabaseName returns a unique database name so every test package
// works on its own data.
func RandomDatabaseName() string {
	return "mailclean-test-" + internal.RandomHex(8)
}
