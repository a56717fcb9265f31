// Package test provides testing utilities for the mailclean backend,
// including test containers for MongoDB, Redis and the MailHog SMTP server.
package test

import (
	"context"
	"fmt"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// MailSMTPPort is the SMTP port used by the mail test container.
	MailSMTPPort = "1025"
	// MailAPIPort is the API port used by the mail test container.
	MailAPIPort = "8025"
)

// StartMailService starts a MailHog container for testing email functionality.
func StartMailService(ctx context.Context) (testcontainers.Container, error) {
	smtpPort := fmt.Sprintf("%s/tcp", MailSMTPPort)
	apiPort := fmt.Sprintf("%s/tcp", MailAPIPort)
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mailhog/mailhog",
				ExposedPorts: []string{smtpPort, apiPort},
				WaitingFor:   wait.ForListeningPort(nat.Port(smtpPort)),
			},
			Started: true,
		})
}

// MailEndpoints returns the host and the mapped SMTP and HTTP API ports of a
// container started with StartMailService.
func MailEndpoints(ctx context.Context, container testcontainers.Container) (host string, smtpPort, apiPort int, err error) {
	host, err = container.Host(ctx)
	if err != nil {
		return "", 0, 0, err
	}
	mappedSMTP, err := container.MappedPort(ctx, nat.Port(MailSMTPPort+"/tcp"))
	if err != nil {
		return "", 0, 0, err
	}
	mappedAPI, err := container.MappedPort(ctx, nat.Port(MailAPIPort+"/tcp"))
	if err != nil {
		return "", 0, 0, err
	}
	return host, mappedSMTP.Int(), mappedAPI.Int(), nil
}
