package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	root "github.com/mailclean/saas-backend"
	"github.com/mailclean/saas-backend/api"
	"github.com/mailclean/saas-backend/auth"
	"github.com/mailclean/saas-backend/db"
	"github.com/mailclean/saas-backend/notifications"
	"github.com/mailclean/saas-backend/notifications/mailtemplates"
	"github.com/mailclean/saas-backend/notifications/smtp"
	"github.com/mailclean/saas-backend/stripe"
	"github.com/mailclean/saas-backend/subscriptions"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

func main() {
	// a missing .env file is fine, the environment and the flags still apply
	_ = godotenv.Load()
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.String("mongo-url", "", "The URL of the MongoDB server")
	flag.String("mongo-db", "mailclean", "The name of the MongoDB database")
	flag.String("redis-url", "", "The URL of the Redis server shared by the instances, optional")
	flag.String("web-app-url", "http://localhost:5173", "The URL of the web application")
	flag.String("pages-url", "", "The URL of the server of the web application pages, optional")
	flag.Bool("secure-cookies", false, "Send the session cookie only over HTTPS")
	// auth provider
	flag.String("auth-url", "", "The URL of the auth provider")
	flag.String("auth-anon-key", "", "The public API key of the auth provider")
	flag.String("auth-jwt-secret", "", "The secret the auth provider signs the access tokens with")
	// billing
	flag.String("stripe-api-secret", "", "Stripe API secret")
	flag.String("stripe-webhook-secret", "", "Stripe Webhook secret")
	flag.String("stripe-pro-price-id", "", "Stripe price of the pro plan")
	flag.String("stripe-enterprise-price-id", "", "Stripe price of the enterprise plan")
	// notifications
	flag.String("smtp-server", "", "SMTP server")
	flag.Int("smtp-port", 587, "SMTP port")
	flag.String("smtp-username", "", "SMTP username")
	flag.String("smtp-password", "", "SMTP password")
	flag.String("smtp-email", "", "Email address used to send the notifications")
	flag.String("smtp-name", "MailClean Brasil", "Name used to send the notifications")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("MAILCLEAN")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	log.Init(viper.GetString("log-level"), "stdout", nil)
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	webAppURL := viper.GetString("web-app-url")
	jwtSecret := viper.GetString("auth-jwt-secret")
	if jwtSecret == "" {
		log.Fatal("auth-jwt-secret is required")
	}
	// initialize the MongoDB database
	database, err := db.New(viper.GetString("mongo-url"), viper.GetString("mongo-db"))
	if err != nil {
		log.Fatalf("could not create the MongoDB database: %v", err)
	}
	defer database.Close()

	plans := subscriptions.New(&subscriptions.Config{
		DB:                database,
		ProPriceID:        viper.GetString("stripe-pro-price-id"),
		EnterprisePriceID: viper.GetString("stripe-enterprise-price-id"),
	})

	// the mail service is optional, billing notifications are skipped
	// without it
	var mailService notifications.NotificationService
	if smtpServer := viper.GetString("smtp-server"); smtpServer != "" {
		if err := mailtemplates.Load(root.Assets, "assets/mail"); err != nil {
			log.Fatalf("could not load the mail templates: %v", err)
		}
		mailService = new(smtp.Email)
		if err := mailService.New(&smtp.Config{
			FromName:     viper.GetString("smtp-name"),
			FromAddress:  viper.GetString("smtp-email"),
			SMTPServer:   smtpServer,
			SMTPPort:     viper.GetInt("smtp-port"),
			SMTPUsername: viper.GetString("smtp-username"),
			SMTPPassword: viper.GetString("smtp-password"),
		}); err != nil {
			log.Fatalf("could not create the email service: %v", err)
		}
		log.Infow("email service created", "from", viper.GetString("smtp-email"))
	}

	// processed webhook events are kept in the database, or in redis when
	// it is configured
	var events stripe.EventStore = stripe.NewMongoEventStore(database)
	if redisURL := viper.GetString("redis-url"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("invalid redis URL: %v", err)
		}
		rdb := redis.NewClient(opts)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("could not connect to redis: %v", err)
		}
		cancel()
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warnw("failed to close redis client", "error", err)
			}
		}()
		events = stripe.NewRedisEventStore(rdb, stripe.DefaultEventTTL)
		log.Infow("webhook events shared through redis", "addr", opts.Addr)
	}

	stripeConf := &stripe.Config{
		APIKey:        viper.GetString("stripe-api-secret"),
		WebhookSecret: viper.GetString("stripe-webhook-secret"),
	}
	if !stripeConf.Enabled() {
		log.Warnw("stripe API secret not set, checkouts will fail")
	}
	stripeService, err := stripe.NewService(&stripe.ServiceConfig{
		Client:        stripe.NewClient(stripeConf),
		DB:            database,
		Subscriptions: plans,
		Events:        events,
		Mail:          mailService,
		WebAppURL:     webAppURL,
	})
	if err != nil {
		log.Fatalf("could not create the stripe service: %v", err)
	}
	defer stripeService.Close()

	authService := auth.New(&auth.Config{
		URL:     viper.GetString("auth-url"),
		AnonKey: viper.GetString("auth-anon-key"),
	}, database)
	if !authService.Configured() {
		log.Warnw("auth provider not configured, sign in and sign up will fail")
	}

	// create the local API server
	server, err := api.New(&api.Config{
		Host:          host,
		Port:          port,
		JWTSecret:     jwtSecret,
		DB:            database,
		Auth:          authService,
		Stripe:        stripeService,
		Subscriptions: plans,
		WebAppURL:     webAppURL,
		PagesURL:      viper.GetString("pages-url"),
		SecureCookies: viper.GetBool("secure-cookies"),
	})
	if err != nil {
		log.Fatalf("could not create the API: %v", err)
	}
	server.Start()
	// wait forever, as the server is running in a goroutine
	log.Infow("server started", "host", host, "port", port)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
