// TaskerChat is a WhatsApp support backend: webhook ingest, a menu bot with
// order tracking, agent handoff notes, and an encrypted flow endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/taskerhq/taskerchat/internal/api"
	"github.com/taskerhq/taskerchat/internal/bot"
	"github.com/taskerhq/taskerchat/internal/config"
	"github.com/taskerhq/taskerchat/internal/flowcrypto"
	"github.com/taskerhq/taskerchat/internal/messaging"
	"github.com/taskerhq/taskerchat/internal/session"
	"github.com/taskerhq/taskerchat/internal/store"
	"github.com/taskerhq/taskerchat/internal/util"
	"github.com/taskerhq/taskerchat/internal/webhook"
	"github.com/taskerhq/taskerchat/internal/whatsapp"
)

// Config collects everything read from the environment.
type Config struct {
	Addr          string
	DSN           string
	BusinessPath  string
	VerifyToken   string
	AppSecret     string
	AllowInsecure bool

	AccessToken   string
	PhoneNumberID string
	GraphBaseURL  string

	Provider        string
	TwilioSID       string
	TwilioAuthToken string
	TwilioFrom      string

	FlowKeyPath string
}

// Flags holds command line switches.
type Flags struct {
	genFlowKey bool
	uploadKey  bool
}

func loadConfig() Config {
	return Config{
		Addr:          util.GetEnv("LISTEN_ADDR", api.DefaultAddr),
		DSN:           util.GetEnv("DATABASE_DSN", "taskerchat.db"),
		BusinessPath:  os.Getenv("BUSINESS_CONFIG"),
		VerifyToken:   os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		AppSecret:     os.Getenv("WEBHOOK_APP_SECRET"),
		AllowInsecure: util.ParseBoolEnv("WEBHOOK_ALLOW_INSECURE", false),

		AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		GraphBaseURL:  os.Getenv("GRAPH_BASE_URL"),

		Provider:        util.GetEnv("MESSAGING_PROVIDER", "cloud"),
		TwilioSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:      os.Getenv("TWILIO_WHATSAPP_FROM"),

		FlowKeyPath: os.Getenv("FLOW_PRIVATE_KEY_PATH"),
	}
}

func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func main() {
	if err := godotenv.Load(); err != nil {
		// .env is optional; real deployments set the environment directly.
		slog.Debug("No .env file loaded", "error", err)
	}
	initializeLogger()

	var flags Flags
	flag.BoolVar(&flags.genFlowKey, "generate-flow-key", false, "generate a flow RSA keypair, print the public key and exit")
	flag.BoolVar(&flags.uploadKey, "upload-flow-key", false, "upload the flow public key to the business encryption endpoint and exit")
	flag.Parse()

	cfg := loadConfig()

	if flags.genFlowKey {
		if err := runGenerateFlowKey(cfg); err != nil {
			slog.Error("Key generation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, flags); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func runGenerateFlowKey(cfg Config) error {
	path := cfg.FlowKeyPath
	if path == "" {
		path = "flow_private.pem"
	}
	pubPEM, err := flowcrypto.GenerateKeyPair(path)
	if err != nil {
		return err
	}
	slog.Info("Flow keypair generated", "private_key", path)
	fmt.Print(pubPEM)
	return nil
}

func run(cfg Config, flags Flags) error {
	business, err := config.Load(cfg.BusinessPath)
	if err != nil {
		return fmt.Errorf("failed to load business config: %w", err)
	}

	st, err := buildStore(cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var client *whatsapp.Client
	if cfg.AccessToken != "" && cfg.PhoneNumberID != "" {
		clientOpts := []whatsapp.Option{
			whatsapp.WithAccessToken(cfg.AccessToken),
			whatsapp.WithPhoneNumberID(cfg.PhoneNumberID),
		}
		if cfg.GraphBaseURL != "" {
			clientOpts = append(clientOpts, whatsapp.WithBaseURL(cfg.GraphBaseURL))
		}
		client, err = whatsapp.NewClient(clientOpts...)
		if err != nil {
			return fmt.Errorf("failed to build whatsapp client: %w", err)
		}
	}

	if flags.uploadKey {
		return uploadFlowKey(cfg, client)
	}

	sender, err := buildSender(cfg, client, st)
	if err != nil {
		return err
	}

	sessions := session.NewMemoryStore()
	chatBot := bot.New(business, sessions, st)
	processor := webhook.NewProcessor(st, chatBot, sender)

	serverOpts := []api.Option{
		api.WithAddr(cfg.Addr),
		api.WithVerifyToken(cfg.VerifyToken),
		api.WithAppSecret(cfg.AppSecret),
		api.WithAllowInsecure(cfg.AllowInsecure),
	}
	if cfg.FlowKeyPath != "" {
		key, err := flowcrypto.LoadPrivateKey(cfg.FlowKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load flow key: %w", err)
		}
		serverOpts = append(serverOpts, api.WithFlowKey(key))
		slog.Info("Flow endpoint enabled", "key_path", cfg.FlowKeyPath)
	}

	server, err := api.NewServer(st, processor, serverOpts...)
	if err != nil {
		return err
	}

	slog.Info("TaskerChat starting",
		"addr", cfg.Addr,
		"store", store.DetectDSNType(cfg.DSN),
		"provider", cfg.Provider,
		"company", business.CompanyName)
	return server.Run()
}

func buildStore(dsn string) (store.Store, error) {
	switch store.DetectDSNType(dsn) {
	case "postgres":
		st, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

func buildSender(cfg Config, client *whatsapp.Client, st store.Store) (messaging.Service, error) {
	switch cfg.Provider {
	case "twilio":
		svc, err := messaging.NewTwilioService(cfg.TwilioSID, cfg.TwilioAuthToken, cfg.TwilioFrom, st)
		if err != nil {
			return nil, fmt.Errorf("failed to build twilio service: %w", err)
		}
		return svc, nil
	case "cloud":
		if client == nil {
			return nil, fmt.Errorf("cloud provider requires WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID")
		}
		return messaging.NewCloudService(client, st), nil
	default:
		return nil, fmt.Errorf("unknown messaging provider %q", cfg.Provider)
	}
}

func uploadFlowKey(cfg Config, client *whatsapp.Client) error {
	if client == nil {
		return fmt.Errorf("key upload requires WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID")
	}
	if cfg.FlowKeyPath == "" {
		return fmt.Errorf("key upload requires FLOW_PRIVATE_KEY_PATH")
	}
	key, err := flowcrypto.LoadPrivateKey(cfg.FlowKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load flow key: %w", err)
	}
	pubPEM, err := flowcrypto.PublicKeyPEM(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return client.UploadBusinessPublicKey(ctx, pubPEM)
}
