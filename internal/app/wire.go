package app

import (
	"context"
	"fmt"
	"log/slog"

	"perparb/internal/cache/redis"
	"perparb/internal/config"
	"perparb/internal/crypto"
	"perparb/internal/notify"
	rest "perparb/internal/platform/cex"
	rpc "perparb/internal/platform/chain"
	"perparb/internal/venue"
	cexvenue "perparb/internal/venue/cex"
	chainvenue "perparb/internal/venue/chain"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Venues. ChainVenue is venue A, CexVenue is venue B.
	ChainVenue venue.Venue
	CexVenue   venue.Venue

	// Lock is nil when Redis is not configured.
	Lock *redis.InstanceLock

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- On-chain venue ---
	privateKey, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Chain.PrivateKey,
		EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
		KeyPassword:      cfg.Chain.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load key: %w", err)
	}

	chainClient, err := rpc.NewClient(ctx, cfg.Chain.RpcURL, cfg.Chain.ContractAddress, privateKey, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain client: %w", err)
	}
	closers = append(closers, chainClient.Close)

	deps.ChainVenue = chainvenue.New(chainClient, chainvenue.Config{
		Symbols:            []string{cfg.Trading.Market},
		BookDepth:          uint8(cfg.Chain.BookDepth),
		CollateralDecimals: int32(cfg.Chain.CollateralDecimals),
		Risk:               venue.RiskConfig{NotionalBuffer: cfg.Chain.NotionalBuffer},
	})

	// --- Centralized exchange venue ---
	cexClient := rest.NewClient(cfg.Cex.BaseURL, cfg.Cex.ApiKey, cfg.Cex.ApiSecret, cfg.Cex.Subaccount)
	deps.CexVenue = cexvenue.New(cexClient, cexvenue.Config{
		Symbols:   []string{cfg.Trading.Market},
		BookDepth: cfg.Cex.BookDepth,
		Risk:      venue.RiskConfig{NotionalBuffer: cfg.Cex.NotionalBuffer},
	})

	// Establishing fetch on both venues so session PnL has a baseline before
	// the first cycle.
	if err := deps.ChainVenue.Init(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain venue init: %w", err)
	}
	if err := deps.CexVenue.Init(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: cex venue init: %w", err)
	}

	// --- Redis instance lock (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Lock = redis.NewInstanceLock(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
