package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ziher12/bitcio-trading/api"
	"github.com/ziher12/bitcio-trading/internal/config"
	"github.com/ziher12/bitcio-trading/pkg/bitcio"
	"github.com/ziher12/bitcio-trading/pkg/risk"
	"github.com/ziher12/bitcio-trading/pkg/trader"
)

var (
	cfgFile   string
	autoScalp bool
	logger    *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bitcio-trader",
		Short: "Cryptocurrency scalping bot for the Bitcio exchange",
		Long:  `A risk-gated scalping bot: it turns market prices and trade history into buy/sell decisions, sizes orders against account and risk limits, and tracks realized profit`,
		Run:   runTrader,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&autoScalp, "auto", false, "start the autonomous scalp loop")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runTrader(cmd *cobra.Command, args []string) {
	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Local credentials, if present
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth, err := buildAuthenticator(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build authenticator")
	}

	client := bitcio.NewRESTClient(cfg.Exchange.RESTURL, auth)

	riskManager, err := risk.NewManager(ctx, client, risk.Limits{
		MaxPositionFraction: cfg.Risk.MaxPositionFraction,
		MinSpread:           cfg.Risk.MinSpread,
		MaxLossFraction:     cfg.Risk.MaxLossFraction,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize risk manager")
	}

	scalper := trader.NewScalper(client, riskManager, logger)

	// Streaming price feed; its staleness is independent of the scalp loop's
	// own polling.
	feed := bitcio.NewFeed(
		cfg.Exchange.WebSocket.URL,
		auth,
		time.Duration(cfg.Exchange.WebSocket.ReconnectDelay)*time.Second,
		cfg.Exchange.WebSocket.MaxReconnects,
		logger,
	)
	go feed.Run(ctx, []string{cfg.Trading.Symbol})
	go consumeFeed(feed, logger)

	if autoScalp {
		go func() {
			duration := time.Duration(cfg.Trading.ScalpDuration) * time.Second
			if err := scalper.AutoScalp(ctx, cfg.Trading.Symbol, cfg.Trading.BaseQuantity, duration); err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Error("Auto-scalp loop failed")
				}
				return
			}
			logger.WithField("profit", scalper.CalculateProfit()).Info("Auto-scalp completed")
		}()
	}

	apiServer := api.NewServer(scalper, logger, fmt.Sprintf("%d", cfg.Server.Port), cfg.Trading.Symbol)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Bitcio trader is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	cancel()

	logger.WithField("realized_profit", scalper.CalculateProfit()).Info("Bitcio trader stopped")
}

func buildAuthenticator(cfg *config.Config) (bitcio.Authenticator, error) {
	switch bitcio.AuthType(cfg.Exchange.AuthType) {
	case bitcio.AuthTypeJWT:
		return bitcio.NewJWTAuthenticator(cfg.Exchange.APIKeyName, cfg.Exchange.PrivateKeyPEM)
	case bitcio.AuthTypeLegacy, "":
		return bitcio.NewLegacyAuthenticator(cfg.Exchange.APIKey, cfg.Exchange.APISecret), nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Exchange.AuthType)
	}
}

func consumeFeed(feed *bitcio.Feed, logger *logrus.Logger) {
	for event := range feed.Events() {
		switch event.Type {
		case bitcio.FeedEventTicker:
			logger.WithFields(logrus.Fields{
				"symbol": event.Ticker.Symbol,
				"bid":    event.Ticker.BidPrice,
				"ask":    event.Ticker.AskPrice,
				"last":   event.Ticker.LastPrice,
			}).Debug("Ticker")
		case bitcio.FeedEventTrade:
			logger.WithFields(logrus.Fields{
				"symbol": event.Trade.Symbol,
				"price":  event.Trade.Price,
				"size":   event.Trade.Size,
			}).Debug("Trade")
		}
	}
}
