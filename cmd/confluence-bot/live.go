package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/confluence-bot/internal/bot"
)

func newLiveCmd(root *rootOptions) *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Trade on Bybit",
		Long: `Run the engine against Bybit until interrupted. Demo trading is the
default; pass --live to send orders to the real account.

Send SIGUSR1 to clear a manual drawdown halt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if live {
				cfg.Exchange.Demo = false
				cfg.Exchange.Testnet = false
			}

			log, err := root.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			b, err := bot.NewLiveBot(cfg, log)
			if err != nil {
				return fmt.Errorf("failed to create bot: %w", err)
			}

			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go watchResume(ctx, b)

			if err := b.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("bot stopped: %w", err)
			}
			fmt.Println("👋 Bot stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Trade the real account instead of demo")
	return cmd
}

// watchResume clears a manual drawdown halt on every SIGUSR1
func watchResume(ctx context.Context, b *bot.LiveBot) {
	sigs := make(chan os.Signal, 1)
	ossignal.Notify(sigs, syscall.SIGUSR1)
	defer ossignal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
			if err := b.Resume(ctx); err != nil {
				fmt.Printf("⚠️ Resume failed: %v\n", err)
				continue
			}
			fmt.Println("▶️ Trading resumed")
		}
	}
}
