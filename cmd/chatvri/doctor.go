package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"chatvri/internal/channel"
	"chatvri/internal/config"
	"chatvri/internal/knowledge"
	"chatvri/internal/provider"
	"chatvri/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the installation",
		Long: `Verifies the configuration, knowledge snapshot, gateway, providers and
conversation store. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("ChatVRI Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists and validates.
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'chatvri init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, 1)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			// 2. Knowledge snapshot loads.
			if snap, err := knowledge.LoadSnapshot(cfg.Retrieval.SnapshotPath); err != nil {
				printFail("Knowledge snapshot", err.Error())
				failed++
			} else {
				printPass("Knowledge snapshot", fmt.Sprintf("%d documents, dim %d", len(snap.Docs), snap.Dim))
				passed++
			}

			// 3. WhatsApp gateway reachable and connected.
			gw := channel.NewGateway(channel.GatewayOptions{Config: cfg.Gateway, Logger: logger})
			if connected, err := gw.Status(ctx); err != nil {
				printFail("WhatsApp gateway", err.Error())
				failed++
			} else if !connected {
				printWarn("WhatsApp gateway", "reachable but session not connected (scan the QR)")
				warned++
			} else {
				printPass("WhatsApp gateway", cfg.Gateway.APIURL)
				passed++
			}

			// 4. Embedding endpoint answers.
			embedder := knowledge.NewOllamaEmbedder(knowledge.OllamaEmbedderConfig{
				APIBase: cfg.Retrieval.EmbedBase,
				Model:   cfg.Retrieval.EmbedModel,
				Logger:  logger,
			})
			if _, err := embedder.Embed(ctx, "prueba"); err != nil {
				printFail("Embeddings", err.Error())
				failed++
			} else {
				printPass("Embeddings", cfg.Retrieval.EmbedModel)
				passed++
			}

			// 5. Generation providers.
			factory := provider.NewFactory(cfg, logger)
			enabled := 0
			for name, pc := range cfg.Providers {
				if !pc.Enabled {
					continue
				}
				enabled++
				p, err := factory.Get(name)
				if err != nil {
					printFail("Provider: "+name, err.Error())
					failed++
					continue
				}
				if err := p.Healthy(ctx); err != nil {
					printWarn("Provider: "+name, err.Error())
					warned++
				} else {
					printPass("Provider: "+name, "healthy")
					passed++
				}
			}
			if enabled == 0 {
				printFail("Providers", "no providers enabled")
				failed++
			}

			// 6. Conversation store opens and pings.
			if st, err := store.Open(ctx, cfg.Store, logger); err != nil {
				printFail("Store", err.Error())
				failed++
			} else {
				if err := st.Ping(ctx); err != nil {
					printFail("Store", err.Error())
					failed++
				} else {
					printPass("Store", cfg.Store.Driver)
					passed++
				}
				st.Close()
			}

			// 7. Metrics port available when enabled.
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.Metrics.Addr)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before serving.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nChatVRI should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! ChatVRI is ready to serve.\n")
			}
			return nil
		},
	}
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
