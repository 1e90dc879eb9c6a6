package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"profession-sync/broker"
	"profession-sync/config"
)

const defaultViewLimit = 10

func main() {
	cfg := config.LoadDLQ()

	rootCmd := &cobra.Command{
		Use:           "dlq",
		Short:         "Inspect dead letter topics",
		SilenceUsage:  false,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dead letter topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			topics, err := broker.ListDLQTopics(ctx, cfg.Brokers)
			if err != nil {
				return err
			}
			if len(topics) == 0 {
				fmt.Println("no dlq topics found")
				return nil
			}
			for _, t := range topics {
				fmt.Println(t)
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "view <topic> [limit]",
		Short: "Print parked messages from the start of a dead letter topic",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := broker.TopicFor(args[0])
			limit := defaultViewLimit
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid limit %q", args[1])
				}
				limit = n
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			records, err := broker.ViewMessages(ctx, cfg.Brokers, topic, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("no messages on %s\n", topic)
				return nil
			}
			for _, rec := range records {
				printRecord(rec)
			}
			return nil
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "monitor",
		Short: "Tail new arrivals on every dead letter topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			fmt.Println("monitoring dead letter topics, ctrl-c to stop")
			return broker.Monitor(ctx, cfg.Brokers, func(rec broker.DLQRecord) {
				printRecord(rec)
			})
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printRecord(rec broker.DLQRecord) {
	m := rec.Message
	fmt.Printf("%s partition=%d offset=%d\n", rec.Topic, rec.Partition, rec.Offset)
	fmt.Printf("  time:   %s\n", m.Timestamp.Format(time.RFC3339))
	fmt.Printf("  key:    %s\n", m.OriginalKey)
	fmt.Printf("  error:  %s\n", m.ErrorMessage)
	if len(m.Metadata) > 0 {
		pairs := make([]string, 0, len(m.Metadata))
		for k, v := range m.Metadata {
			pairs = append(pairs, k+"="+v)
		}
		fmt.Printf("  meta:   %s\n", strings.Join(pairs, " "))
	}
	fmt.Printf("  payload: %s\n", string(m.Payload))
}
