package main

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	queuify "github.com/msamsami/queuify"
	"github.com/msamsami/queuify/disk"
	cfgpkg "github.com/msamsami/queuify/internal/config"
	logpkg "github.com/msamsami/queuify/pkg/log"
	qredis "github.com/msamsami/queuify/redis"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "queuify",
		Short: "Queuify CLI",
		Long:  "Queuify is a persistent multi-process FIFO queue. This CLI runs queue operations against a disk or Redis backend.",
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to JSON config file")
	flags.String("backend", "", "backend: disk or redis")
	flags.String("queue", "", "queue name")
	flags.Int("maxsize", 0, "capacity bound, 0 = unbounded")
	flags.String("path", "", "disk backend: queue file path")
	flags.String("redis-addr", "", "redis backend: address host:port")
	flags.Int("redis-db", 0, "redis backend: database number")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		putCmd(),
		getCmd(),
		sizeCmd(),
		taskDoneCmd(),
		joinCmd(),
		deleteCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openQueue builds a string queue from config file, env overlay, and flags,
// in that precedence order.
func openQueue(cmd *cobra.Command) (queuify.Queue[string], func(), error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend = v
	}
	if v, _ := cmd.Flags().GetString("queue"); v != "" {
		cfg.Queue = v
	}
	if cmd.Flags().Changed("maxsize") {
		cfg.MaxSize, _ = cmd.Flags().GetInt("maxsize")
	}
	if v, _ := cmd.Flags().GetString("path"); v != "" {
		cfg.Disk.Path = v
	}
	if v, _ := cmd.Flags().GetString("redis-addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if cmd.Flags().Changed("redis-db") {
		cfg.Redis.DB, _ = cmd.Flags().GetInt("redis-db")
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}

	level, err := logpkg.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(logpkg.WithLevel(level))

	switch cfg.Backend {
	case cfgpkg.BackendDisk:
		q, err := disk.Open(cfg.Disk.Path, cfg.Queue, queuify.StringCodec{}, disk.Options{
			MaxSize:      cfg.MaxSize,
			BusyTimeout:  time.Duration(cfg.Disk.BusyTimeoutMs) * time.Millisecond,
			PollInterval: time.Duration(cfg.Disk.PollIntervalMs) * time.Millisecond,
			Debounce:     time.Duration(cfg.Disk.DebounceMs) * time.Millisecond,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	case cfgpkg.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		q := qredis.New(client, cfg.Queue, queuify.StringCodec{}, qredis.Options{
			MaxSize: cfg.MaxSize,
			Logger:  logger,
		})
		return q, func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func runOp(cmd *cobra.Command, op func(ctx context.Context, q queuify.Queue[string]) error) error {
	q, closeQueue, err := openQueue(cmd)
	if err != nil {
		return err
	}
	defer closeQueue()
	return op(cmd.Context(), q)
}

func putCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <item>",
		Short: "Enqueue an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return runOp(cmd, func(ctx context.Context, q queuify.Queue[string]) error {
				return q.Put(ctx, args[0], timeout)
			})
		},
	}
	cmd.Flags().Duration("timeout", 0, "max wait for a free slot, 0 = wait forever")
	return cmd
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Dequeue the oldest item and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return runOp(cmd, func(ctx context.Context, q queuify.Queue[string]) error {
				item, err := q.Get(ctx, timeout)
				if err != nil {
					return err
				}
				fmt.Println(item)
				return nil
			})
		},
	}
	cmd.Flags().Duration("timeout", 0, "max wait for an item, 0 = wait forever")
	return cmd
}

func sizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "size",
		Short: "Print the approximate queue size",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(ctx context.Context, q queuify.Queue[string]) error {
				n, err := q.Size(ctx)
				if err != nil {
					return err
				}
				fmt.Println(n)
				return nil
			})
		},
	}
}

func taskDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task-done",
		Short: "Mark one dequeued item as processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(ctx context.Context, q queuify.Queue[string]) error {
				return q.TaskDone(ctx)
			})
		},
	}
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Block until all enqueued items have been processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(ctx context.Context, q queuify.Queue[string]) error {
				return q.Join(ctx)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove all durable state for the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(cmd, func(ctx context.Context, q queuify.Queue[string]) error {
				return q.Delete(ctx)
			})
		},
	}
}
