package main

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/agentuity/go-cache/cache"
	"github.com/agentuity/go-common/logger"
	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"
)

// cachectl is a small operational tool for inspecting and mutating the
// shared cache tier from the command line. It reads the same CACHE_*
// environment variables as the library; point CACHE_REDIS_URL at the
// deployment's redis to operate on live data.

var (
	namespace string
	ttl       time.Duration
)

func buildManager(cmd *cobra.Command) (*cache.Manager, error) {
	cfg, err := cache.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.NewConsoleLogger(logger.GetLevelFromEnv())
	return cache.New(cmd.Context(), cfg, log)
}

func itemOptions() []cache.ItemOption {
	var opts []cache.ItemOption
	if namespace != "" {
		opts = append(opts, cache.WithNamespace(namespace))
	}
	return opts
}

func main() {
	root := &cobra.Command{
		Use:           "cachectl",
		Short:         "Inspect and mutate the shared cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "key namespace")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch a key and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := buildManager(cmd)
			if err != nil {
				return err
			}
			defer mgr.Close()
			val, ok := mgr.Get(cmd.Context(), args[0], itemOptions()...)
			if !ok {
				return fmt.Errorf("miss: %s", args[0])
			}
			if data, isRaw := val.([]byte); isRaw {
				var decoded any
				if err := msgpack.Unmarshal(data, &decoded); err != nil {
					return err
				}
				val = decoded
			}
			out, err := json.MarshalIndent(val, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value (JSON accepted, plain string otherwise)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := buildManager(cmd)
			if err != nil {
				return err
			}
			defer mgr.Close()
			var value any = args[1]
			var decoded any
			if err := json.Unmarshal([]byte(args[1]), &decoded); err == nil {
				value = decoded
			}
			opts := itemOptions()
			if ttl > 0 {
				opts = append(opts, cache.WithTTL(ttl))
			}
			mgr.Set(cmd.Context(), args[0], value, opts...)
			return nil
		},
	}
	set.Flags().DurationVar(&ttl, "ttl", 0, "entry TTL (default: configured default)")

	del := &cobra.Command{
		Use:   "del <key>",
		Short: "Delete a key from both tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := buildManager(cmd)
			if err != nil {
				return err
			}
			defer mgr.Close()
			mgr.Delete(cmd.Context(), args[0], itemOptions()...)
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Flush the cache, or just one namespace with -n",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := buildManager(cmd)
			if err != nil {
				return err
			}
			defer mgr.Close()
			mgr.Clear(cmd.Context(), namespace)
			return nil
		},
	}

	invalidate := &cobra.Command{
		Use:   "invalidate <pattern>",
		Short: "Delete every key matching a regular expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			re, err := regexp.Compile(args[0])
			if err != nil {
				return err
			}
			mgr, err := buildManager(cmd)
			if err != nil {
				return err
			}
			defer mgr.Close()
			fmt.Printf("removed %d keys\n", mgr.InvalidatePattern(cmd.Context(), re))
			return nil
		},
	}

	root.AddCommand(get, set, del, clear, invalidate)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
