// Package main implements kvclient, a command line client for a bucketkv
// server. Each sub-command sends one request and prints the result.
//
// Example usage:
//
//	kvclient put user:1 alice
//	kvclient append user:1 ", admin"
//	kvclient multiget user:1 user:2
//	KVCLIENT_ADDR=10.0.0.5:7070 kvclient --codec json get user:1
//	kvclient gdpr-delete alice
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dreamware/bucketkv/internal/client"
	"github.com/dreamware/bucketkv/internal/protocol"
)

const envPrefix = "KVCLIENT"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Results go to out; errors are
// returned to the caller.
func newRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "kvclient",
		Short:         "Command line client for a bucketkv server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("addr", "127.0.0.1:7070", "server address (env KVCLIENT_ADDR)")
	flags.String("codec", "cbor", "wire codec: cbor, json or proto (env KVCLIENT_CODEC)")
	flags.Duration("timeout", client.DefaultTimeout, "per-request timeout (env KVCLIENT_TIMEOUT)")
	for _, name := range []string{"addr", "codec", "timeout"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	// run wraps a sub-command body with a client built from flags and env
	run := func(fn func(ctx context.Context, c *client.Client, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := newClient(v)
			if err != nil {
				return err
			}
			return fn(cmd.Context(), c, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value stored under key",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *client.Client, args []string) error {
				val, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, val)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "put <key> <value>",
			Short: "Store value under key, replacing any previous value",
			Args:  cobra.ExactArgs(2),
			RunE: run(func(ctx context.Context, c *client.Client, args []string) error {
				return c.Put(ctx, args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "append <key> <value>",
			Short: "Append value to key, creating it if absent",
			Args:  cobra.ExactArgs(2),
			RunE: run(func(ctx context.Context, c *client.Client, args []string) error {
				return c.Append(ctx, args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "delete <key>",
			Short: "Remove key and print the value it held",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *client.Client, args []string) error {
				val, err := c.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, val)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "multiget <key>...",
			Short: "Atomically read several keys, printing one value per line",
			Args:  cobra.MinimumNArgs(1),
			RunE: run(func(ctx context.Context, c *client.Client, args []string) error {
				vals, err := c.MultiGet(ctx, args)
				if err != nil {
					return err
				}
				for _, val := range vals {
					fmt.Fprintln(out, val)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "multiput <key> <value> [<key> <value>]...",
			Short: "Atomically store several key/value pairs",
			Args:  cobra.MinimumNArgs(2),
			RunE: run(func(ctx context.Context, c *client.Client, args []string) error {
				keys, values := splitPairs(args)
				return c.MultiPut(ctx, keys, values)
			}),
		},
		&cobra.Command{
			Use:   "gdpr-delete <user>",
			Short: "Delete every post listed under <user>_posts and empty the list",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(ctx context.Context, c *client.Client, args []string) error {
				return c.GDPRDelete(ctx, args[0])
			}),
		},
	)
	return root
}

// newClient builds a client from the bound flags and environment
func newClient(v *viper.Viper) (*client.Client, error) {
	codec, err := protocol.NewRegistry().Lookup(strings.ToLower(v.GetString("codec")))
	if err != nil {
		return nil, err
	}
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		return nil, errors.Newf("invalid timeout %s", timeout)
	}
	return client.New(v.GetString("addr"), codec, timeout), nil
}

// splitPairs separates alternating key/value arguments. An odd count leaves
// one more key than values; the server rejects the mismatch.
func splitPairs(args []string) (keys, values []string) {
	for i, a := range args {
		if i%2 == 0 {
			keys = append(keys, a)
		} else {
			values = append(values, a)
		}
	}
	return keys, values
}

// printError writes err to w, in red when w is a terminal
func printError(w io.Writer, err error) {
	msg := "error: " + err.Error()
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		msg = "\x1b[31m" + msg + "\x1b[0m"
	}
	fmt.Fprintln(w, msg)
}
