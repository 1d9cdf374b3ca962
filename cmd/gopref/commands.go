package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/davidroman0O/gopref"
)

func newKeysCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List keys, least recently modified first",
		Args:  cobra.NoArgs,
		RunE: o.withSession(func(cmd *cobra.Command, s *session, _ []string) error {
			keys, err := s.prefs.Keys()
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		}),
	}
}

func newDumpCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every entry with its stored value as JSON",
		Args:  cobra.NoArgs,
		RunE: o.withSession(func(cmd *cobra.Command, s *session, _ []string) error {
			all, err := s.prefs.KeyValues()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}),
	}
}

func newCountCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of keys",
		Args:  cobra.NoArgs,
		RunE: o.withSession(func(cmd *cobra.Command, s *session, _ []string) error {
			n, err := s.prefs.Count()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		}),
	}
}

func newGetCmd(o *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: o.withSession(func(cmd *cobra.Command, s *session, args []string) error {
			v, err := readValue(s.prefs, args[0], kind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), format(v))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", kindString, "Value kind")
	return cmd
}

func newPutCmd(o *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Store a value",
		Long: `Stores a value under a key. --kind selects how the value is parsed:
bool, int32, int64, float32, float64, string, strings (comma separated) or
json (an object).`,
		Args: cobra.ExactArgs(2),
		RunE: o.withSession(func(cmd *cobra.Command, s *session, args []string) error {
			v, err := parseValue(kind, args[1])
			if err != nil {
				return err
			}
			return s.prefs.Put(args[0], v)
		}),
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", kindString, "Value kind")
	return cmd
}

func newClearCmd(o *options) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear [keys...]",
		Short: "Remove keys, or every key with --all",
		RunE: o.withSession(func(cmd *cobra.Command, s *session, args []string) error {
			if len(args) == 0 && !all {
				return errors.New("no keys given; use --all to remove every key")
			}
			if len(args) > 0 && all {
				return errors.New("--all takes no keys")
			}
			return s.prefs.Clear(args...)
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every key")
	return cmd
}

func newWatchCmd(o *options) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "watch [key]",
		Short: "Follow changed keys, or the value of one key",
		Long: `Without a key, prints every changed key as it changes. With a key, prints
its current value and then every new value. Stops on interrupt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: o.withSession(func(cmd *cobra.Command, s *session, args []string) error {
			out := cmd.OutOrStdout()

			var sub *gopref.Subscription
			if len(args) == 0 {
				sub = s.prefs.WatchKeys(func(key string) {
					if key == gopref.BulkKey {
						key = "(all)"
					}
					fmt.Fprintln(out, key)
				})
			} else {
				var err error
				sub, err = watchValue(s.prefs, args[0], kind, func(v any, err error) {
					if err != nil {
						s.logger.Sugar().Warnf("Failed to read %s: %v", args[0], err)
						return
					}
					fmt.Fprintln(out, format(v))
				})
				if err != nil {
					return err
				}
			}
			defer sub.Cancel()

			<-cmd.Context().Done()
			return nil
		}),
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", kindString, "Value kind")
	return cmd
}
