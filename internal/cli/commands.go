package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// BeanEndpoints lists the endpoints served by list, get, update and action.
var BeanEndpoints = []string{"executors", "httpclients", "interceptors", "listeners"}

var errNoValue = errors.New("no value")

func newIndexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "index",
		Aliases: []string{"endpoints"},
		Short:   "Show the available endpoints and their invocation stats",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			index, err := opts.client().Index(commandContext(cmd))
			if err != nil {
				return err
			}
			return f.Index(index)
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "list <endpoint>",
		Short:     "List every object managed by an endpoint",
		Example:   "  actuatorctl list executors",
		Args:      cobra.ExactArgs(1),
		ValidArgs: BeanEndpoints,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			beans, err := opts.client().List(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return f.Beans(beans)
		},
	}
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "get <endpoint> <name>",
		Short:   "Show one object",
		Example: "  actuatorctl get listeners orders",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			obj, err := opts.client().Get(commandContext(cmd), args[0], args[1])
			if err != nil {
				return err
			}
			return f.Object(obj)
		},
	}
}

func newUpdateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "update <endpoint> <name> key=value...",
		Short: "Patch the settings of one object",
		Long: `Patch the settings of one object. Only the given keys change. Repeat a key
to send a list value.`,
		Example: "  actuatorctl update executors pool maxPoolSize=16 keepAliveSeconds=30",
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			values, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			if err := opts.client().Update(commandContext(cmd), args[0], args[1], values); err != nil {
				return err
			}
			f.Done(fmt.Sprintf("updated %s/%s", args[0], args[1]))
			return nil
		},
	}
}

func newActionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "action <endpoint> [name] <action>",
		Short: "Run a lifecycle action on one object or on all of them",
		Example: `  actuatorctl action listeners orders restart
  actuatorctl action executors shutdown`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			endpoint, name, action := args[0], "", args[len(args)-1]
			target := endpoint
			if len(args) == 3 {
				name = args[1]
				target += "/" + name
			}
			if err := opts.client().Action(commandContext(cmd), endpoint, name, action); err != nil {
				return err
			}
			f.Done(fmt.Sprintf("%s %s", action, target))
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"configuration"},
		Short:   "Read and edit the layered configuration",
	}

	var operator string
	search := &cobra.Command{
		Use:   "search <pattern>",
		Short: "Print every key matching the pattern, layer by layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			out, err := opts.client().ConfigSearch(commandContext(cmd), args[0], operator)
			if err != nil {
				return err
			}
			return f.Text(out)
		},
	}
	search.Flags().StringVar(&operator, "operator", "contains", "equals, contains, startsWith or endsWith")

	var layer string
	put := &cobra.Command{
		Use:   "put <name> <value>",
		Short: "Set a key in the dynamic layer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if err := opts.client().ConfigPut(commandContext(cmd), layer, args[0], args[1]); err != nil {
				return err
			}
			f.Done(fmt.Sprintf("set %s in %s", args[0], layer))
			return nil
		},
	}
	put.Flags().StringVar(&layer, "layer", "dynamic", "layer to write")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "dump [layer]",
			Short: "Print the layers in precedence order",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := opts.formatter(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				var selector string
				if len(args) == 1 {
					selector = args[0]
				}
				out, err := opts.client().ConfigDump(commandContext(cmd), selector)
				if err != nil {
					return err
				}
				return f.Text(out)
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the effective value of a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, ok, err := opts.client().ConfigGet(commandContext(cmd), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w for %q", errNoValue, args[0])
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
				return err
			},
		},
		search,
		put,
		&cobra.Command{
			Use:   "delete <layer> [key]",
			Short: "Remove one key, or every key of a layer",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := opts.formatter(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				var key string
				if len(args) == 2 {
					key = args[1]
				}
				if err := opts.client().ConfigDelete(commandContext(cmd), args[0], key); err != nil {
					return err
				}
				f.Done("deleted " + strings.Join(args, "/"))
				return nil
			},
		},
		&cobra.Command{
			Use:       "action <action>",
			Short:     "Run refreshBeans or reload",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"refreshBeans", "reload"},
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := opts.formatter(cmd.OutOrStdout())
				if err != nil {
					return err
				}
				if err := opts.client().ConfigAction(commandContext(cmd), args[0]); err != nil {
					return err
				}
				f.Done(args[0] + " done")
				return nil
			},
		},
	)
	return cmd
}

// parseAssignments turns key=value arguments into form values.
func parseAssignments(args []string) (url.Values, error) {
	values := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: want key=value", arg)
		}
		values.Add(key, value)
	}
	return values, nil
}
