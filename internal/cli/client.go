package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/capability"
	"github.com/hedeqiang/telreg/status"
	"github.com/hedeqiang/telreg/subscriber"
	"github.com/hedeqiang/telreg/transport"
	"github.com/hedeqiang/telreg/watcher"
)

func newNotifyCommand() *cobra.Command {
	var (
		req      transport.NotifyRequest
		asu      int
		value    bool
		service  string
		location map[string]int
	)

	cmd := &cobra.Command{
		Use:   "notify <field>",
		Short: "Report a state change to the registry",
		Long: `Report a state change to the registry. Fields:

  call_state              --state IDLE|RINGING|OFFHOOK [--number N]
  service_state           --service '{"state":0,"operatorNumeric":"310260"}'
  signal_strength         --asu N
  message_waiting         --value=true|false
  call_forwarding         --value=true|false
  data_activity           --activity NONE|IN|OUT|INOUT
  data_connection         --state DISCONNECTED|CONNECTING|CONNECTED|SUSPENDED
                          [--possible] [--reason R] [--apn A] [--iface I]
  data_connection_failed  --reason R
  cell_location           --cell lac=1,cid=2`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			names := status.AllMask.Names()
			return append(names, transport.DataConnectionFailed), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("asu") {
				req.ASU = &asu
			}
			if flags.Changed("value") {
				req.Value = &value
			}
			if service != "" {
				var ss status.ServiceState
				if err := json.Unmarshal([]byte(service), &ss); err != nil {
					return fmt.Errorf("invalid --service: %w", err)
				}
				req.ServiceState = &ss
			}
			if len(location) > 0 {
				req.CellLocation = status.CellLocation(location)
			}

			client := transport.NewHTTP(cfg.Server, cfg.Token)
			return client.Notify(cmd.Context(), args[0], req)
		},
	}

	cmd.Flags().StringVar(&req.State, "state", "", "Call or data connection state")
	cmd.Flags().StringVar(&req.IncomingNumber, "number", "", "Incoming number for call_state")
	cmd.Flags().IntVar(&asu, "asu", 0, "Signal strength in ASU")
	cmd.Flags().BoolVar(&value, "value", false, "Indicator value for message_waiting and call_forwarding")
	cmd.Flags().StringVar(&req.Activity, "activity", "", "Data activity direction")
	cmd.Flags().BoolVar(&req.Possible, "possible", false, "Whether a data connection is possible")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Reason for a data connection change or failure")
	cmd.Flags().StringVar(&req.APN, "apn", "", "Access point name")
	cmd.Flags().StringVar(&req.Iface, "iface", "", "Network interface name")
	cmd.Flags().StringVar(&service, "service", "", "Service state as JSON")
	cmd.Flags().StringToIntVar(&location, "cell", nil, "Cell location as key=value pairs")

	return cmd
}

func newWatchCommand() *cobra.Command {
	var (
		maskFlag string
		label    string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow state changes, reconnecting when the server goes away",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mask, err := status.ParseMask(maskFlag)
			if err != nil {
				return err
			}
			if mask.Empty() {
				return fmt.Errorf("--mask selects no field")
			}
			codec, err := transport.CodecByName(cfg.Codec)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			listener := subscriber.NewCallback(func(u subscriber.Update) {
				if err := printUpdate(out, u, asJSON); err != nil {
					log.Warnf("print: %v", err)
				}
			})
			defer listener.Close()

			wcfg := watcher.DefaultConfig(cfg.Server)
			wcfg.Options = transport.DialOptions{
				Mask:  mask,
				Label: label,
				Codec: codec,
				Token: cfg.Token,
			}
			w := watcher.New(wcfg, listener)
			w.OnConnect(func() { log.Infof("subscribed to %s mask=%s", cfg.Server, mask) })
			return w.Watch(ctx)
		},
	}

	cmd.Flags().StringVarP(&maskFlag, "mask", "m", "all", `Fields to follow ("all", "0x21" or "call_state,signal_strength")`)
	cmd.Flags().StringVar(&label, "label", "telreg-watch", "Label shown in dumps")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print updates as JSON lines")

	return cmd
}

// printUpdate writes one update as a line.
func printUpdate(w io.Writer, u subscriber.Update, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(transport.PushFrame(u))
	}
	_, err := fmt.Fprintf(w, "%s %s\n", u.Field, updateValue(u))
	return err
}

func updateValue(u subscriber.Update) string {
	switch u.Field {
	case status.ServiceStateField:
		return u.ServiceState.String()
	case status.SignalStrengthField:
		return fmt.Sprintf("asu=%d", u.SignalStrength)
	case status.MessageWaitingField, status.CallForwardingField:
		return fmt.Sprintf("%t", u.Indicator)
	case status.CellLocationField:
		return u.CellLocation.String()
	case status.CallStateField:
		if u.IncomingNumber != "" {
			return fmt.Sprintf("%s number=%s", u.CallState, u.IncomingNumber)
		}
		return u.CallState.String()
	case status.DataConnectionStateField:
		return u.DataState.String()
	case status.DataActivityField:
		return u.DataActivity.String()
	}
	return ""
}

func newDumpCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the last known state and the subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := transport.NewHTTP(cfg.Server, cfg.Token)
			out, err := client.Dump(cmd.Context(), format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text|json|yaml)")
	return cmd
}

func newStickyCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sticky <topic>",
		Short: "Print the last announcement of a topic",
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return broadcast.Topics(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client := transport.NewHTTP(cfg.Server, cfg.Token)
			a, err := client.Sticky(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printAnnouncement(cmd.OutOrStdout(), a.Topic, a.Fields, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text|json|yaml)")
	return cmd
}

func printAnnouncement(w io.Writer, topic string, fields map[string]any, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(fields)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(fields)
	case "text":
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if _, err := fmt.Fprintln(w, topic); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "  %s=%v\n", k, fields[k]); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown output %q", output)
}

func newHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to configure for a capability token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := capability.HashToken(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
			return err
		},
	}
}
