package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/kl130d/internal/app"
	"github.com/dokzlo13/kl130d/internal/bulb"
	"github.com/dokzlo13/kl130d/internal/color"
	"github.com/dokzlo13/kl130d/internal/dispatch"
	"github.com/dokzlo13/kl130d/internal/logging"
	luart "github.com/dokzlo13/kl130d/internal/lua"
	"github.com/dokzlo13/kl130d/internal/storage"
)

const usageText = `Usage: kl130 -ip ADDR [flags] COMMAND

Commands:
  on                 switch the bulb on
  off                switch the bulb off
  exact R G B        set the color from 0..255 channels
  exact #RRGGBB      set the color from a hex string
  update             query the bulb and print its power state
  shell              interactive prompt accepting the commands above
  run FILE           run a Lua script; the bulb is bulb.names()[1]

Flags:
`

func main() {
	ip := flag.String("ip", "", "Bulb IPv4 address (required)")
	port := flag.Int("port", bulb.DefaultPort, "Bulb UDP control port")
	timeout := flag.Duration("timeout", bulb.DefaultTimeout, "How long update waits for a reply")
	verbose := flag.Bool("v", false, "Log every exchange")
	jsonLogs := flag.Bool("json", false, "Log as JSON")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usageText)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logging.Setup(level, *jsonLogs, true)

	if *ip == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	d, err := newDispatcher(*ip, *port, bulb.WithTimeout(*timeout))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bulb client")
	}

	if err := execute(app.SignalContext(), d, *ip, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "kl130:", err)
		os.Exit(exitCode(err))
	}
}

// newDispatcher registers a single bulb named after its address, backed by
// in-memory metrics.
func newDispatcher(ip string, port int, opts ...bulb.Option) (*dispatch.Dispatcher, error) {
	client, err := bulb.NewClient(bulb.Endpoint{IP: ip, Port: port}, opts...)
	if err != nil {
		return nil, err
	}

	metrics := storage.NewMemory()
	d := dispatch.New(metrics)
	if err := d.Add(bulb.NewDevice(ip, client, storage.Device(metrics, ip))); err != nil {
		return nil, err
	}
	if err := d.Init(); err != nil {
		return nil, err
	}
	return d, nil
}

func execute(ctx context.Context, d *dispatch.Dispatcher, name string, args []string, out io.Writer) error {
	switch args[0] {
	case "shell":
		return runShell(ctx, d, name)
	case "run":
		if len(args) != 2 {
			return fmt.Errorf("%w: run needs a script path", bulb.ErrInvalidArguments)
		}
		rt := luart.NewRuntime(d)
		defer rt.Close()
		return rt.LoadScript(ctx, args[1])
	default:
		return runCommand(ctx, d, name, args, out)
	}
}

// runCommand executes one bulb command and prints the resulting metrics.
func runCommand(ctx context.Context, d *dispatch.Dispatcher, name string, args []string, out io.Writer) error {
	label := args[0]

	switch label {
	case bulb.CommandUpdate:
		st, err := d.Query(ctx, name, "cli")
		if err != nil {
			return err
		}
		if st.Power == nil {
			fmt.Fprintln(out, "power: unknown")
		} else if *st.Power {
			fmt.Fprintln(out, "power: on")
		} else {
			fmt.Fprintln(out, "power: off")
		}
	case bulb.CommandExact:
		rgb, err := parseColorArgs(args[1:])
		if err != nil {
			return err
		}
		if err := d.Dispatch(ctx, name, label, "cli", rgb.R, rgb.G, rgb.B); err != nil {
			return err
		}
	default:
		if err := d.Dispatch(ctx, name, label, "cli"); err != nil {
			return err
		}
	}

	return printState(out, d, name)
}

func parseColorArgs(args []string) (color.RGB, error) {
	var rgb color.RGB
	switch len(args) {
	case 1:
		c, err := color.ParseHex(args[0])
		if err != nil {
			return rgb, fmt.Errorf("%w: %v", bulb.ErrInvalidArguments, err)
		}
		rgb = c
	case 3:
		var vals [3]int
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return rgb, fmt.Errorf("%w: %q is not a number", bulb.ErrInvalidArguments, a)
			}
			vals[i] = v
		}
		rgb = color.RGB{R: vals[0], G: vals[1], B: vals[2]}
	default:
		return rgb, fmt.Errorf("%w: exact takes R G B or #RRGGBB", bulb.ErrInvalidArguments)
	}

	if !rgb.Valid() {
		return rgb, fmt.Errorf("%w: channels must be within 0..255, got %s", bulb.ErrInvalidArguments, rgb)
	}
	return rgb, nil
}

func printState(out io.Writer, d *dispatch.Dispatcher, name string) error {
	snap, err := d.Snapshot(name)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(snap))
	for p := range snap {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fmt.Fprintf(out, "%s = %v\n", p, snap[p])
	}
	return nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, bulb.ErrUnrecognizedCommand), errors.Is(err, bulb.ErrInvalidArguments):
		return 2
	case errors.Is(err, bulb.ErrTimeout):
		return 3
	default:
		return 1
	}
}
