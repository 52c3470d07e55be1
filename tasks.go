package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/zugzug-go"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/swdunlop/assetrig-go/rig"
	"github.com/swdunlop/assetrig-go/rig/local"
	"github.com/swdunlop/assetrig-go/rig/paths"
	"github.com/swdunlop/assetrig-go/rig/profile"
	"github.com/swdunlop/assetrig-go/rig/sass"
	"github.com/swdunlop/assetrig-go/rig/tailscale"
)

// zugzugTask is the element type of zugzug.Tasks, which zugzug declares anonymously.
type zugzugTask = struct {
	Name     string
	Fn       func(context.Context) error
	Use      string
	Parser   zugzug.Parser
	Settings zugzug.Settings
}

func init() {
	settings := zugzug.Settings{
		{Var: &rigEnv, Name: `RIG_ENV`,
			Use: "Build mode, either \"dev\" or \"prod\"; anything else skips every optional step"},
		{Var: &rigConfig, Name: `RIG_CONFIG`,
			Use: "YAML file overriding the default paths"},
		{Var: &sassBinary, Name: `SASS_BINARY`,
			Use: "Sass compiler to run (default: \"sass\")"},
		{Var: &rigSettle, Name: `RIG_SETTLE`,
			Use: "How long a watch rebuild waits for further changes, such as \"200ms\""},
	}
	serveSettings := append(zugzug.Settings{
		{Var: &listenNetwork, Name: `LISTEN_NETWORK`,
			Use: "Listening network for the address (default: \"tcp\" if Tailscale not used)"},
		{Var: &listenAddress, Name: `LISTEN_ADDRESS`,
			Use: "Listening address for the preview service (default: localhost:8080 if TCP used)"},

		{Var: &tailscaleHostname, Name: `TAILSCALE_HOSTNAME`,
			Use: "Specifies the hostname on your Tailscale network"},
		{Var: &tailscaleFunnel, Name: `TAILSCALE_FUNNEL`,
			Use: "Enables internet access via a Tailscale funnel"},
		{Var: &tailscaleListen, Name: `TAILSCALE_LISTEN`,
			Use: "Listening address for clients from your Tailscale network (default: \":443\" or \":80\")"},
		{Var: &tailscaleDir, Name: `TAILSCALE_DIR`,
			Use: "State directory for Tailscale"},
		{Var: &noTailscaleTLS, Name: `NO_TAILSCALE_TLS`,
			Use: "Disables TLS for Tailscale"},
	}, settings...)

	task := func(name, use string, serves bool) zugzugTask {
		t := zugzugTask{Name: name, Use: use, Fn: operation(name, serves), Settings: settings}
		if serves {
			t.Settings = serveSettings
		}
		return t
	}
	tasks = append(tasks, zugzug.Tasks{
		task(`clean`, "Removes the output directory", false),
		task(`build-html`, "Builds pages, expanding includes", false),
		task(`build-css`, "Builds the stylesheet bundle", false),
		task(`build-js`, "Builds the script bundle", false),
		task(`build-svg`, "Packs SVG icons into a sprite", false),
		task(`build-images`, "Optimizes images", false),
		task(`build-fonts`, "Copies fonts", false),
		task(`build`, "Builds every category", false),
		task(`watch`, "Rebuilds categories when their sources change", false),
		task(`serve`, "Serves the output with live reload", true),
		task(`default`, "Cleans, builds everything, then watches and serves", true),
	}...)
}

func operation(name string, serves bool) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		defer cancel()

		options, err := pipelineOptions()
		if err != nil {
			return err
		}
		if serves {
			more, err := previewOptions()
			if err != nil {
				return err
			}
			options = append(options, more...)
		}
		p, err := rig.New(options...)
		if err != nil {
			return err
		}
		hog.From(ctx).Debug().Str(`mode`, p.Profile().Mode.String()).Str(`operation`, name).Msg(`starting`)
		return p.Run(ctx, name)
	}
}

func pipelineOptions() ([]rig.Option, error) {
	options := []rig.Option{rig.Mode(profile.ParseMode(rigEnv))}
	if rigConfig != `` {
		reg, err := paths.Load(rigConfig)
		if err != nil {
			return nil, err
		}
		options = append(options, rig.Registry(reg))
	}
	if sassBinary != `` {
		options = append(options, rig.Compiler(sass.Command{Path: sassBinary}))
	}
	if rigSettle != `` {
		interval, err := time.ParseDuration(rigSettle)
		if err != nil {
			return nil, fmt.Errorf(`%w in RIG_SETTLE`, err)
		}
		options = append(options, rig.Settle(interval))
	}
	return options, nil
}

func previewOptions() ([]rig.Option, error) {
	var tailscaleOptions []tailscale.Option
	useTailscale := false
	if tailscaleFunnel {
		if noTailscaleTLS {
			return nil, errors.New("Tailscale funnel requires TLS")
		}
		if tailscaleListen != `` {
			return nil, errors.New("You cannot combine TAILSCALE_FUNNEL with TAILSCALE_LISTEN")
		}
		useTailscale = true
		tailscaleOptions = append(tailscaleOptions, tailscale.Funnel())
	} else if tailscaleListen != `` {
		useTailscale = true
	}
	if tailscaleHostname != `` {
		useTailscale = true
		tailscaleOptions = append(tailscaleOptions, tailscale.Hostname(tailscaleHostname))
	}
	if noTailscaleTLS {
		tailscaleOptions = append(tailscaleOptions, tailscale.NoTLS())
	}
	if tailscaleDir != `` {
		tailscaleOptions = append(tailscaleOptions, tailscale.Dir(tailscaleDir))
	}

	if useTailscale {
		tailscaleOptions = append(tailscaleOptions,
			tailscale.HookUp(func(_ *tsnet.Server, status *ipnstate.Status) error {
				if status.Self != nil {
					hog.From(context.Background()).Debug().
						Str(`dns`, status.Self.DNSName).
						Interface(`ips`, status.TailscaleIPs).
						Msg(`joined Tailscale network`)
				}
				return nil
			}),
		)
		return []rig.Option{rig.Preview(tailscale.Rig(tailscaleListen, tailscaleOptions...))}, nil
	}

	if listenNetwork == `` {
		listenNetwork = `tcp`
	}
	if listenAddress == `` {
		if listenNetwork != `tcp` {
			return nil, fmt.Errorf(`LISTEN_ADDRESS must be specified for LISTEN_NETWORK other than "tcp"`)
		}
		listenAddress = rig.DefaultAddress
	}
	return []rig.Option{
		rig.Address(listenAddress),
		rig.Preview(local.Rig(local.Listen(listenNetwork, listenAddress))),
	}, nil
}

var (
	rigEnv     string
	rigConfig  string
	sassBinary string
	rigSettle  string

	listenNetwork string
	listenAddress string

	tailscaleFunnel   bool
	tailscaleHostname string
	tailscaleListen   string
	tailscaleDir      string
	noTailscaleTLS    bool
)
