package main

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XANi/go-yamlcfg"
	"github.com/XANi/goneric"
	"github.com/XANi/hassbridge/bond"
	"github.com/XANi/hassbridge/config"
	"github.com/XANi/hassbridge/hass"
	"github.com/XANi/hassbridge/loopback"
	"github.com/XANi/hassbridge/prom"
	"github.com/XANi/hassbridge/queue"
	"github.com/XANi/hassbridge/store"
	"github.com/XANi/hassbridge/vconnex"
	"github.com/XANi/hassbridge/web"
	"github.com/efigence/go-mon"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version string
var log *zap.SugaredLogger
var debug = true
var exit = make(chan error, 1)

// /* embeds with all files, just dir/ ignores files starting with _ or .
//
//go:embed static templates
var embeddedWebContent embed.FS

func init() {
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	// naive systemd detection. Drop timestamp if running under it
	if os.Getenv("JOURNAL_STREAM") != "" {
		consoleEncoderConfig.TimeKey = ""
	}
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig)
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return (lvl < zapcore.ErrorLevel) != (lvl == zapcore.DebugLevel && !debug)
	})
	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, os.Stderr, lowPriority),
		zapcore.NewCore(consoleEncoder, os.Stderr, highPriority),
	)
	logger := zap.New(core)
	if debug {
		logger = logger.WithOptions(
			zap.Development(),
			zap.AddCaller(),
			zap.AddStacktrace(highPriority),
		)
	} else {
		logger = logger.WithOptions(
			zap.AddCaller(),
		)
	}
	log = logger.Sugar()
}

func main() {
	defer log.Sync()
	// register internal stats
	mon.RegisterGcStats()
	app := &cli.Command{
		Name:        "hassbridge",
		Description: "Expose Vconnex and Bond devices to Home Assistant over MQTT",
		Version:     version,
		HideHelp:    true,
	}
	log.Infof("Starting %s version: %s", app.Name, version)
	hostname := goneric.Must(os.Hostname())
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "help, h", Usage: "show help"},
		&cli.BoolFlag{Name: "debug, d", Usage: "enable debug logs"},
		&cli.StringFlag{Name: "config, c",
			Usage: "config file",
		},
		&cli.StringFlag{
			Name:  "listen-addr",
			Value: "127.0.0.1:3001",
			Usage: "Listen addr",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LISTEN_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  "mqtt-addr",
			Usage: "mqtt broker address, MQTT export is disabled without it",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  "dsn",
			Value: "hassbridge.db",
			Usage: "database for config entries and devices, postgres:// URL or sqlite file",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("DSN"),
			),
		},
		&cli.StringFlag{
			Name:  "node-id",
			Value: hostname,
			Usage: "node id used in discovery topics",
		},
		&cli.StringFlag{
			Name:  "discovery-prefix",
			Value: "homeassistant",
			Usage: "Home Assistant discovery prefix",
		},
		&cli.StringFlag{
			Name:  "fixture",
			Usage: "YAML fixture with vendor accounts and hubs for the loopback backend",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FIXTURE"),
			),
		},
		&cli.DurationFlag{
			Name:  "scan-interval",
			Value: 30 * time.Second,
			Usage: "polling interval of polled entities",
		},
		&cli.StringFlag{
			Name:  "prometheus-write-url",
			Usage: "prometheus write protocol url, numeric states are not exported without it",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("PROMETHEUS_WRITE_URL"),
			),
		},
		&cli.StringFlag{
			Name:  "prefix",
			Value: "hassbridge_",
			Usage: "prefix for metrics name",
		},
		&cli.StringMapFlag{
			Name: "extra-labels",
			Value: map[string]string{
				"host": hostname,
			},
			Usage: "comma separated key=value pairs of additional prometheus labels",
		},
		&cli.StringFlag{
			Name:  "pprof-addr",
			Value: "",
			Usage: "address to run pprof on, disabled by default",
		},
	}
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Bool("help") {
			cli.ShowAppHelp(c)
			os.Exit(1)
		}
		cfg := config.Config{
			ListenAddress:      c.String("listen-addr"),
			MQTTAddress:        c.String("mqtt-addr"),
			DiscoveryPrefix:    c.String("discovery-prefix"),
			NodeID:             c.String("node-id"),
			DSN:                c.String("dsn"),
			Debug:              c.Bool("debug"),
			PProfAddress:       c.String("pprof-addr"),
			ScanInterval:       c.Duration("scan-interval"),
			Fixture:            c.String("fixture"),
			PrometheusWriteURL: c.String("prometheus-write-url"),
			PrometheusPrefix:   c.String("prefix"),
			ExtraLabels:        c.StringMap("extra-labels"),
		}
		if c.String("config") != "" {
			err := yamlcfg.LoadConfig([]string{c.String("config")}, &cfg)
			if err != nil {
				log.Fatal(err)
			}
		}
		debug = cfg.Debug
		log.Debug("debug enabled")
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := store.New(store.Config{DSN: cfg.DSN, Logger: log.Named("store")})
		if err != nil {
			log.Panicf("error opening database: %s", err)
		}
		defer db.Close()
		hub, err := hass.NewHub(hass.Config{Logger: log.Named("hub"), Devices: db})
		if err != nil {
			log.Panicf("error creating hub: %s", err)
		}
		defer hub.Close()
		if len(cfg.PrometheusWriteURL) > 0 {
			exporter, err := prom.New(&prom.Config{
				WriteURL:    cfg.PrometheusWriteURL,
				Prefix:      cfg.PrometheusPrefix,
				ExtraLabels: cfg.ExtraLabels,
				Logger:      log.Named("prom"),
				Hub:         hub,
			})
			if err != nil {
				log.Panicf("error starting prometheus exporter: %s", err)
			}
			defer exporter.Close()
		}

		fixture := &loopback.Fixture{}
		if cfg.Fixture != "" {
			fixture, err = loopback.Load(cfg.Fixture)
			if err != nil {
				log.Panicf("error loading fixture: %s", err)
			}
			log.Infof("using loopback backend from %s", cfg.Fixture)
		} else {
			log.Warnf("no fixture configured, vendor entries will fail to set up")
		}
		vc := vconnex.NewIntegration(vconnex.IntegrationConfig{
			Logger: log.Named("vconnex"),
			Hub:    hub,
			SDK:    loopback.NewVconnexSDK(log.Named("vconnex-sdk"), fixture.Vconnex),
			Stored: db,
		})
		bd := bond.NewIntegration(bond.IntegrationConfig{
			Logger:    log.Named("bond"),
			Hub:       hub,
			NewClient: loopback.NewBondClientFactory(fixture.Bond),
		})
		entries := hass.NewConfigEntries(log.Named("entries"), db, vc, bd)
		loaded, err := entries.Load(ctx)
		if err != nil {
			log.Panicf("error loading config entries: %s", err)
		}
		log.Infof("loaded %d config entries", loaded)
		seedEntries(ctx, &cfg, entries, vc)
		defer entries.UnloadAll(context.Background())

		if len(cfg.MQTTAddress) > 0 {
			_, err = queue.New(&queue.Config{
				MQTTAddr:        cfg.MQTTAddress,
				Logger:          log.Named("mq"),
				Hub:             hub,
				NodeID:          cfg.NodeID,
				DiscoveryPrefix: cfg.DiscoveryPrefix,
				TopicPrefix:     cfg.TopicPrefix,
			})
			if err != nil {
				log.Panicf("error starting queue listener: %s", err)
			}
		}

		var webDir fs.FS
		webDir = embeddedWebContent
		if st, err := os.Stat("./static"); err == nil && st.IsDir() {
			if st, err := os.Stat("./templates"); err == nil && st.IsDir() {
				webDir = os.DirFS(".")
				log.Infof(`detected directories "static" and "templates", using local static files instead of ones embedded in binary`)
			}
		}
		if len(cfg.ListenAddress) > 0 {
			w, err := web.New(web.Config{
				Logger:     log.Named("web"),
				ListenAddr: cfg.ListenAddress,
				Hub:        hub,
				Entries:    entries,
				Flow:       vc.Flow(),
				Devices:    db,
			}, webDir)
			if err != nil {
				log.Panicf("error starting web listener: %s", err)
			}
			go func() { exit <- w.Run() }()
		}
		if len(cfg.PProfAddress) > 0 {
			log.Infof("listening pprof on %s", cfg.PProfAddress)
			go func() {
				log.Errorf("failed to start debug listener: %s (ignoring)", http.ListenAndServe(cfg.PProfAddress, nil))
			}()
		}
		if cfg.ScanInterval > 0 {
			go hub.Poll(ctx, cfg.ScanInterval)
		}
		select {
		case <-ctx.Done():
			log.Infof("shutting down")
			return nil
		case err := <-exit:
			return err
		}
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// seedEntries creates entries for credentials given in config unless an
// entry of the same domain is already loaded.
func seedEntries(ctx context.Context, cfg *config.Config, entries *hass.ConfigEntries, vc *vconnex.Integration) {
	domains := map[string]bool{}
	for _, e := range entries.Loaded() {
		domains[e.Domain] = true
	}
	if cfg.Vconnex != nil && !domains[vconnex.Domain] {
		res := vc.Flow().StepUser(ctx, &vconnex.UserInput{
			ClientID:     cfg.Vconnex.ClientID,
			ClientSecret: cfg.Vconnex.ClientSecret,
			Endpoint:     cfg.Vconnex.Endpoint,
		})
		if res.Entry == nil {
			log.Errorf("vconnex credentials from config rejected: %s", res.Errors["base"])
		} else if err := entries.Add(ctx, hass.NewConfigEntry(vconnex.Domain, res.Entry.Title, res.Entry.Data)); err != nil {
			log.Errorf("adding vconnex entry: %s", err)
		}
	}
	if cfg.Bond != nil && !domains[bond.Domain] {
		e := hass.NewConfigEntry(bond.Domain, cfg.Bond.Host, map[string]string{
			bond.ConfHost:        cfg.Bond.Host,
			bond.ConfAccessToken: cfg.Bond.Token,
		})
		if err := entries.Add(ctx, e); err != nil {
			log.Errorf("adding bond entry: %s", err)
		}
	}
}
