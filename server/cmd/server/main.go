// Command server hosts a kitchen session: it registers the session with the
// directory, publishes a relay join code and runs the authoritative game loop.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/automoto/kitchen-mp/catalog"
	"github.com/automoto/kitchen-mp/config"
	"github.com/automoto/kitchen-mp/lobby"
	"github.com/automoto/kitchen-mp/network"
	"github.com/automoto/kitchen-mp/prefs"
	"github.com/automoto/kitchen-mp/server/core"
	"github.com/automoto/kitchen-mp/shared/leveldata"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type options struct {
	name    string
	private bool
	player  string
	catalog string
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var opts options
	flag.StringVar(&opts.name, "name", "Kitchen", "Session display name")
	flag.BoolVar(&opts.private, "private", false, "Only joinable by code")
	flag.StringVar(&opts.player, "player", cfg.PlayerName, "Player name (saved for next time)")
	flag.StringVar(&opts.catalog, "catalog", "", "Entity catalog YAML (default: built in)")
	flag.IntVar(&cfg.HostPort, "port", cfg.HostPort, "Listen port")
	flag.StringVar(&cfg.AdvertiseHost, "advertise", cfg.AdvertiseHost, "Address guests dial")
	flag.IntVar(&cfg.TickRate, "tickrate", cfg.TickRate, "Tick rate (updates per second)")
	flag.IntVar(&cfg.MaxPlayers, "max", cfg.MaxPlayers, "Max players, host included")
	flag.StringVar(&cfg.Version, "version", cfg.Version, "Required client version (empty = accept any)")
	flag.StringVar(&cfg.MasterURL, "master", cfg.MasterURL, "Directory service URL")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Fatal("host stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger *zap.Logger) error {
	identity := prefs.LocalIdentity("kitchen-mp", opts.player, logger)

	cat, err := loadCatalog(opts.catalog)
	if err != nil {
		return err
	}
	layout, err := leveldata.DefaultLayout()
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	host := network.NewWsHost(logger)
	lb := lobby.NewClient(lobby.Config{
		PlayerID:            identity.PlayerID,
		PlayerName:          identity.PlayerName,
		MaxPlayers:          cfg.MaxPlayers,
		AdvertiseAddr:       net.JoinHostPort(cfg.AdvertiseHost, strconv.Itoa(cfg.HostPort)),
		ListenPort:          uint(cfg.HostPort),
		HeartbeatInterval:   cfg.HeartbeatInterval,
		ListRefreshInterval: cfg.ListRefreshInterval,
		ShutdownTimeout:     cfg.ShutdownTimeout,
	},
		lobby.NewHTTPDirectory(cfg.MasterURL, identity.PlayerID, nil),
		lobby.NewHTTPRelay(cfg.MasterURL, identity.PlayerID, nil),
		host, nil, clock, logger)
	defer func() {
		if err := lb.Shutdown(context.Background()); err != nil {
			logger.Warn("lobby shutdown", zap.Error(err))
		}
	}()

	session, err := lb.CreateSession(ctx, opts.name, opts.private)
	if err != nil {
		return fmt.Errorf("%s %w", lobby.Message(lobby.StatusCreateFailed), err)
	}

	srv := core.NewServer(core.Config{
		SessionName: session.Name,
		Version:     cfg.Version,
		MaxPlayers:  cfg.MaxPlayers,
		TickRate:    cfg.TickRate,
		Match:       cfg.Match(),
	}, host, cat, sceneLog{logger.Named("scene")}, clock, logger)
	if err := srv.LoadLayout(layout); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := srv.StartHost(ctx, identity.PlayerID, identity.PlayerName); err != nil {
		return err
	}
	logger.Info("session open",
		zap.String("name", session.Name),
		zap.String("code", session.Code),
		zap.String("relayCode", session.Data[netconfig.RelayJoinCodeKey]))

	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return lb.Run(ctx) })
	go console(ctx, srv, lb, logger)

	err = g.Wait()
	if cerr := srv.Close(); cerr != nil {
		logger.Warn("close transport", zap.Error(cerr))
	}
	return err
}

// console reads host commands from stdin.
func console(ctx context.Context, srv *core.Server, lb *lobby.Client, logger *zap.Logger) {
	paused := false
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "ready":
			srv.Submit(messages.ReadyRequest{})
		case "pause":
			paused = !paused
			srv.Submit(messages.PauseRequest{Paused: paused})
		case "color":
			if idx, ok := intArg(fields, 1); ok {
				srv.Submit(messages.ChangeColorRequest{ColorIndex: idx})
			}
		case "kick":
			if len(fields) < 2 {
				continue
			}
			if err := lb.KickMember(ctx, fields[1]); err != nil {
				logger.Warn("directory kick failed", zap.Error(err))
			}
			srv.SubmitKick(fields[1])
		case "players":
			for _, rec := range srv.Local().Roster.Records() {
				fmt.Printf("%-10s %-36s %-12s color=%d\n", rec.Peer, rec.PlayerID, rec.Name, rec.ColorIndex)
			}
		default:
			fmt.Println("commands: ready | pause | color <n> | kick <playerID> | players")
		}
	}
}

func intArg(fields []string, i int) (int, bool) {
	if len(fields) <= i {
		return 0, false
	}
	n, err := strconv.Atoi(fields[i])
	return n, err == nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

// sceneLog stands in for the presentation layer.
type sceneLog struct {
	logger *zap.Logger
}

func (s sceneLog) LoadScene(scene netconfig.SceneID) {
	s.logger.Info("load scene", zap.Stringer("scene", scene))
}
