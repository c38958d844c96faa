// Command kitchen-mp is the participant CLI: it lists open sessions and joins
// one through the directory, then plays over the relayed connection.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/automoto/kitchen-mp/config"
	"github.com/automoto/kitchen-mp/events"
	"github.com/automoto/kitchen-mp/lobby"
	"github.com/automoto/kitchen-mp/network"
	"github.com/automoto/kitchen-mp/participant"
	"github.com/automoto/kitchen-mp/prefs"
	"github.com/automoto/kitchen-mp/shared/directory"
	"github.com/automoto/kitchen-mp/shared/messages"
	"github.com/jonboulle/clockwork"
	"github.com/leap-fish/necs/esync"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: kitchen-mp [flags] <command>

commands:
  list            show open sessions
  quick           join the oldest open session
  join <code>     join a session by its code
  join-id <id>    join a session by id
`

var errSessionEnded = errors.New("session ended")

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	player := flag.String("player", cfg.PlayerName, "Player name (saved for next time)")
	flag.StringVar(&cfg.MasterURL, "master", cfg.MasterURL, "Directory service URL")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	identity := prefs.LocalIdentity("kitchen-mp", *player, logger)
	if err := run(ctx, cfg, identity, flag.Args(), logger); err != nil && !errors.Is(err, errSessionEnded) {
		logger.Fatal("stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, identity prefs.Prefs, args []string, logger *zap.Logger) error {
	clock := clockwork.NewRealClock()
	transport := network.NewWsClient(logger)
	lb := lobby.NewClient(lobby.Config{
		PlayerID:            identity.PlayerID,
		PlayerName:          identity.PlayerName,
		MaxPlayers:          cfg.MaxPlayers,
		HeartbeatInterval:   cfg.HeartbeatInterval,
		ListRefreshInterval: cfg.ListRefreshInterval,
		ShutdownTimeout:     cfg.ShutdownTimeout,
	},
		lobby.NewHTTPDirectory(cfg.MasterURL, identity.PlayerID, nil),
		lobby.NewHTTPRelay(cfg.MasterURL, identity.PlayerID, nil),
		nil, transport, clock, logger)
	defer lb.Statuses(func(s lobby.Status) { fmt.Println(lobby.Message(s)) }).Release()

	session, err := joinSession(ctx, lb, args)
	if err != nil || session == nil {
		return err
	}
	defer func() {
		if err := lb.Shutdown(context.Background()); err != nil {
			logger.Warn("lobby shutdown", zap.Error(err))
		}
	}()
	fmt.Printf("joined %q (%d/%d)\n", session.Name, len(session.Members), session.MaxPlayers)

	state := participant.NewState(cfg.Match())
	client := network.NewClient(transport, state, logger)
	defer client.Close()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	subs := watch(client, state, cancel)
	defer subs.Release()

	if err := client.StartClient(ctx, messages.JoinRequest{
		Version:    cfg.Version,
		PlayerName: identity.PlayerName,
		PlayerID:   identity.PlayerID,
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error { return lb.Run(gctx) })
	go console(client, state)

	if err := g.Wait(); err != nil {
		return err
	}
	return context.Cause(ctx)
}

// joinSession runs the lobby command. A nil session means the command was
// informational and the process should exit.
func joinSession(ctx context.Context, lb *lobby.Client, args []string) (*directory.Session, error) {
	var (
		s   directory.Session
		err error
	)
	switch args[0] {
	case "list":
		if err := lb.RefreshSessions(ctx); err != nil {
			return nil, err
		}
		for _, s := range lb.ListOpenSessions() {
			fmt.Printf("%-36s %-6s %-20s %d/%d\n", s.ID, s.Code, s.Name, len(s.Members), s.MaxPlayers)
		}
		return nil, nil
	case "quick":
		s, err = lb.QuickJoin(ctx)
	case "join", "join-id":
		if len(args) < 2 {
			return nil, fmt.Errorf("%s needs an argument", args[0])
		}
		if args[0] == "join" {
			s, err = lb.JoinByCode(ctx, args[1])
		} else {
			s, err = lb.JoinByID(ctx, args[1])
		}
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// watch prints session notifications and ends the session when the host
// turns the player away or goes away.
func watch(client *network.Client, state *participant.State, end context.CancelCauseFunc) *events.Group {
	g := &events.Group{}
	g.Add(client.TryingToJoin.Subscribe(func(struct{}) { fmt.Println("connecting to host...") }))
	g.Add(client.FailedToJoin.Subscribe(func(reason string) {
		fmt.Println(reason)
		end(errSessionEnded)
	}))
	g.Add(client.HostDisconnected.Subscribe(func(reason string) {
		fmt.Println(reason)
		end(errSessionEnded)
	}))
	g.Add(client.Joined.Subscribe(func(a messages.JoinAccepted) {
		fmt.Printf("in %q as %s\n", a.SessionName, a.Peer)
	}))
	g.Add(state.Roster.Changed.Subscribe(func(c messages.RosterChanged) {
		fmt.Printf("roster %s: %s (color %d)\n", c.Op, c.Record.Name, c.Record.ColorIndex)
	}))
	g.Add(state.Match.StateChanged.Subscribe(func(c messages.MatchStateChanged) {
		fmt.Printf("match %s -> %s\n", c.Previous, c.State)
	}))
	g.Add(state.Match.MultiplayerPaused.Subscribe(func(struct{}) { fmt.Println("paused") }))
	g.Add(state.Match.MultiplayerUnpaused.Subscribe(func(struct{}) { fmt.Println("unpaused") }))
	g.Add(state.Entities.Spawned.Subscribe(func(e messages.EntitySpawned) {
		fmt.Printf("entity %d (type %d) on %d\n", e.Entity, e.TypeIndex, e.Owner)
	}))
	g.Add(state.Entities.Destroyed.Subscribe(func(e messages.EntityDestroyed) {
		fmt.Printf("entity %d gone\n", e.Entity)
	}))
	return g
}

// console reads player commands from stdin.
func console(client *network.Client, state *participant.State) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var err error
		switch fields[0] {
		case "ready":
			err = client.Ready()
		case "pause":
			err = client.TogglePause()
		case "color":
			err = withInts(fields, 1, func(n []int) error { return client.ChangeColor(n[0]) })
		case "spawn":
			err = withInts(fields, 2, func(n []int) error { return client.Spawn(n[0], esync.NetworkId(n[1])) })
		case "destroy":
			err = withInts(fields, 1, func(n []int) error { return client.Destroy(esync.NetworkId(n[0])) })
		case "give":
			err = withInts(fields, 2, func(n []int) error { return client.Transfer(esync.NetworkId(n[0]), esync.NetworkId(n[1])) })
		case "players":
			for i, rec := range state.Roster.Records() {
				fmt.Printf("%d %-12s color=%d holder=%d\n", i, rec.Name, rec.ColorIndex, rec.Holder)
			}
		case "time":
			fmt.Printf("%s countdown=%s remaining=%s paused=%v\n",
				state.Match.State(), state.Match.CountdownRemaining(), state.Match.PlayRemaining(), state.Match.IsPaused())
		default:
			fmt.Println("commands: ready | pause | color <n> | spawn <type> <parent> | destroy <entity> | give <entity> <parent> | players | time")
			continue
		}
		if err != nil {
			fmt.Println(err)
		}
	}
}

func withInts(fields []string, n int, fn func([]int) error) error {
	if len(fields) < n+1 {
		return fmt.Errorf("%s needs %d numbers", fields[0], n)
	}
	nums := make([]int, n)
	for i := range nums {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return err
		}
		nums[i] = v
	}
	return fn(nums)
}
