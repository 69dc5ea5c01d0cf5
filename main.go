package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Meander-Cloud/go-quickplay/broker"
	"github.com/Meander-Cloud/go-quickplay/config"
	"github.com/Meander-Cloud/go-quickplay/lobby"
	"github.com/Meander-Cloud/go-quickplay/peer"
	"github.com/Meander-Cloud/go-quickplay/status"
)

const (
	defaultAddress       = ":4533"
	defaultStatusAddress = ":8080"
	shutdownWait         = 5 * time.Second
)

func getenv(key string, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvUint16(key string, fallback uint16) uint16 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		log.Printf("main: ignoring %s=%s, err=%s", key, v, err.Error())
		return fallback
	}
	return uint16(n)
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "quickplay"
	}
	return host
}

func serverConfig() *config.Config {
	return &config.Config{
		Host: hostname(),

		ListenAddress:        getenv("QUICKPLAY_ADDRESS", defaultAddress),
		TcpKeepAliveInterval: 17,
		TcpKeepAliveCount:    2,
		ReadBufferLen:        0,

		PlayersPerMatch: getenvUint16("QUICKPLAY_PLAYERS_PER_MATCH", 0),
		MaxFrameSize:    0,
		ResendInterval:  getenvUint16("QUICKPLAY_RESEND_INTERVAL", 0),

		StatusAddress:    getenv("QUICKPLAY_STATUS_ADDRESS", defaultStatusAddress),
		BrokerURL:        os.Getenv("QUICKPLAY_BROKER_URL"),
		SnapshotPath:     os.Getenv("QUICKPLAY_SNAPSHOT_PATH"),
		SnapshotInterval: getenvUint16("QUICKPLAY_SNAPSHOT_INTERVAL", 0),

		LogPrefix: "lobby",
		LogDebug:  os.Getenv("QUICKPLAY_LOG_DEBUG") != "",
	}
}

func runServer(ctx context.Context) error {
	c := serverConfig()

	var sink lobby.EventSink
	var b *broker.Broker
	if c.BrokerURL != "" {
		var err error
		b, err = broker.Connect(c.BrokerURL, "quickplay-"+c.Host, c.LogPrefix+"-Broker")
		if err != nil {
			return err
		}
		defer b.Close()
		sink = b
	}

	l, err := lobby.NewLobby(c, sink)
	if err != nil {
		return err
	}
	defer l.Shutdown() // wait

	srv := &http.Server{
		Addr:    c.StatusAddress,
		Handler: status.SetupRouter(l, c.LogPrefix+"-Status"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("%s: status listening on %s", c.LogPrefix, c.StatusAddress)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// hostCallback plays the game side of a client: it reports ready as soon
// as it is ordered to host, and logs where to connect otherwise.
type hostCallback struct {
	ctx       context.Context
	pr        *peer.Peer
	logPrefix string
}

func (uc *hostCallback) HostingOrdered(ho *peer.HostingOrdered) {
	log.Printf("%s: HostingOrdered: lobby=%s, time=%s", uc.logPrefix, ho.LobbyAddress, ho.Time.Format(time.RFC3339))

	// MatchReady waits on the arbiter goroutine this callback runs on
	go func() {
		err := uc.pr.MatchReady(uc.ctx)
		if err != nil {
			log.Printf("%s: MatchReady failed, err=%s", uc.logPrefix, err.Error())
		}
	}()
}

func (uc *hostCallback) ConnectInfoReceived(ci *peer.ConnectInfoReceived) {
	log.Printf(
		"%s: ConnectInfoReceived: host=%s %s, time=%s",
		uc.logPrefix,
		ci.ConnectInfo.Family,
		ci.ConnectInfo.Address,
		ci.Time.Format(time.RFC3339),
	)
}

// parseCPUSpeed reads "3.20" as integer and hundredths parts.
func parseCPUSpeed(v string) (uint8, uint8, error) {
	whole, frac, _ := strings.Cut(v, ".")

	i, err := strconv.ParseUint(whole, 10, 8)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cpu speed %s, err=%w", v, err)
	}

	var f uint64
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		f, err = strconv.ParseUint(frac, 10, 8)
		if err != nil || f > 99 {
			return 0, 0, fmt.Errorf("invalid cpu speed fraction %s", v)
		}
	}

	return uint8(i), uint8(f), nil
}

func runClient(ctx context.Context, address string) error {
	cores := runtime.NumCPU()
	if cores > 255 {
		cores = 255
	}

	speedInt, speedFrac, err := parseCPUSpeed(getenv("QUICKPLAY_CPU_SPEED", "1.00"))
	if err != nil {
		log.Printf("client: %s", err.Error())
		return err
	}

	c := &config.PeerConfig{
		Host: hostname(),

		ServerAddress:        address,
		TcpKeepAliveInterval: 17,
		TcpKeepAliveCount:    2,
		TcpDialTimeout:       3,
		TcpReconnectInterval: 5,
		TcpReconnectLogEvery: 12,
		ReadBufferLen:        0,

		MaxFrameSize:   0,
		ResendInterval: getenvUint16("QUICKPLAY_RESEND_INTERVAL", 0),

		CoreCount:    uint8(cores),
		CPUSpeedInt:  speedInt,
		CPUSpeedFrac: speedFrac,

		LogPrefix: "client",
		LogDebug:  os.Getenv("QUICKPLAY_LOG_DEBUG") != "",
	}

	uc := &hostCallback{
		ctx:       ctx,
		pr:        nil,
		logPrefix: c.LogPrefix,
	}
	pr, err := peer.NewPeer(c, uc)
	if err != nil {
		return err
	}
	uc.pr = pr

	<-ctx.Done() // wait
	pr.Shutdown()
	return nil
}

func runWatch(ctx context.Context, url string) error {
	b, err := broker.Connect(url, "quickplay-watch-"+hostname(), "watch")
	if err != nil {
		return err
	}
	defer b.Close()

	sub, err := b.Subscribe(
		func(ev *lobby.MatchEvent) {
			log.Printf("watch: lobby=%s match=%d %s members=%d", ev.LobbyID, ev.MatchID, ev.Kind, len(ev.Members))
		},
	)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	<-ctx.Done() // wait
	return nil
}

func usage() {
	log.Printf("usage: quickplay server | quickplay client <address> | quickplay watch <nats url>")
}

func main() {
	// enable microsecond and file line logging
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if len(os.Args) <= 1 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(ctx)
	case "client":
		if len(os.Args) <= 2 {
			usage()
			os.Exit(2)
		}
		err = runClient(ctx, os.Args[2])
	case "watch":
		err = runWatch(ctx, getenv("QUICKPLAY_BROKER_URL", "nats://localhost:4222"))
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Printf("main: exiting, err=%s", err.Error())
		os.Exit(1)
	}
	log.Printf("main: exiting")
}
