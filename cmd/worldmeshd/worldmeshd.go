package main

import (
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	timer "github.com/xiaonanln/goTimer"

	"github.com/mirrorworlds/worldmesh/engine/binutil"
	"github.com/mirrorworlds/worldmesh/engine/config"
	"github.com/mirrorworlds/worldmesh/engine/consts"
	"github.com/mirrorworlds/worldmesh/engine/post"
	"github.com/mirrorworlds/worldmesh/engine/wmlog"
	"github.com/mirrorworlds/worldmesh/gateway"
	"github.com/mirrorworlds/worldmesh/manager"
	"github.com/mirrorworlds/worldmesh/proxy"
	"github.com/mirrorworlds/worldmesh/relocation"
	"github.com/mirrorworlds/worldmesh/resource"
	"github.com/mirrorworlds/worldmesh/resource/localengine"
	"github.com/mirrorworlds/worldmesh/store"
	"github.com/mirrorworlds/worldmesh/world"
)

var args struct {
	configFile      string
	logLevel        string
	runInDaemonMode bool
}

var (
	worldStore   *store.Store
	worldManager *manager.Manager
	proxyService *proxy.Service
	signalChan   = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, overriding config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}

func main() {
	rand.Seed(time.Now().UnixNano())
	parseArgs()

	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	serverCfg := config.GetServer()
	if serverCfg.GoMaxProcs > 0 {
		wmlog.Infof("SET GOMAXPROCS = %d", serverCfg.GoMaxProcs)
		runtime.GOMAXPROCS(serverCfg.GoMaxProcs)
	}

	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = serverCfg.LogLevel
	}
	binutil.SetupWMLog(serverCfg.ServerName, logLevel, serverCfg.LogFile, serverCfg.LogStderr)
	binutil.SetupHTTPServer(serverCfg.HTTPIp, serverCfg.HTTPPort)

	engine, err := localengine.New(serverCfg)
	if err != nil {
		wmlog.Fatalf("cannot initialize world engine: %v", err)
	}

	worldStore = store.NewStore(config.GetStorage())
	adapter := resource.NewAdapter(engine, serverCfg)
	template := world.DefaultSettings(config.GetDefaults())
	worldManager = manager.NewManager(serverCfg, worldStore, adapter, engine, template)

	if serverCfg.CrossServer {
		gw := gateway.NewGateway(config.GetProxy(), serverCfg, worldManager)
		proxyService = proxy.NewService(config.GetProxy(), gw)
		gw.BindLink(proxyService)

		coordinator := relocation.NewCoordinator(config.GetRelocation(), serverCfg, proxyService, gw, worldManager, engine)
		gw.BindRelocationHandler(coordinator)

		worldManager.BindMessenger(gw)
		worldManager.BindRelocator(coordinator)
		proxyService.Run()
	}

	worldManager.Initialize(func(count int) {
		wmlog.Infof("worldmeshd ready: %d worlds", count)
	})

	setupSignals()
	mainRoutine()
}

func setupSignals() {
	signal.Ignore(syscall.Signal(10), syscall.Signal(12))
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
}

func mainRoutine() {
	ticker := time.Tick(consts.TICK_INTERVAL)
	for {
		select {
		case sig := <-signalChan:
			if sig == syscall.SIGTERM || sig == syscall.SIGINT {
				doTerminate()
			} else {
				wmlog.Infof("unexpected signal: %s, ignoring", sig)
			}
		case <-ticker:
			timer.Tick()
		}

		// after firing timers, run the posted functions
		post.Tick()
	}
}

func doTerminate() {
	wmlog.Infof("worldmeshd terminating ...")
	if proxyService != nil {
		proxyService.Terminate()
	}
	post.Tick() // drain pending callbacks before the store goes away
	worldStore.Shutdown()
	wmlog.Infof("worldmeshd terminated gracefully")
	os.Exit(0)
}
