package main

import (
	"context"
	"flag"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/e1732a364fed/edgetunnel/config"
	"github.com/e1732a364fed/edgetunnel/machine"
	"github.com/e1732a364fed/edgetunnel/utils"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

var (
	configFileName string
	listenAddr     string
	startPProf     bool
	startMProf     bool
	showVersion    bool
)

const (
	defaultConfFn = "edgetunnel.toml"

	initTimeout = 15 * time.Second
)

func init() {
	flag.StringVar(&configFileName, "c", defaultConfFn, "config file name")
	flag.StringVar(&listenAddr, "L", "", "listen address, overrides [app] listen")
	flag.BoolVar(&startPProf, "pp", false, "cpu pprof")
	flag.BoolVar(&startMProf, "mp", false, "memory pprof")
	flag.BoolVar(&showVersion, "v", false, "print version and exit")

	flag.IntVar(&utils.LogLevel, "ll", utils.DefaultLL, "log level,0=debug, 1=info, 2=warning, 3=error, 4=dpanic, 5=panic, 6=fatal")
	flag.StringVar(&utils.LogOutFileName, "lf", "", "output file for log; If empty, no log file will be used.")
}

func main() {
	os.Exit(mainFunc())
}

func mainFunc() (result int) {
	defer func() {
		if r := recover(); r != nil {
			if ce := utils.CanLogErr("Captured panic!"); ce != nil {
				stackStr := string(debug.Stack())
				ce.Write(zap.Any("err:", r), zap.String("stacktrace", stackStr))

				log.Println(stackStr) //zap 里的换行符被转译了, 可读性差, 所以单独打印一遍
			} else {
				log.Println("panic captured!", r, "\n", string(debug.Stack()))
			}
			result = -3
		}
	}()

	utils.ParseFlags()

	printVersion(os.Stdout)
	if showVersion {
		return 0
	}

	if startPProf {
		p := profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		defer p.Stop()
	}
	if startMProf {
		//若不使用 NoShutdownHook, 则 我们ctrl+c退出时不会产生 pprof文件
		p := profile.Start(profile.MemProfile, profile.MemProfileRate(1), profile.NoShutdownHook)
		defer p.Stop()
	}

	var fc config.FileConf

	var fpath string
	if configFileName != "" {
		fpath = utils.GetFilePath(configFileName)
	}
	if fpath == "" || !utils.FileExist(fpath) {
		if utils.IsFlagGiven("c") {
			log.Printf("-c provided but %q doesn't exist", configFileName)
			return -1
		}
		//没有配置文件时 完全依赖 环境变量 与 store
		log.Printf("No -c provided and default %q doesn't exist, using environment only", defaultConfFn)
	} else {
		var err error
		fc, err = config.LoadFileConf(fpath)
		if err != nil {
			log.Println("can not load config file", fpath, err)
			return -1
		}
	}

	machine.SetupApp(fc.App)
	utils.InitLog(utils.LogOutFileName)
	defer utils.Info("Program exited")

	if ce := utils.CanLogInfo("Options"); ce != nil {
		ce.Write(
			zap.String("config", fpath),
			zap.Int("Log Level", utils.LogLevel),
		)
	}

	m, closer, err := machine.NewFromConf(fc)
	if err != nil {
		if ce := utils.CanLogErr("can not create machine"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return -1
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	err = m.Init(ctx)
	cancel()
	if err != nil {
		if ce := utils.CanLogErr("init failed"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return -1
	}

	if s := m.Dispatcher.Settings(); len(s.EnabledProtocols()) == 0 {
		utils.ZapLogger.Warn("no protocol enabled, every connection will be refused until config changes")
	}

	addr := machine.ListenAddr(fc.App)
	if listenAddr != "" {
		addr = listenAddr
	}
	if err := m.Start(addr); err != nil {
		if ce := utils.CanLogErr("start failed"); ce != nil {
			ce.Write(zap.Error(err))
		}
		return -1
	}
	defer m.Stop()

	<-utils.GetSystemKillChan()
	return 0
}
