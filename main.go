package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"

	_ "github.com/selvany/otoha/home"
	_ "github.com/selvany/otoha/web"

	"github.com/selvany/otoha/sys"
)

const (
	MsgBotStarting          = "Starting %s..."
	MsgBotShutdown          = "Shutting down %s..."
	MsgBotKillingOld        = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated     = "Old instance terminated."
	MsgBotRegisterFail      = "Command registration failed: %v"
	MsgGenericError         = "%v"
	MsgInitializing         = "Initializing %s..."
	MsgConfigFailedToLoad   = "Failed to load config: %v"
	MsgDatabaseInitFail     = "Failed to initialize database: %v"
	MsgPIDOpenFail          = "Failed to open PID file: %v"
	MsgPIDLockFail          = "Failed to lock PID file: %v"
	MsgBotStubbornOld       = "Old process %d is stubborn. Sending SIGKILL..."
	MsgBotKillResistant     = "Process %d still exists after SIGKILL"
	MsgSignalDumpParams     = "Received SIGUSR1, dumping goroutines to goroutines.txt"
	MsgSignalDumpCreateFail = "Failed to create goroutines.txt: %v"
	MsgSignalDumpSuccess    = "Goroutines dumped"
	MsgBotClientCreateFail  = "failed to create Discord client after %d attempts: %w"
	MsgBotClientRetry       = "Failed to create Discord client (attempt %d/5): %v. Retrying in 5s..."
	MsgBotSkipReg           = "Skipping command registration as requested."
	MsgBotGatewayFail       = "failed to open gateway: %w"
	MsgDaemonShutdown       = "Shutting down all daemons..."
	MsgPanicFatal           = "\n[FATAL] %s\n"
	BotPIDFile              = ".bot.pid"
)

func main() {
	// 0. Recover from panics (LogFatal uses panic to ensure defers run)
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, MsgPanicFatal, msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	// 1. Load configuration early
	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.LogError(MsgConfigFailedToLoad, err)
	}

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	flag.Parse()

	// 2. Initialize Logger (handle flags)
	logName := sys.InitLogger(*silent, true)

	// 3. Try to detect bot name
	botName := sys.GetProjectName()

	// 4. Log Starting Message
	sys.LogInfo(MsgBotStarting, botName)

	// 5. Initialize Database & Logs
	if cfg != nil {
		sys.LogInfo(MsgInitializing, filepath.Base(cfg.DatabasePath))
	}
	if logName != "" {
		sys.LogInfo(MsgInitializing, filepath.Base(logName))
	}

	if cfg == nil {
		sys.LogFatal(MsgConfigFailedToLoad, err)
	}

	if err := sys.InitDatabase(context.Background(), cfg.DatabasePath); err != nil {
		sys.LogFatal(MsgDatabaseInitFail, err)
	}
	defer sys.CloseDatabase()

	// 6. Open or create the PID file
	f, err := os.OpenFile(BotPIDFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		sys.LogFatal(MsgPIDOpenFail, err)
	}
	defer f.Close()

	// 7. Try to acquire an exclusive lock
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}

		if err != syscall.EWOULDBLOCK {
			sys.LogFatal(MsgPIDLockFail, err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil {
			_ = f.Close()
			<-ticker.C
			f, _ = os.OpenFile(BotPIDFile, os.O_RDWR|os.O_CREATE, 0644)
			continue
		}

		if oldPid == os.Getpid() {
			break
		}

		process, procErr := os.FindProcess(oldPid)
		if procErr != nil {
			<-ticker.C
			continue
		}

		sys.LogInfo(MsgBotKillingOld, oldPid)
		_ = process.Signal(syscall.SIGTERM)

		terminated := false
		timeout := time.After(5 * time.Second)
	waitLoop:
		for {
			select {
			case <-ticker.C:
				if err := process.Signal(syscall.Signal(0)); err != nil {
					terminated = true
					break waitLoop
				}
			case <-timeout:
				break waitLoop
			}
		}

		if !terminated {
			sys.LogWarn(MsgBotStubbornOld, oldPid)
			_ = process.Signal(syscall.SIGKILL)

			killTimeout := time.After(2 * time.Second)
			killTicker := time.NewTicker(50 * time.Millisecond)
			defer killTicker.Stop()

		killWait:
			for {
				select {
				case <-killTicker.C:
					if err := process.Signal(syscall.Signal(0)); err != nil {
						break killWait
					}
				case <-killTimeout:
					sys.LogWarn(MsgBotKillResistant, oldPid)
					break killWait
				}
			}
		}

		sys.LogInfo(MsgBotOldTerminated)
	}

	// 8. We have the lock. Write our PID.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()

	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = os.Remove(BotPIDFile)
	}()

	// 9. Run bot (blocks until shutdown signal)
	if err := run(cfg, *silent, *skipReg); err != nil {
		sys.LogFatal(MsgGenericError, err)
	}
}

func run(cfg *sys.Config, silent bool, skipReg bool) error {
	// 1. Setup global context that responds to shutdown signals
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	// Add SIGUSR1 handler for goroutine dumping
	sys.SafeGo(func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGUSR1)
		for range sigChan {
			sys.LogInfo(MsgSignalDumpParams)
			f, err := os.Create("goroutines.txt")
			if err != nil {
				sys.LogError(MsgSignalDumpCreateFail, err)
				continue
			}
			buf := make([]byte, 1<<20)
			length := runtime.Stack(buf, true)
			f.Write(buf[:length])
			f.Close()
			sys.LogInfo(MsgSignalDumpSuccess)
		}
	})

	sys.SetAppContext(ctx)

	// 2. Create disgo client with retries for network resilience
	var client bot.Client
	var err error
	for i := 1; i <= 5; i++ {
		client, err = sys.CreateClient(ctx, cfg)
		if err == nil {
			break
		}
		if i == 5 {
			return fmt.Errorf(MsgBotClientCreateFail, i, err)
		}
		sys.LogWarn(MsgBotClientRetry, i, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	defer client.Close(ctx)

	// 3. Command Registration
	if !skipReg {
		if err := sys.RegisterCommands(client, cfg.GuildID); err != nil {
			sys.LogError(MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo(MsgBotSkipReg)
	}

	// 4. Connect to Gateway
	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf(MsgBotGatewayFail, err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	sys.LogInfo(MsgDaemonShutdown)
	sys.ShutdownDaemons(context.Background())

	sys.LogInfo(MsgBotShutdown, sys.GetProjectName())

	return nil
}
