package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"aicca-realtime/internal/bootstrap"
	"aicca-realtime/internal/config"
	"aicca-realtime/internal/pkg/logger"
	"aicca-realtime/internal/service"
	"aicca-realtime/internal/tracer"
	"aicca-realtime/internal/transfer"

	"github.com/fatih/color"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer("aicca-chat")
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Logs go to file so they never interleave with the transcript
	sysLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath)
	defer sysLogger.Sync()

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg, sysLogger)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go container.Loop.Run(loopCtx)

	// 4. Render session changes as they happen
	r := newRenderer(color.Output)
	if err := container.NewChangeConsumer(r.Render, sysLogger).Consume(loopCtx); err != nil {
		log.Fatalf("Failed to subscribe to session changes: %v", err)
	}

	// 5. Connect
	svc := container.SessionService
	clientID := svc.Start(container.ClientID)
	color.Cyan("AICCA session %s on %s", clientID, cfg.Client.EffectiveWSURL())
	color.Cyan("Type /help for commands.")

	app := &chatApp{
		svc:    svc,
		rest:   container,
		logger: sysLogger,
		out:    r,
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case line, ok := <-lines:
			if !ok {
				running = false
				break
			}
			running = app.handle(ctx, line)
		}
	}

	// 6. Graceful shutdown: abandon uploads, disconnect on the loop, then stop it
	stop()
	svc.Stop()
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := container.Loop.Call(flushCtx, func() {}); err != nil {
		log.Printf("[WARN] Event loop did not drain: %v", err)
	}
	app.wg.Wait()
	color.Cyan("Bye.")
}

type chatApp struct {
	svc    service.ISessionService
	rest   *bootstrap.Container
	logger *logger.ZapLogger
	out    *renderer
	wg     sync.WaitGroup
}

// handle runs one input line and reports whether the session should continue.
func (a *chatApp) handle(ctx context.Context, line string) bool {
	cmd, err := parseLine(line)
	if err == errEmptyLine {
		return true
	}
	if err != nil {
		a.out.Errorf("%v", err)
		return true
	}

	switch cmd.Name {
	case cmdQuit:
		return false
	case cmdHelp:
		a.out.Infof("%s", helpText)
	case cmdChat:
		err = a.svc.SendChat(ctx, cmd.Text)
	case cmdAnalyze:
		err = a.svc.Analyze(ctx, cmd.Text, sourceTypeFor(cmd.Text), nil)
	case cmdTool:
		err = a.svc.ExecuteTool(ctx, cmd.Text, cmd.JSON)
	case cmdSelect:
		err = a.svc.SelectFiles(ctx, cmd.Args)
	case cmdPing:
		err = a.svc.Ping()
	case cmdReset:
		err = a.svc.Reset(ctx)
	case cmdUpload:
		a.upload(ctx, cmd.Args)
	case cmdResults:
		var results []service.FileResults
		if results, err = a.svc.Results(ctx); err == nil {
			a.out.Results(results)
		}
	case cmdInfo:
		err = a.info(ctx)
	case cmdTools:
		err = a.tools(ctx)
	case cmdLogs:
		err = a.logs(cmd.Limit)
	}
	if err != nil {
		a.out.Errorf("%s: %v", cmd.Name, err)
	}
	return true
}

// upload sends every path concurrently and reports each outcome as it lands.
func (a *chatApp) upload(ctx context.Context, paths []string) {
	for _, path := range paths {
		file, err := transfer.OpenFile(path)
		if err != nil {
			a.out.Errorf("upload: %v", err)
			continue
		}

		a.wg.Add(1)
		go func(file transfer.File) {
			defer a.wg.Done()
			defer file.Close()

			name := file.Name
			fileID, err := a.svc.Upload(ctx, file, transfer.WithProgress(func(p transfer.Progress) {
				a.out.Progress(name, p)
			}))
			if err != nil {
				a.out.Errorf("upload %s: %v", name, err)
				return
			}
			a.out.Infof("✅ %s uploaded as %s", name, fileID)
		}(file)
	}
}

func (a *chatApp) info(ctx context.Context) error {
	info, err := a.rest.RestClient.Info(ctx)
	if err != nil {
		return err
	}
	a.out.Infof("%s %s", info.Service, info.Version)
	for _, c := range info.Capabilities {
		a.out.Infof("  - %s", c)
	}
	return nil
}

func (a *chatApp) tools(ctx context.Context) error {
	list, err := a.rest.RestClient.Tools(ctx)
	if err != nil {
		return err
	}
	if list.Total == 0 {
		a.out.Infof("No tools available.")
		return nil
	}
	for _, t := range list.Tools {
		a.out.Infof("  %-24s %s", t.Name, t.Description)
	}
	return nil
}

func (a *chatApp) logs(limit int) error {
	entries, err := a.logger.Tail("", limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		a.out.Infof("%s %-5s [%s] %s %s", e.Timestamp, e.Level, e.Module, e.Message, formatDetails(e.Details))
	}
	return nil
}

func formatDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	return fmt.Sprint(details)
}
