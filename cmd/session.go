package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Candyboy02/bridge-link/internal/config"
	"github.com/Candyboy02/bridge-link/internal/files"
	"github.com/Candyboy02/bridge-link/internal/logging"
	"github.com/Candyboy02/bridge-link/internal/session"
	"github.com/Candyboy02/bridge-link/internal/signaling"
	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/Candyboy02/bridge-link/internal/ui"
	"github.com/Candyboy02/bridge-link/internal/utils"
	"github.com/Candyboy02/bridge-link/internal/webrtc"
	"github.com/spf13/cobra"
)

const connectTimeout = 15 * time.Second

// sessionFlags are the flags of create and join.
type sessionFlags struct {
	send     []string
	headless bool
	dir      string
	zip      bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.send, "send", nil, "Send this file once connected (repeatable)")
	cmd.Flags().BoolVar(&f.headless, "headless", false, "Print events line by line instead of the chat screen")
	cmd.Flags().StringVar(&f.dir, "dir", "", "Directory to save received files")
	cmd.Flags().BoolVarP(&f.zip, "zip", "z", false, "Zip received files on exit")
}

// startFunc creates or joins a room on ctrl and returns the room code.
type startFunc func(ctx context.Context, cfg *config.Config, ctrl *session.Controller) (string, error)

// runSession is the whole life of create and join: validate the files to
// send, connect to the relay, start the link, run the chat and clean up.
func runSession(ctx context.Context, flags *sessionFlags, start startFunc) error {
	cfg, err := loadConfig(func(o *config.Options) { o.DownloadDir = flags.dir })
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return transfer.NewError("validate config", err)
	}

	closeLog, err := setupLogging(flags.headless)
	if err != nil {
		return err
	}
	defer closeLog()

	var queued []files.FileInfo
	if len(flags.send) > 0 {
		queued, err = files.ValidateFiles(flags.send)
		if err != nil {
			return err
		}
		displayFileTable(queued)
	}

	relay, err := connectRelay(ctx, cfg)
	if err != nil {
		return err
	}
	defer relay.Close()

	logger := slog.Default()
	ctrl, err := session.New(session.Options{
		Signaling:    relay,
		NewTransport: webrtc.NewFactory(webrtc.OptionsFromConfig(cfg, logger)),
		Transfer: transfer.Config{
			ChunkSize:     cfg.ChunkSize,
			HighWaterMark: cfg.HighWaterMark,
		},
		Heartbeat:       cfg.Heartbeat,
		DisconnectGrace: cfg.DisconnectGrace,
		Logger:          logger,
	})
	if err != nil {
		return transfer.NewError("create session", err)
	}
	defer ctrl.Close()

	roomID, err := start(ctx, cfg, ctrl)
	if err != nil {
		return err
	}

	saveDir := cfg.DownloadDir
	if flags.zip {
		saveDir, err = os.MkdirTemp("", "bridgelink-receive-*")
		if err != nil {
			return transfer.NewError("create temp dir", err)
		}
		defer os.RemoveAll(saveDir)
	}

	r := newSessionRunner(ctx, ctrl, saveDir, queued)
	if flags.headless {
		err = r.runHeadless(os.Stdin, os.Stdout)
	} else {
		err = ui.RunChat(ui.ChatOptions{
			RoomID:   roomID,
			Events:   r.pump(),
			Tracker:  r.tracker,
			SendText: ctrl.SendText,
			SendFile: r.sendPath,
			SaveFile: r.saveFile,
		})
	}
	ctrl.Close()
	if err != nil {
		return err
	}

	if flags.zip {
		if err := zipReceived(r.tracker.SavedPaths(), cfg.DownloadDir); err != nil {
			return err
		}
	}
	ui.RenderTransferSummary(r.tracker.Records())
	return nil
}

// setupLogging keeps log output off the terminal while the chat screen
// owns it, unless a log file was given.
func setupLogging(headless bool) (func() error, error) {
	if rootFlags.logFile != "" {
		return logging.ToFile(rootFlags.logFile)
	}
	if !headless {
		logging.Discard()
	}
	return func() error { return nil }, nil
}

func displayFileTable(infos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(infos))
	for i, f := range infos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	fmt.Println()
	fmt.Println(ui.FileTableView(items))
	ui.PrintInfof("%d file(s), %s in total", len(infos), utils.FormatSize(files.TotalSize(infos)))
}

func connectRelay(ctx context.Context, cfg *config.Config) (*signaling.RelayChannel, error) {
	fmt.Println()
	s := ui.NewConnectionSpinner("Connecting to relay...")
	s.Start()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	relay := signaling.NewRelayChannel(cfg.ServerURL, cfg.Namespace, slog.Default())
	if err := relay.Connect(dialCtx); err != nil {
		s.Error("Could not reach the relay")
		return nil, transfer.NewError("connect to relay", err)
	}
	s.Success(fmt.Sprintf("Connected to %s", cfg.ServerURL))
	return relay, nil
}

func zipReceived(paths []string, outputDir string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return transfer.NewError("create output dir", err)
	}
	zipName := filepath.Join(outputDir, fmt.Sprintf("bridgelink-download-%d.zip", time.Now().UnixMilli()))

	fmt.Println()
	s := ui.NewWaitingSpinner("Zipping files...")
	s.Start()
	if err := utils.ZipFiles(paths, zipName); err != nil {
		s.Error("Zipping failed")
		return transfer.NewError("zip files", err)
	}
	s.Success(fmt.Sprintf("Files zipped to %s", zipName))
	return nil
}

// sessionRunner connects one controller to the terminal.
type sessionRunner struct {
	ctx     context.Context
	ctrl    *session.Controller
	tracker *ui.Tracker
	saveDir string
	queued  []files.FileInfo
	notes   chan string
}

func newSessionRunner(ctx context.Context, ctrl *session.Controller, saveDir string, queued []files.FileInfo) *sessionRunner {
	return &sessionRunner{
		ctx:     ctx,
		ctrl:    ctrl,
		tracker: ui.NewTracker(),
		saveDir: saveDir,
		queued:  queued,
		notes:   make(chan string, 16),
	}
}

// sendPath validates path and sends it, blocking until done.
func (r *sessionRunner) sendPath(path string) error {
	info, err := files.Validate(path)
	if err != nil {
		return err
	}
	return r.send(info)
}

func (r *sessionRunner) send(info files.FileInfo) error {
	src, f, err := info.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	return r.ctrl.SendFile(r.ctx, src)
}

func (r *sessionRunner) saveFile(f transfer.File) (string, error) {
	return transfer.SaveFile(r.saveDir, f)
}

// sendQueued sends the --send files one after another.
func (r *sessionRunner) sendQueued() {
	for _, info := range r.queued {
		if err := r.send(info); err != nil {
			r.tracker.Fail(info.Name, err)
			r.note(fmt.Sprintf("Could not send %s: %v", info.Name, err))
		}
	}
}

func (r *sessionRunner) note(text string) {
	select {
	case r.notes <- text:
	case <-r.ctx.Done():
	}
}

// pump forwards controller events and starts the queued sends the first
// time the channel becomes ready. Failures of queued sends come out as
// system events. The returned channel closes when the controller's event
// stream ends or ctx is done.
func (r *sessionRunner) pump() <-chan session.Event {
	out := make(chan session.Event)
	events := r.ctrl.Events()

	go func() {
		defer close(out)
		started := false
		for {
			var ev session.Event
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				ev = e
			case text := <-r.notes:
				ev = session.Event{Kind: session.EventSystem, Text: text}
			case <-r.ctx.Done():
				return
			}

			if ev.Kind == session.EventReady && !started && len(r.queued) > 0 {
				started = true
				go r.sendQueued()
			}

			select {
			case out <- ev:
			case <-r.ctx.Done():
				return
			}
		}
	}()
	return out
}

// runHeadless prints events as plain lines and reads chat input from in,
// one message or command per line. It returns on /quit, when ctx is done
// or when the session ends.
func (r *sessionRunner) runHeadless(in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-r.ctx.Done():
				return
			}
		}
	}()

	p := &headlessPrinter{out: out}
	events := r.pump()
	for {
		select {
		case <-r.ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.tracker.Observe(ev)
			p.print(ev)
			if ev.Kind == session.EventFileReceived {
				path, err := r.saveFile(ev.File)
				if err != nil {
					p.line("error", fmt.Sprintf("could not save %s: %v", ev.File.Name, err))
					continue
				}
				r.tracker.Saved(ev.File.Name, path)
				p.line("saved", path)
			}

		case line := <-lines:
			if quit := r.handleLine(strings.TrimSpace(line), p); quit {
				return nil
			}
		}
	}
}

func (r *sessionRunner) handleLine(line string, p *headlessPrinter) bool {
	switch {
	case line == "":
	case line == "/quit":
		return true
	case strings.HasPrefix(line, "/send "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/send "))
		go func() {
			if err := r.sendPath(path); err != nil {
				r.tracker.Fail(filepath.Base(path), err)
				r.note(fmt.Sprintf("Could not send %s: %v", filepath.Base(path), err))
			}
		}()
	default:
		if err := r.ctrl.SendText(line); err != nil {
			p.line("error", fmt.Sprintf("message not sent: %v", err))
		}
	}
	return false
}

// headlessPrinter writes one line per event, with progress reduced to
// quarter steps.
type headlessPrinter struct {
	out  io.Writer
	last map[transfer.Direction]int
}

func (p *headlessPrinter) line(tag, text string) {
	fmt.Fprintf(p.out, "%s %-8s %s\n", time.Now().Format("15:04:05"), tag, text)
}

func (p *headlessPrinter) print(ev session.Event) {
	switch ev.Kind {
	case session.EventState:
		p.line("state", ev.State.String())
	case session.EventReady:
		p.line("ready", "data channel open")
	case session.EventText:
		p.line("peer", ev.Text)
	case session.EventSystem:
		p.line("system", ev.Text)
	case session.EventProgress:
		if p.last == nil {
			p.last = make(map[transfer.Direction]int)
		}
		pr := ev.Progress
		last, seen := p.last[pr.Direction]
		if !seen || pr.Percent < last {
			last = -25
		}
		if pr.Percent-last >= 25 || (pr.Percent == 100 && last != 100) {
			p.last[pr.Direction] = pr.Percent
			p.line("progress", fmt.Sprintf("%s %s %d%% (%s/%s)", pr.Direction, pr.Name, pr.Percent,
				utils.FormatSize(pr.Bytes), utils.FormatSize(pr.Total)))
		}
	}
}
