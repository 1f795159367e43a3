package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kbukum/whisper-subtitle/api"
	"github.com/kbukum/whisper-subtitle/auth"
	"github.com/kbukum/whisper-subtitle/bootstrap"
	"github.com/kbukum/whisper-subtitle/engine"
	"github.com/kbukum/whisper-subtitle/logger"
	"github.com/kbukum/whisper-subtitle/monitor"
	"github.com/kbukum/whisper-subtitle/observability"
	"github.com/kbukum/whisper-subtitle/scheduler"
	"github.com/kbukum/whisper-subtitle/server"
	"github.com/kbukum/whisper-subtitle/server/middleware"
	"github.com/kbukum/whisper-subtitle/service"
	"github.com/kbukum/whisper-subtitle/util"
	"github.com/kbukum/whisper-subtitle/version"
)

const usage = `usage: whisper-subtitle <command> [flags]

commands:
  serve        run the HTTP API, scheduler and channel monitor
  transcribe   transcribe audio or video files, or one video by --url
  engines      list transcription engines
  channels     channel operations (check)
  token        mint an API bearer token
  version      print build information
`

var stdout io.Writer = os.Stdout

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, usage)
		return errors.New("command required")
	}
	switch args[0] {
	case "serve":
		return runServe(args[1:])
	case "transcribe":
		return runTranscribe(args[1:])
	case "engines":
		return runEngines(args[1:])
	case "channels":
		return runChannels(args[1:])
	case "token":
		return runToken(args[1:])
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, version.Get().String())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	cfgPath := fs.String("config", "", "config file (default: search for config.yml)")
	return fs, cfgPath
}

// newApp loads configuration and creates the application. CLI commands
// other than serve log warnings only, so their output stays readable.
func newApp(cfgPath string, quiet bool) (*bootstrap.App[*AppConfig], error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	if quiet && cfg.Logging.Level == "" {
		cfg.Logging.Level = "warn"
	}
	var opts []bootstrap.Option
	if !quiet {
		opts = append(opts, bootstrap.WithSummaryOutput(os.Stdout))
	}
	return bootstrap.NewApp(cfg, opts...)
}

func runServe(args []string) error {
	fs, cfgPath := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	app, err := newApp(*cfgPath, false)
	if err != nil {
		return err
	}
	cfg := app.Cfg

	ctx := context.Background()
	shutdown, err := observability.Setup(ctx, cfg.Observability, cfg.Name, cfg.Version, cfg.Environment)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	app.OnStop(shutdown)

	st, err := newStack(app, true)
	if err != nil {
		return err
	}

	var parser middleware.TokenParser
	if cfg.Auth.Enabled {
		authSvc, err := auth.NewService(cfg.Auth)
		if err != nil {
			return err
		}
		parser = authSvc
	}

	srv := server.New(cfg.Server, app.Logger)
	app.OnConfigure(func(context.Context, *bootstrap.App[*AppConfig]) error {
		srv.RegisterSystemEndpoints(cfg.Name, app.Components.HealthAll, st.metrics.Registry())
		api.NewHandler(st.svc, cfg.API, app.Logger).
			Register(srv.Engine(), api.Middleware(parser, cfg.Server.RateLimit)...)
		for _, r := range srv.Routes() {
			app.Summary.TrackRoute(r.Method, r.Path)
		}
		app.Summary.Note("http %s:%d, max body %s, auth %t", cfg.Server.Host, cfg.Server.Port,
			util.FormatSize(util.ParseSize(cfg.Server.MaxBodySize, 0)), cfg.Auth.Enabled)
		app.OnReady(srv.Start)
		app.OnStop(srv.Stop)
		return nil
	})
	return app.Run(ctx)
}

func runTranscribe(args []string) error {
	fs, cfgPath := newFlagSet("transcribe")
	engineName := fs.String("engine", "", "engine name (default: engines.default)")
	model := fs.String("model", "", "model name")
	language := fs.String("language", "", "language code or auto")
	format := fs.String("format", "", "output format: srt, vtt, txt, json, none")
	output := fs.String("output", "", "output file, or directory when it has no extension (default: engines.output_dir)")
	url := fs.String("url", "", "download this video with yt-dlp and transcribe it")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case *url != "" && fs.NArg() > 0:
		return errors.New("pass either --url or input files, not both")
	case *url == "" && fs.NArg() == 0:
		fs.Usage()
		return errors.New("input file or --url required")
	}

	outDir, outFile := *output, ""
	if filepath.Ext(*output) != "" {
		if fs.NArg() > 1 {
			return errors.New("--output names a file; use a directory for several inputs")
		}
		outDir, outFile = filepath.Dir(*output), *output
	}

	app, err := newApp(*cfgPath, true)
	if err != nil {
		return err
	}
	st, err := newStack(app, false)
	if err != nil {
		return err
	}
	return app.RunTask(context.Background(), func(ctx context.Context) error {
		inputs := fs.Args()
		if *url != "" {
			inputs = []string{*url}
		}
		reqs := make([]service.TranscribeRequest, 0, len(inputs))
		for _, file := range inputs {
			reqs = append(reqs, service.TranscribeRequest{
				FilePath:     file,
				Engine:       *engineName,
				Model:        *model,
				Language:     *language,
				OutputFormat: *format,
				OutputDir:    outDir,
			})
		}
		if len(reqs) == 1 {
			transcribe := st.svc.TranscribeFile
			if *url != "" {
				transcribe = func(ctx context.Context, req service.TranscribeRequest) (*engine.Result, error) {
					return st.svc.TranscribeURL(ctx, *url, req)
				}
			}
			res, err := transcribe(ctx, reqs[0])
			if err != nil {
				return err
			}
			if outFile != "" && res.OutputPath != "" && res.OutputPath != outFile {
				if err := os.Rename(res.OutputPath, outFile); err != nil {
					return fmt.Errorf("move output: %w", err)
				}
				res.OutputPath = outFile
			}
			return printResults(*jsonOut, reqs, []*resultView{{res.Success, res.OutputPath, res.Error, res.Text}})
		}
		views := make([]*resultView, 0, len(reqs))
		for _, res := range st.svc.TranscribeBatch(ctx, reqs) {
			views = append(views, &resultView{res.Success, res.OutputPath, res.Error, res.Text})
		}
		return printResults(*jsonOut, reqs, views)
	})
}

type resultView struct {
	Success bool   `json:"success"`
	Output  string `json:"output_path,omitempty"`
	Error   string `json:"error,omitempty"`
	Text    string `json:"text,omitempty"`
}

func printResults(jsonOut bool, reqs []service.TranscribeRequest, views []*resultView) error {
	if jsonOut {
		return printJSON(views)
	}
	failed := 0
	for i, v := range views {
		switch {
		case !v.Success:
			failed++
			fmt.Fprintf(stdout, "FAIL %s: %s\n", reqs[i].FilePath, v.Error)
		case v.Output != "":
			fmt.Fprintf(stdout, "ok   %s -> %s\n", reqs[i].FilePath, v.Output)
		default:
			fmt.Fprintln(stdout, v.Text)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transcriptions failed", failed, len(views))
	}
	return nil
}

func runEngines(args []string) error {
	fs, cfgPath := newFlagSet("engines")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	app, err := newApp(*cfgPath, true)
	if err != nil {
		return err
	}
	st, err := newStack(app, false)
	if err != nil {
		return err
	}
	return app.RunTask(context.Background(), func(ctx context.Context) error {
		all := st.svc.ListEngines(ctx)
		if *jsonOut {
			return printJSON(all)
		}
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ENGINE\tREADY\tMODELS")
		for _, name := range names {
			d := all[name]
			marker := ""
			if name == app.Cfg.Engines.Default {
				marker = " (default)"
			}
			fmt.Fprintf(tw, "%s%s\t%t\t%s\n", name, marker, d.Ready, strings.Join(d.Models, ","))
		}
		return tw.Flush()
	})
}

func runChannels(args []string) error {
	if len(args) == 0 || args[0] != "check" {
		return errors.New("usage: whisper-subtitle channels check --id ID [--wait DURATION]")
	}
	fs, cfgPath := newFlagSet("channels check")
	id := fs.String("id", "", "channel handle, without @")
	wait := fs.Duration("wait", 0, "keep running until the scheduled downloads and transcriptions finish, at most this long")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		fs.Usage()
		return errors.New("--id is required")
	}

	app, err := newApp(*cfgPath, true)
	if err != nil {
		return err
	}
	st, err := newStack(app, true)
	if err != nil {
		return err
	}
	return app.RunTask(context.Background(), func(ctx context.Context) error {
		if _, err := st.svc.GetChannel(*id); err != nil {
			if _, err := st.svc.AddChannel(ctx, *id, "", nil); err != nil {
				return err
			}
		}
		videos, err := st.svc.CheckChannel(ctx, *id)
		if err != nil {
			return err
		}
		if len(videos) == 0 {
			fmt.Fprintf(stdout, "no new videos on @%s\n", *id)
			return nil
		}
		for _, v := range videos {
			fmt.Fprintf(stdout, "%s  %s  %s\n", v.ID, v.UploadDate, v.Title)
		}
		if *wait <= 0 {
			return nil
		}
		return waitForPipeline(ctx, st.sched, *wait, app.Logger)
	})
}

// waitForPipeline polls until no download or transcription task is pending
// or running, or until wait expires.
func waitForPipeline(ctx context.Context, sched *scheduler.Scheduler, wait time.Duration, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		open := 0
		for _, t := range sched.List(scheduler.ListOptions{}) {
			if t.Kind != monitor.KindDownload && t.Kind != monitor.KindTranscribe {
				continue
			}
			if t.Status == scheduler.StatusPending || t.Status == scheduler.StatusRunning {
				open++
			}
		}
		if open == 0 {
			fmt.Fprintln(stdout, "all videos processed")
			return nil
		}
		select {
		case <-ctx.Done():
			log.Warn("stopped waiting with work outstanding", logger.Fields("open_tasks", open))
			return fmt.Errorf("%d tasks still open after %s", open, wait)
		case <-ticker.C:
		}
	}
}

func runToken(args []string) error {
	fs, cfgPath := newFlagSet("token")
	subject := fs.String("subject", "cli", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	svc, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}
	token, err := svc.Generate(*subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
