package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"anypush/internal/app"
	"anypush/internal/content"
	"anypush/internal/notice"
	"anypush/internal/settings"
)

const usage = `usage: anypush [-config path] <command> [args]

commands:
  init                     seed default settings
  push-text [-url u] [-title t] <text>
  push-url [-title t] <url>
  test <service>           send a test message (wechat, bark)
  export [-o file]         write all settings as JSON
  import <file>            replace settings keys from a JSON export
  reset                    clear all settings and seed defaults
  save <file>              validate and save a settings bundle, then sync
  sync push|pull           upload or download settings via WebDAV
  secret set <name>        store a secret read from stdin in the keyring
  serve                    run the HTTP API, Telegram bot and sync schedule
`

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json or yaml")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	code := run(ctx, a, flag.Arg(0), flag.Args()[1:])
	_ = a.Close()
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, cmd string, args []string) int {
	var err error
	switch cmd {
	case "init":
		fmt.Println("settings initialized")
	case "push-text":
		err = pushText(ctx, a, args)
	case "push-url":
		err = pushURL(ctx, a, args)
	case "test":
		if len(args) != 1 {
			err = errors.New("usage: test <service>")
			break
		}
		err = report(a.Test(ctx, args[0]))
	case "export":
		err = export(ctx, a, args)
	case "import":
		err = importFile(ctx, a, args)
	case "reset":
		if err = a.ResetSettings(ctx); err == nil {
			fmt.Println("settings reset")
		}
	case "save":
		err = save(ctx, a, args)
	case "sync":
		err = syncCmd(ctx, a, args)
	case "secret":
		err = secret(a, args)
	case "serve":
		err = a.Serve(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func pushText(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("push-text", flag.ContinueOnError)
	srcURL := fs.String("url", "", "source page URL")
	title := fs.String("title", "", "source page title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")
	if fs.NArg() == 0 || text == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to push")
	}
	return report(a.PushText(ctx, text, content.Source{URL: *srcURL, Title: *title}))
}

func pushURL(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("push-url", flag.ContinueOnError)
	title := fs.String("title", "", "page title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: push-url [-title t] <url>")
	}
	return report(a.PushURL(ctx, fs.Arg(0), *title))
}

func export(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("o", "", "output file (default: anypush-config-<date>.json, - for stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, err := a.ExportSettings(ctx)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = settings.ExportFileName(time.Now())
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	fmt.Println("exported to", path)
	return nil
}

func importFile(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: import <file>")
	}
	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	keys, err := a.ImportSettings(ctx, data)
	if err != nil {
		return err
	}
	fmt.Println("imported:", strings.Join(keys, ", "))
	return nil
}

func save(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: save <file>")
	}
	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	var b settings.Bundle
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	if _, err := a.SaveSettings(ctx, b); err != nil {
		return err
	}
	fmt.Println("settings saved")
	return nil
}

func syncCmd(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: sync push|pull")
	}
	switch args[0] {
	case "push":
		sent, err := a.SyncPush(ctx)
		if err != nil {
			return err
		}
		if !sent {
			fmt.Println("nothing to do for the configured sync type")
			return nil
		}
		fmt.Println("settings uploaded")
	case "pull":
		keys, err := a.SyncPull(ctx)
		if err != nil {
			return err
		}
		fmt.Println("downloaded:", strings.Join(keys, ", "))
	default:
		return fmt.Errorf("unknown sync direction %q", args[0])
	}
	return nil
}

func secret(a *app.App, args []string) error {
	if len(args) != 2 || args[0] != "set" {
		return errors.New("usage: secret set <name>")
	}
	fmt.Fprint(os.Stderr, "value: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return errors.New("empty secret")
	}
	if err := a.SetSecret(args[1], value); err != nil {
		return err
	}
	fmt.Printf("stored; reference it as keyring:%s\n", args[1])
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// report prints every notice and fails when nothing was delivered.
func report(r notice.Report) error {
	for _, t := range r.Texts() {
		fmt.Println(t)
	}
	for _, s := range r.Services {
		status := "ok"
		if !s.OK {
			status = "failed: " + s.Error
		}
		fmt.Printf("  %s (%s) %s [%dms]\n", s.Name, s.Service, status, s.DurationMS)
	}
	if r.Failure > 0 || r.Success == 0 {
		return errors.New("push incomplete")
	}
	return nil
}
