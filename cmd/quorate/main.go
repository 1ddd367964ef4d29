// Copyright 2026 The Quorate Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/quorate/quorate/lib/clock"
	"github.com/quorate/quorate/lib/graph"
	"github.com/quorate/quorate/lib/keystore"
	"github.com/quorate/quorate/lib/share"
	"github.com/quorate/quorate/lib/team"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], out)
	case "create":
		return runCreate(args[1:], out)
	case "inspect":
		return runInspect(args[1:], out)
	case "members":
		return runMembers(args[1:], out)
	case "invite":
		return runInvite(args[1:], out)
	case "shares":
		return runShares(args[1:], out)
	case "version":
		fmt.Fprintf(out, "quorate %s\n", version)
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: quorate <subcommand> [flags]

Subcommands:
  keygen    Generate a user/device identity and seal it to a file
  create    Create a new team and write its serialized graph
  inspect   Print the links of a serialized team graph
  members   Print the membership of a serialized team graph
  invite    Issue an invitation on a team
  shares    List the shares in the local store
  version   Print version information

The sealed identity passphrase is read from QUORATE_PASSPHRASE.
Run 'quorate <subcommand> --help' for subcommand flags.
`)
}

func passphrase() (string, error) {
	p := os.Getenv("QUORATE_PASSPHRASE")
	if p == "" {
		return "", fmt.Errorf("QUORATE_PASSPHRASE is not set")
	}
	return p, nil
}

// loadIdentity opens the sealed identity bundle named by the flags or
// config.
func loadIdentity(cfg *Config, path string) (team.Context, error) {
	if path == "" {
		path = cfg.IdentityPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return team.Context{}, fmt.Errorf("reading identity %s: %w", path, err)
	}
	pass, err := passphrase()
	if err != nil {
		return team.Context{}, err
	}
	return keystore.Import(data, pass)
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func runKeygen(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to quorate.yaml")
	userID := flags.String("user", "", "user id for the new identity")
	deviceID := flags.String("device", "", "device id for the new identity")
	outPath := flags.String("out", "", "file to write the sealed identity to")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *deviceID == "" {
		return fmt.Errorf("--user and --device are required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	path := *outPath
	if path == "" {
		path = cfg.IdentityPath
	}
	pass, err := passphrase()
	if err != nil {
		return err
	}

	ctx, err := team.NewContext(*userID, *deviceID)
	if err != nil {
		return err
	}
	sealed, err := keystore.Export(ctx, pass)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return fmt.Errorf("writing identity: %w", err)
	}
	fmt.Fprintf(out, "identity %s/%s written to %s\n", *userID, *deviceID, path)
	return nil
}

func runCreate(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("create", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to quorate.yaml")
	identityPath := flags.String("identity", "", "sealed identity file")
	name := flags.String("name", "", "team name")
	outPath := flags.String("out", "", "file to write the team graph to")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *name == "" || *outPath == "" {
		return fmt.Errorf("--name and --out are required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	ctx, err := loadIdentity(cfg, *identityPath)
	if err != nil {
		return err
	}

	t, err := team.New(*name, ctx, clock.Real(), cliLogger())
	if err != nil {
		return err
	}
	data, err := t.Save()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o600); err != nil {
		return fmt.Errorf("writing team graph: %w", err)
	}
	fmt.Fprintf(out, "team %q (%s) written to %s\n", t.Name(), t.ID(), *outPath)
	return nil
}

func runInspect(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: quorate inspect <graph-file>")
	}
	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return err
	}
	g, err := graph.Deserialize(data)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("graph fails validation: %w", err)
	}
	links, err := g.Sequence(team.StrongRemove(cliLogger()))
	if err != nil {
		return err
	}
	fmt.Fprint(out, formatChain(g, links))
	return nil
}

// formatChain renders a linearized graph, one link per line.
func formatChain(g *graph.Graph, links []*graph.Link) string {
	var b strings.Builder
	fmt.Fprintf(&b, "root %s\nhead %s\n%d links\n\n", g.Root, g.Head, len(g.Links))
	for i, link := range links {
		at := time.UnixMilli(link.Body.Timestamp).UTC().Format(time.RFC3339)
		author := link.Body.Author.UserID
		if author == "" {
			author = "-"
		}
		fmt.Fprintf(&b, "%3d  %s  %-20s %-12s %s\n",
			i, shortHash(link.Hash().String()), link.Body.Type, author, at)
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func runMembers(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("members", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: quorate members <graph-file>")
	}
	data, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		return err
	}
	// Reading membership needs no local keys; an empty identity can
	// replay the graph.
	t, err := team.Load(data, team.Context{}, clock.Real(), cliLogger())
	if err != nil {
		return err
	}
	fmt.Fprint(out, formatMembers(t))
	return nil
}

func formatMembers(t *team.Team) string {
	state := t.State()
	var b strings.Builder
	fmt.Fprintf(&b, "team %q\n", state.TeamName)
	for _, m := range state.Members {
		roles := strings.Join(m.Roles, ",")
		if roles == "" {
			roles = "-"
		}
		fmt.Fprintf(&b, "  %-16s keys#%d  roles %s\n", m.UserID, m.Keys.Generation, roles)
		for _, d := range m.Devices {
			fmt.Fprintf(&b, "    device %s\n", d.DeviceID)
		}
	}
	for _, s := range state.Servers {
		fmt.Fprintf(&b, "  server %s keys#%d\n", s.Host, s.Keys.Generation)
	}
	for _, m := range state.RemovedMembers {
		fmt.Fprintf(&b, "  removed %s\n", m.UserID)
	}
	return b.String()
}

func runInvite(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("invite", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to quorate.yaml")
	identityPath := flags.String("identity", "", "sealed identity file")
	graphPath := flags.String("team", "", "team graph file (updated in place)")
	userID := flags.String("user", "", "bind the invitation to this user id")
	maxUses := flags.Int("max-uses", 1, "admissions allowed under this invitation")
	ttl := flags.Duration("ttl", 0, "expiry, 0 for none")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *graphPath == "" {
		return fmt.Errorf("--team is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	ctx, err := loadIdentity(cfg, *identityPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*graphPath)
	if err != nil {
		return err
	}
	t, err := team.Load(data, ctx, clock.Real(), cliLogger())
	if err != nil {
		return err
	}

	seed, err := t.Invite(*userID, *maxUses, *ttl)
	if err != nil {
		return err
	}
	updated, err := t.Save()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*graphPath, updated, 0o600); err != nil {
		return fmt.Errorf("writing team graph: %w", err)
	}
	fmt.Fprintf(out, "%s\n", seed)
	return nil
}

func runShares(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("shares", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to quorate.yaml")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := share.OpenSQLite(cfg.StorePath, cliLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := store.List(context.Background())
	if err != nil {
		return err
	}
	sort.Strings(ids)
	for _, id := range ids {
		record, err := store.Load(context.Background(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %d graph bytes, %d documents\n",
			id, len(record.Graph), len(record.DocumentIDs))
	}
	return nil
}
