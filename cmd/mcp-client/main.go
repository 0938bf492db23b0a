// Package main is a command line client for the aggregator. It connects to every server in
// the configuration file and lists, calls or reads what they expose.
//
//	mcp-client tools
//	mcp-client call add '{"a": 2, "b": 3}'
//	mcp-client read terminal local://file/notes.txt
//	mcp-client prompt terminal get_research_prompt query=pikachu
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/YongpengFu/mcp-server/internal/aggregator"
	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/observability"
	"github.com/YongpengFu/mcp-server/internal/session"
)

var (
	configFile = flag.StringP("config", "c", "mcp-servers.json", "Path to the MCP server configuration file")
	timeout    = flag.Duration("timeout", 2*time.Minute, "Overall deadline for the command")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  tools                              list the merged tool catalog
  resources                          list resources and templates per server
  call <tool> [json-arguments]       invoke a tool
  read <server> <uri>                read a resource from one server
  prompt <server> <name> [key=value] render a prompt

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	level := logging.LevelWarn
	if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New("mcp-client", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, logger, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if kind := customErrors.KindOf(err); kind != customErrors.KindUnknown {
			fmt.Fprintf(os.Stderr, "kind: %s\n", kind)
		}
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *logging.Logger, args []string) error {
	cfg, err := config.LoadConfig(*configFile, logger)
	if err != nil {
		return err
	}

	shutdown, err := observability.Setup(ctx, &cfg.Observability, logger)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	agg := aggregator.New(aggregator.OptionsFromConfig(cfg, logger))
	if err := agg.Configure(cfg.MCPServers); err != nil {
		return err
	}
	if _, err := agg.ConnectAll(ctx); err != nil {
		return err
	}
	defer func() { _ = agg.Close() }()

	failures := agg.Failures()
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "warning: server %s unavailable: %v\n", name, failures[name])
	}

	switch args[0] {
	case "tools":
		return listTools(agg)
	case "resources":
		return listResources(agg)
	case "call":
		if len(args) < 2 {
			return fmt.Errorf("call needs a tool name")
		}
		return callTool(ctx, agg, args[1], args[2:])
	case "read":
		if len(args) != 3 {
			return fmt.Errorf("read needs a server and a uri")
		}
		content, err := agg.ReadResource(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Println(content.Text)
		return nil
	case "prompt":
		if len(args) < 3 {
			return fmt.Errorf("prompt needs a server and a prompt name")
		}
		return renderPrompt(ctx, agg, args[1], args[2], args[3:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func listTools(agg *aggregator.Aggregator) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tSERVER\tDESCRIPTION")
	for _, tool := range agg.Tools() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name, tool.Server, firstLine(tool.Definition.Description))
	}
	return w.Flush()
}

func listResources(agg *aggregator.Aggregator) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVER\tURI\tNAME")
	for _, res := range agg.Resources() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", res.Server, res.URI, res.Name)
	}
	return w.Flush()
}

func callTool(ctx context.Context, agg *aggregator.Aggregator, name string, rest []string) error {
	var args map[string]interface{}
	if len(rest) > 0 {
		if err := json.Unmarshal([]byte(strings.Join(rest, " ")), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	result, err := agg.Invoke(ctx, name, args)
	if err != nil {
		return err
	}
	fmt.Println(session.ResultText(result))
	return nil
}

func renderPrompt(ctx context.Context, agg *aggregator.Aggregator, server, name string, pairs []string) error {
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("prompt argument %q is not key=value", pair)
		}
		args[key] = value
	}
	messages, err := agg.GetPrompt(ctx, server, name, args)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		fmt.Printf("[%s] %s\n", msg.Role, msg.Text)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
