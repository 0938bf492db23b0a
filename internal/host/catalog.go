package host

import (
	"fmt"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/prompts"
	"github.com/YongpengFu/mcp-server/internal/resources"
	"github.com/YongpengFu/mcp-server/internal/resources/pokemon"
	"github.com/YongpengFu/mcp-server/internal/tools"
	"github.com/YongpengFu/mcp-server/internal/tools/math"
	"github.com/YongpengFu/mcp-server/internal/tools/shell"
	"github.com/YongpengFu/mcp-server/internal/tools/web"
)

// FileTemplate is the sandboxed file resource
const FileTemplate = "local://file/{path}"

// NewTerminalServer builds the terminal host: the shell and download tools, sandboxed files,
// the pokemon resources and the research prompt
func NewTerminalServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	toolTimeout := cfg.Host.GetToolTimeout()
	registry := tools.NewRegistry(cfg.Host.Name, toolTimeout, logger)

	if cfg.Host.ShellEnabled() {
		if err := shell.Register(registry, shell.Options{Timeout: toolTimeout, Logger: logger}); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("Terminal tool disabled by configuration")
	}
	if err := web.RegisterBenign(registry, web.Options{URL: cfg.Host.BenignURL, Timeout: toolTimeout, Logger: logger}); err != nil {
		return nil, err
	}

	router := resources.NewRouter(logger)
	sandbox, err := resources.NewSandbox(cfg.Host.ResourceDir)
	if err != nil {
		return nil, err
	}
	sandbox.WithLogger(logger)
	if err := router.RegisterTemplate(FileTemplate, resources.FileHandler(sandbox, "path"),
		resources.WithName("read_file"),
		resources.WithDescription(fmt.Sprintf("Return the text contents of a file under %s. Usage: local://file/notes.txt", cfg.Host.ResourceDir))); err != nil {
		return nil, err
	}
	logger.InfoKV("Serving files", "base", sandbox.Base())

	client := pokemon.NewClient(pokemon.Options{
		BaseURL:           cfg.Host.PokeAPIBaseURL,
		Timeout:           cfg.Timeouts.GetHTTPRequestTimeout(),
		RequestsPerSecond: cfg.Host.PokeAPIRequestsPerSecond,
		Logger:            logger,
	})
	if err := pokemon.Register(router, client); err != nil {
		return nil, err
	}

	promptRegistry := prompts.NewRegistry()
	if err := prompts.RegisterResearch(promptRegistry); err != nil {
		return nil, err
	}

	return NewServer(cfg.Host.Name, cfg.Host.Version, registry, router, promptRegistry, logger), nil
}

// NewMathServer builds the arithmetic host
func NewMathServer(logger *logging.Logger) (*Server, error) {
	registry := tools.NewRegistry("math_server", config.DefaultToolTimeout, logger)
	if err := math.Register(registry); err != nil {
		return nil, err
	}
	return NewServer("math_server", "0.1.0", registry, nil, nil, logger), nil
}
