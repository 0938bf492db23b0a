// Package pokemon serves PokeAPI data as resources
package pokemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	httpClient "github.com/YongpengFu/mcp-server/internal/common/http"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/resources"
)

// Resource templates served by this package
const (
	PokemonTemplate  = "pokemon://pokemon/{pokemon_id}"
	TypeTemplate     = "pokemon://types/{type_name}"
	StartersTemplate = "pokemon://starters"
)

const (
	maxMoves       = 10
	maxTypeMembers = 10
	mimeJSON       = "application/json"
)

var starters = map[string]string{
	"1": "Bulbasaur",
	"2": "Ivysaur",
	"3": "Venusaur",
	"4": "Charmander",
	"5": "Charmeleon",
	"6": "Charizard",
	"7": "Squirtle",
}

// Options configures the PokeAPI client
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Logger            *logging.Logger
}

// Client fetches and condenses PokeAPI responses
type Client struct {
	http    *httpClient.Client
	baseURL string
	logger  *logging.Logger
}

// NewClient creates a PokeAPI client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultPokeAPIBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultUpstreamTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	logger := opts.Logger.WithName("pokeapi")

	clientOpts := httpClient.DefaultOptions()
	clientOpts.Service = "pokeapi"
	clientOpts.Timeout = opts.Timeout
	clientOpts.MaxRetries = 0
	clientOpts.RequestsPerSecond = opts.RequestsPerSecond
	clientOpts.Burst = 1
	clientOpts.RequestLogger = func(method, url string, _ []byte) {
		logger.DebugKV("PokeAPI request", "method", method, "url", url)
	}

	return &Client{
		http:    httpClient.NewClient(clientOpts),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger,
	}
}

// Pokemon is the condensed view of one pokemon
type Pokemon struct {
	ID        int               `json:"id"`
	Name      string            `json:"name"`
	Height    int               `json:"height"`
	Weight    int               `json:"weight"`
	Types     []string          `json:"types"`
	Abilities []string          `json:"abilities"`
	Stats     map[string]int    `json:"stats"`
	Moves     []string          `json:"moves"`
	Sprites   map[string]string `json:"sprites"`
	AppURI    string            `json:"app_uri"`
}

// TypeSummary lists the first pokemon of a type
type TypeSummary struct {
	Type         string   `json:"type"`
	TypeID       int      `json:"type_id"`
	PokemonCount int      `json:"pokemon_count"`
	Showing      int      `json:"showing"`
	Pokemon      []string `json:"pokemon"`
	AppURI       string   `json:"app_uri"`
}

// StarterList is the static starter catalog
type StarterList struct {
	Starters    map[string]string `json:"starters"`
	Count       int               `json:"count"`
	Description string            `json:"description"`
}

type named struct {
	Name string `json:"name"`
}

type apiPokemon struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Height int    `json:"height"`
	Weight int    `json:"weight"`
	Types  []struct {
		Type named `json:"type"`
	} `json:"types"`
	Abilities []struct {
		Ability named `json:"ability"`
	} `json:"abilities"`
	Stats []struct {
		BaseStat int   `json:"base_stat"`
		Stat     named `json:"stat"`
	} `json:"stats"`
	Moves []struct {
		Move named `json:"move"`
	} `json:"moves"`
	Sprites map[string]interface{} `json:"sprites"`
}

type apiType struct {
	ID      int `json:"id"`
	Pokemon []struct {
		Pokemon named `json:"pokemon"`
	} `json:"pokemon"`
}

// Pokemon fetches one pokemon by id or name
func (c *Client) Pokemon(ctx context.Context, id string) (*Pokemon, error) {
	appURI := fmt.Sprintf("%s/pokemon/%s", c.baseURL, url.PathEscape(id))

	var data apiPokemon
	if err := c.get(ctx, appURI, &data, fmt.Sprintf("Pokemon %s not found", id)); err != nil {
		return nil, err
	}

	p := &Pokemon{
		ID:        data.ID,
		Name:      capitalize(data.Name),
		Height:    data.Height,
		Weight:    data.Weight,
		Types:     make([]string, 0, len(data.Types)),
		Abilities: make([]string, 0, len(data.Abilities)),
		Stats:     make(map[string]int, len(data.Stats)),
		Moves:     make([]string, 0, maxMoves),
		Sprites:   make(map[string]string),
		AppURI:    appURI,
	}
	for _, t := range data.Types {
		p.Types = append(p.Types, t.Type.Name)
	}
	for _, a := range data.Abilities {
		p.Abilities = append(p.Abilities, a.Ability.Name)
	}
	for _, s := range data.Stats {
		p.Stats[s.Stat.Name] = s.BaseStat
	}
	for i, m := range data.Moves {
		if i == maxMoves {
			break
		}
		p.Moves = append(p.Moves, m.Move.Name)
	}
	for key, value := range data.Sprites {
		if s, ok := value.(string); ok && s != "" {
			p.Sprites[key] = s
		}
	}
	return p, nil
}

// Type fetches the first pokemon of a type
func (c *Client) Type(ctx context.Context, name string) (*TypeSummary, error) {
	appURI := fmt.Sprintf("%s/type/%s", c.baseURL, url.PathEscape(strings.ToLower(name)))

	var data apiType
	if err := c.get(ctx, appURI, &data, fmt.Sprintf("Type %s not found", name)); err != nil {
		return nil, err
	}

	showing := data.Pokemon
	if len(showing) > maxTypeMembers {
		showing = showing[:maxTypeMembers]
	}
	summary := &TypeSummary{
		Type:         capitalize(name),
		TypeID:       data.ID,
		PokemonCount: len(data.Pokemon),
		Showing:      len(showing),
		Pokemon:      make([]string, 0, len(showing)),
		AppURI:       appURI,
	}
	for _, p := range showing {
		summary.Pokemon = append(summary.Pokemon, p.Pokemon.Name)
	}
	return summary, nil
}

// Starters returns the static starter catalog
func Starters() StarterList {
	list := make(map[string]string, len(starters))
	for k, v := range starters {
		list[k] = v
	}
	return StarterList{
		Starters:    list,
		Count:       len(list),
		Description: "Original starter Pokemon from the demo data",
	}
}

func (c *Client) get(ctx context.Context, uri string, target interface{}, notFound string) error {
	_, err := c.http.GetJSON(ctx, uri, target)
	if err == nil {
		return nil
	}

	var svcErr *customErrors.ServiceError
	switch {
	case errors.As(err, &svcErr) && errors.Is(err, customErrors.ErrNotFound):
		return customErrors.NewResourceError(customErrors.KindNotFound, notFound)
	case errors.As(err, &svcErr):
		return customErrors.NewResourceErrorf(customErrors.KindUpstream, "API error: %d", svcErr.StatusCode).
			WithData("status", svcErr.StatusCode)
	case errors.Is(err, context.Canceled):
		return customErrors.WrapResourceError(err, customErrors.KindCancelled, "request cancelled")
	default:
		c.logger.WarnKV("PokeAPI request failed", "url", uri, "error", err)
		return customErrors.NewResourceErrorf(customErrors.KindUpstream, "Network error: %v", err)
	}
}

// Register adds the pokemon resources to router
func Register(router *resources.Router, client *Client) error {
	if err := router.RegisterTemplate(PokemonTemplate, func(ctx context.Context, uri string, params map[string]string) (*resources.Content, error) {
		p, err := client.Pokemon(ctx, params["pokemon_id"])
		if err != nil {
			return nil, err
		}
		return jsonContent(uri, p)
	}, resources.WithName("get_pokemon"),
		resources.WithDescription("Get detailed information about a specific Pokemon by ID"),
		resources.WithMIMEType(mimeJSON)); err != nil {
		return err
	}

	if err := router.RegisterTemplate(TypeTemplate, func(ctx context.Context, uri string, params map[string]string) (*resources.Content, error) {
		t, err := client.Type(ctx, params["type_name"])
		if err != nil {
			return nil, err
		}
		return jsonContent(uri, t)
	}, resources.WithName("get_pokemon_by_type"),
		resources.WithDescription("Get all Pokemon of a given type"),
		resources.WithMIMEType(mimeJSON)); err != nil {
		return err
	}

	return router.RegisterTemplate(StartersTemplate, func(_ context.Context, uri string, _ map[string]string) (*resources.Content, error) {
		return jsonContent(uri, Starters())
	}, resources.WithName("get_starters"),
		resources.WithDescription("Get all starter Pokemon"),
		resources.WithMIMEType(mimeJSON))
}

func jsonContent(uri string, v interface{}) (*resources.Content, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, customErrors.WrapResourceError(err, customErrors.KindUpstream, "failed to encode resource")
	}
	return &resources.Content{URI: uri, MIMEType: mimeJSON, Text: string(data)}, nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
