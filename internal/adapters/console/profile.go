package console

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/target/cashier/internal/core"
)

//go:embed profiles/default.yaml
var defaultProfile []byte

// Profile holds every selector and path the console adapter uses. Selectors follow the
// Playwright selector syntax.
type Profile struct {
	Name         string           `yaml:"name"`
	Paths        Paths            `yaml:"paths"`
	Timeouts     Timeouts         `yaml:"timeouts"`
	Login        LoginForm        `yaml:"login"`
	Feedback     []string         `yaml:"feedback"`
	Search       SearchForm       `yaml:"search"`
	Listing      Listing          `yaml:"listing"`
	Operation    OperationForm    `yaml:"operation"`
	CreatePlayer CreatePlayerForm `yaml:"createPlayer"`
}

// Paths are resolved against the job base URL unless they are absolute.
type Paths struct {
	Login        string `yaml:"login"`
	Home         string `yaml:"home"`
	Players      string `yaml:"players"`
	CreatePlayer string `yaml:"createPlayer"`
}

type Timeouts struct {
	Login        time.Duration `yaml:"login"`
	Element      time.Duration `yaml:"element"`
	SearchSettle time.Duration `yaml:"searchSettle"`
}

type LoginForm struct {
	Username            string `yaml:"username"`
	Password            string `yaml:"password"`
	Submit              string `yaml:"submit"`
	AuthenticatedMarker string `yaml:"authenticatedMarker"`
}

// SearchForm filters the player listing. An empty Submit means the filter is applied with Enter.
type SearchForm struct {
	Input  string `yaml:"input"`
	Submit string `yaml:"submit"`
}

// Listing selectors. Identity, Balance and Actions are scoped to a single row. An empty action
// selector means the operation needs no control on the row.
type Listing struct {
	Row      string            `yaml:"row"`
	Identity string            `yaml:"identity"`
	Balance  string            `yaml:"balance"`
	Actions  map[string]string `yaml:"actions"`
}

type OperationForm struct {
	Ready      string `yaml:"ready"`
	Amount     string `yaml:"amount"`
	FullAmount string `yaml:"fullAmount"`
	Submit     string `yaml:"submit"`
}

type CreatePlayerForm struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
	Submit   string `yaml:"submit"`
}

// Action returns the row control selector for op.
func (p *Profile) Action(op core.Operation) string {
	return p.Listing.Actions[string(op)]
}

// Validate checks that every required selector is present and fills default timeouts.
func (p *Profile) Validate() error {
	var missing []string
	require := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	require("paths.login", p.Paths.Login)
	require("paths.players", p.Paths.Players)
	require("paths.createPlayer", p.Paths.CreatePlayer)
	require("login.username", p.Login.Username)
	require("login.password", p.Login.Password)
	require("login.submit", p.Login.Submit)
	require("login.authenticatedMarker", p.Login.AuthenticatedMarker)
	require("search.input", p.Search.Input)
	require("listing.row", p.Listing.Row)
	require("listing.identity", p.Listing.Identity)
	require("listing.actions.deposit", p.Action(core.OperationDeposit))
	require("listing.actions.withdrawal", p.Action(core.OperationWithdrawal))
	require("operation.amount", p.Operation.Amount)
	require("operation.submit", p.Operation.Submit)
	require("createPlayer.username", p.CreatePlayer.Username)
	require("createPlayer.password", p.CreatePlayer.Password)
	require("createPlayer.submit", p.CreatePlayer.Submit)
	if len(missing) > 0 {
		return fmt.Errorf("profile %q is missing required selectors: %s", p.Name, strings.Join(missing, ", "))
	}
	if len(p.Feedback) == 0 {
		return errors.New("profile must define at least one feedback selector")
	}

	if p.Timeouts.Login <= 0 {
		p.Timeouts.Login = 15 * time.Second
	}
	if p.Timeouts.Element <= 0 {
		p.Timeouts.Element = 10 * time.Second
	}
	if p.Timeouts.SearchSettle < 0 {
		return fmt.Errorf("timeouts.searchSettle must not be negative")
	}
	return nil
}

// ParseProfile decodes and validates a YAML profile. Unknown keys are rejected so typos in
// selector names fail at startup.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return &p, nil
}

// DefaultProfile returns the embedded profile.
func DefaultProfile() *Profile {
	p, err := ParseProfile(defaultProfile)
	if err != nil {
		panic(fmt.Sprintf("embedded console profile: %v", err))
	}
	return p
}

// LoadProfile reads a profile from path, or returns the embedded default when path is empty.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return ParseProfile(data)
}
