package dashboard

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nast-payroll/portal/internal/session"
)

//go:embed menus.yaml
var menusYAML []byte

// SourceAudit marks a page served from the session audit log instead of
// the backend.
const SourceAudit = "audit"

// ErrNoEmployee is returned when an endpoint needs {empId} and the session
// has none.
var ErrNoEmployee = errors.New("dashboard: session has no employee record")

// Column is one table column of a resource page.
type Column struct {
	Key   string `yaml:"key"`
	Label string `yaml:"label"`
}

// Card is one count on a role dashboard.
type Card struct {
	Label    string `yaml:"label"`
	Endpoint string `yaml:"endpoint"`
}

// Page is one menu entry of a role area.
type Page struct {
	Slug     string   `yaml:"slug"`
	Label    string   `yaml:"label"`
	Endpoint string   `yaml:"endpoint"`
	Source   string   `yaml:"source"`
	Columns  []Column `yaml:"columns"`
}

// Menu describes a role area.
type Menu struct {
	Title   string `yaml:"title"`
	Summary []Card `yaml:"summary"`
	Pages   []Page `yaml:"pages"`
}

// Catalog maps an area requirement, lower-cased, to its menu.
type Catalog map[string]Menu

// DefaultCatalog parses the embedded menu table.
func DefaultCatalog() (Catalog, error) {
	return LoadCatalog(menusYAML)
}

// LoadCatalog parses and validates a menu table.
func LoadCatalog(data []byte) (Catalog, error) {
	var raw map[string]Menu
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("dashboard: parse menus: %w", err)
	}
	catalog := make(Catalog, len(raw))
	for key, menu := range raw {
		if err := validateMenu(key, menu); err != nil {
			return nil, err
		}
		catalog[strings.ToLower(key)] = menu
	}
	return catalog, nil
}

func validateMenu(key string, menu Menu) error {
	if menu.Title == "" {
		return fmt.Errorf("dashboard: menu %q: missing title", key)
	}
	for _, card := range menu.Summary {
		if !strings.HasPrefix(card.Endpoint, "/") {
			return fmt.Errorf("dashboard: menu %q: card %q: endpoint must start with /", key, card.Label)
		}
	}
	seen := make(map[string]struct{}, len(menu.Pages))
	for _, page := range menu.Pages {
		if page.Slug == "" || page.Slug == "dashboard" || strings.Contains(page.Slug, "/") {
			return fmt.Errorf("dashboard: menu %q: invalid slug %q", key, page.Slug)
		}
		if _, dup := seen[page.Slug]; dup {
			return fmt.Errorf("dashboard: menu %q: duplicate slug %q", key, page.Slug)
		}
		seen[page.Slug] = struct{}{}
		switch page.Source {
		case "":
			if !strings.HasPrefix(page.Endpoint, "/") {
				return fmt.Errorf("dashboard: menu %q: page %q: endpoint must start with /", key, page.Slug)
			}
		case SourceAudit:
		default:
			return fmt.Errorf("dashboard: menu %q: page %q: unknown source %q", key, page.Slug, page.Source)
		}
	}
	return nil
}

// For returns the menu of an area requirement.
func (c Catalog) For(requirement string) (Menu, bool) {
	menu, ok := c[strings.ToLower(strings.TrimSpace(requirement))]
	return menu, ok
}

// ResolveEndpoint fills {empId} and {userId} from sess.
func ResolveEndpoint(endpoint string, sess session.Session) (string, error) {
	if strings.Contains(endpoint, "{empId}") {
		if !sess.HasEmployee() {
			return "", ErrNoEmployee
		}
		endpoint = strings.ReplaceAll(endpoint, "{empId}", strconv.FormatInt(*sess.EmployeeID, 10))
	}
	return strings.ReplaceAll(endpoint, "{userId}", strconv.FormatInt(sess.UserID, 10)), nil
}
