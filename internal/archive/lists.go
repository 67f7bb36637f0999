package archive

import (
	"context"
	"fmt"
	"strings"
)

// ListKind selects one of the archive's lookup lists.
type ListKind int

const (
	ListInstances ListKind = iota
	ListProjects
	ListSites
	ListEquipment
)

func (k ListKind) String() string {
	switch k {
	case ListInstances:
		return "instances"
	case ListProjects:
		return "projects"
	case ListSites:
		return "sites"
	case ListEquipment:
		return "equipment"
	default:
		return fmt.Sprintf("ListKind(%d)", int(k))
	}
}

func (k ListKind) action() string {
	switch k {
	case ListProjects:
		return ActionProjectList
	case ListSites:
		return ActionSiteList
	case ListEquipment:
		return ActionEquipmentList
	default:
		return ActionInstanceList
	}
}

// scoped reports whether the list is filtered by instance.
func (k ListKind) scoped() bool {
	return k == ListProjects || k == ListSites
}

// Placeholder is the text shown when a list comes back empty.
func Placeholder(k ListKind) string {
	switch k {
	case ListProjects:
		return "No projects within this instance"
	case ListSites:
		return "No sites available"
	case ListEquipment:
		return "No equipment available"
	default:
		return "No instances available"
	}
}

// ListItem is one selectable entry of a lookup list.
type ListItem struct {
	ID    string
	Label string
}

// Display renders the item as "id - label", or just the id.
func (i ListItem) Display() string {
	if i.Label == "" {
		return i.ID
	}
	return i.ID + " - " + i.Label
}

// ParseList parses "id|label,id|label" or bare ids. Empty entries are skipped.
func ParseList(body string) []ListItem {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var items []ListItem
	for _, entry := range strings.Split(body, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, label, _ := strings.Cut(entry, "|")
		items = append(items, ListItem{ID: strings.TrimSpace(id), Label: strings.TrimSpace(label)})
	}
	return items
}

// List fetches a lookup list. instanceID is sent only for project and site
// lists.
func (c *Client) List(ctx context.Context, kind ListKind, instanceID string) ([]ListItem, error) {
	fields := append(c.credentials(), field{"action", kind.action()})
	if kind.scoped() {
		fields = append(fields, field{"instance", instanceID})
	}

	body, err := c.postForm(ctx, kind.action(), fields)
	if err != nil {
		return nil, err
	}
	items := ParseList(body)
	c.log.Info().Stringer("list", kind).Int("items", len(items)).Msg("Loaded list")
	return items, nil
}

// Instances returns the archive's instances.
func (c *Client) Instances(ctx context.Context) ([]ListItem, error) {
	return c.List(ctx, ListInstances, "")
}

// Projects returns the projects of an instance.
func (c *Client) Projects(ctx context.Context, instanceID string) ([]ListItem, error) {
	return c.List(ctx, ListProjects, instanceID)
}

// Sites returns the sites of an instance.
func (c *Client) Sites(ctx context.Context, instanceID string) ([]ListItem, error) {
	return c.List(ctx, ListSites, instanceID)
}

// Equipment returns the registered equipment.
func (c *Client) Equipment(ctx context.Context) ([]ListItem, error) {
	return c.List(ctx, ListEquipment, "")
}
