package portalclient

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Network is one entry of the portal's network list.
type Network struct {
	SSID      string
	Quality   int
	Encrypted bool
	Hidden    bool
}

// DeviceInfo is the diagnostics table from /i, in page order.
type DeviceInfo struct {
	Fields     []InfoField
	Connecting bool
}

// InfoField is one row of the diagnostics table.
type InfoField struct {
	Name  string
	Value string
}

// Get returns the value for name, or "" when absent.
func (d *DeviceInfo) Get(name string) string {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// ParseNetworks extracts the network list from a /wifi page. A page without
// the list container is not a network page and yields a parse error.
func ParseNetworks(page string) ([]Network, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, NewParseError("invalid HTML on /wifi", err)
	}
	list := findElement(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && attr(n, "id") == "networks"
	})
	if list == nil {
		return nil, NewParseError("no network list found on /wifi", nil)
	}

	networks := []Network{}
	for item := list.FirstChild; item != nil; item = item.NextSibling {
		if item.Type != html.ElementNode || !hasAttr(item, "data-ssid") {
			continue
		}
		nw := Network{SSID: attr(item, "data-ssid")}
		nw.Hidden = nw.SSID == ""

		badge := findElement(item, func(n *html.Node) bool {
			return n.DataAtom == atom.Span && hasClass(n, "q")
		})
		if badge == nil {
			return nil, NewParseError("network entry without quality", nil)
		}
		q, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(textContent(badge)), "%"))
		if err != nil {
			return nil, NewParseError("bad quality for "+nw.SSID, err)
		}
		nw.Quality = q
		nw.Encrypted = hasClass(badge, "l")
		networks = append(networks, nw)
	}
	return networks, nil
}

// ParseInfo extracts the diagnostics table from an /i page.
func ParseInfo(page string) (*DeviceInfo, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, NewParseError("invalid HTML on /i", err)
	}

	info := &DeviceInfo{}
	info.Connecting = findElement(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.P && strings.TrimSpace(textContent(n)) == "Trying to connect"
	}) != nil

	dl := findElement(doc, func(n *html.Node) bool { return n.DataAtom == atom.Dl })
	if dl == nil {
		return info, nil
	}
	var name *string
	for c := dl.FirstChild; c != nil; c = c.NextSibling {
		switch c.DataAtom {
		case atom.Dt:
			s := strings.TrimSpace(textContent(c))
			name = &s
		case atom.Dd:
			if name == nil {
				continue
			}
			info.Fields = append(info.Fields, InfoField{Name: *name, Value: strings.TrimSpace(textContent(c))})
			name = nil
		}
	}
	return info, nil
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
