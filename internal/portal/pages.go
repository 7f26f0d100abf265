package portal

import (
	"fmt"
	"html"
	"net"
	"strings"

	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/scan"
)

const pageStyle = `<style>
.c{text-align:center}div,input{padding:5px;font-size:1em}input{width:95%}
body{text-align:center;font-family:verdana}
button{border:0;border-radius:.3rem;background-color:#1fa3ec;color:#fff;line-height:2.4rem;font-size:1.2rem;width:100%}
.q{float:right;width:64px;text-align:right}
.l:before{content:'\1F512';padding-right:4px}
dt{font-weight:bold}dd{margin:0 0 10px 0}
</style>`

const pageScript = `<script>function c(l){document.getElementById('s').value=l.innerText||l.textContent;document.getElementById('p').focus();}</script>`

// page accumulates one HTML document.
type page struct {
	b strings.Builder
}

func newPage(title, customHead string, refresh *refresh) *page {
	p := &page{}
	p.b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta name="viewport" content="width=device-width, initial-scale=1, user-scalable=no"/>`)
	if refresh != nil {
		fmt.Fprintf(&p.b, `<meta http-equiv="refresh" content="%d; url=%s">`, refresh.seconds, html.EscapeString(refresh.url))
	}
	fmt.Fprintf(&p.b, "<title>%s</title>", html.EscapeString(title))
	p.b.WriteString(pageScript)
	p.b.WriteString(pageStyle)
	p.b.WriteString(customHead)
	p.b.WriteString(`</head><body><div style='text-align:left;display:inline-block;min-width:260px;'>`)
	return p
}

type refresh struct {
	seconds int
	url     string
}

func (p *page) raw(s string) *page {
	p.b.WriteString(s)
	return p
}

func (p *page) heading(s string) *page {
	fmt.Fprintf(&p.b, "<h1>%s</h1>", html.EscapeString(s))
	return p
}

func (p *page) text(tag, s string) *page {
	fmt.Fprintf(&p.b, "<%s>%s</%s>", tag, html.EscapeString(s), tag)
	return p
}

func (p *page) String() string {
	return p.b.String() + "</div></body></html>"
}

// defaultOptions is the landing-page menu.
const defaultOptions = `<form action="/wifi" method="get"><button>Configure WiFi</button></form><br/>` +
	`<form action="/0wifi" method="get"><button>Configure WiFi (No Scan)</button></form><br/>` +
	`<form action="/i" method="get"><button>Info</button></form><br/>` +
	`<form action="/r" method="post"><button>Reset</button></form>`

// networkItem renders one list entry. data-ssid carries the exact name, empty
// for hidden networks.
func networkItem(r scan.Result) string {
	lock := ""
	if r.Encrypted {
		lock = " l"
	}
	name := r.SSID
	if name == "" {
		name = "(hidden)"
	}
	return fmt.Sprintf(`<div class="n" data-ssid="%s"><a href="#p" onclick="c(this)">%s</a>&nbsp;<span class="q%s">%d%%</span></div>`,
		html.EscapeString(r.SSID), html.EscapeString(name), lock, r.Quality)
}

func networkList(results []scan.Result) string {
	var b strings.Builder
	b.WriteString(`<div id="networks">`)
	if len(results) == 0 {
		b.WriteString("No networks found. Refresh to scan again.")
	}
	for _, r := range results {
		b.WriteString(networkItem(r))
	}
	b.WriteString("</div><br/>")
	return b.String()
}

const formStart = `<form method="get" action="wifisave">` +
	`<input id="s" name="s" length=32 placeholder="SSID"><br/>` +
	`<input id="p" name="p" length=64 type="password" placeholder="password"><br/>`

const formEnd = `<br/><button type="submit">save</button></form>`

const scanLink = `<br/><div class="c"><a href="/wifi?scan=1">Scan</a></div>`

func staticFields(cfg radio.IPConfig) string {
	var b strings.Builder
	b.WriteString("<br/>")
	for _, f := range []struct {
		id, label string
		ip        net.IP
	}{
		{"ip", "Static IP", cfg.IP},
		{"gw", "Static Gateway", cfg.Gateway},
		{"sn", "Subnet", cfg.Subnet},
		{"dns1", "DNS 1", cfg.DNS1},
		{"dns2", "DNS 2", cfg.DNS2},
	} {
		value := ""
		if f.ip != nil {
			value = f.ip.String()
		}
		fmt.Fprintf(&b, `<br/><input id="%s" name="%s" maxlength=15 placeholder="%s" value="%s">`,
			f.id, f.id, f.label, html.EscapeString(value))
	}
	return b.String()
}

func definitionList(pairs [][2]string) string {
	var b strings.Builder
	b.WriteString("<dl>")
	for _, kv := range pairs {
		fmt.Fprintf(&b, "<dt>%s</dt><dd>%s</dd>", html.EscapeString(kv[0]), html.EscapeString(kv[1]))
	}
	b.WriteString("</dl>")
	return b.String()
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "-"
	}
	return ip.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
