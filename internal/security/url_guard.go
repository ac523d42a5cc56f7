package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// URLGuard はフィード取り込みなど、利用者が指定した外部URLへのアクセスを制限する。
// 送信前の静的な検証（Check）と、接続時にIPアドレスを検証するHTTPクライアント（Client）を提供する。
type URLGuard struct {
	schemes []string
	ports   []uint16
	blocked []netip.Prefix
	hosts   map[string]struct{}
}

// NewURLGuard はhttp/httpsの80・443番ポートのみを許可するURLGuardを生成する。
func NewURLGuard() *URLGuard {
	g := &URLGuard{
		schemes: []string{"http", "https"},
		ports:   []uint16{80, 443},
		hosts:   map[string]struct{}{"localhost": {}, "localhost.localdomain": {}},
	}
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // クラウドのメタデータIPを含む
		"100.64.0.0/10",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	} {
		g.blocked = append(g.blocked, netip.MustParsePrefix(cidr))
	}
	return g
}

// Client は接続先のIPアドレスを検証するHTTPクライアントを返す。
// 名前解決後のアドレスもダイヤル時に検証されるため、DNSリバインディングも防げる。
func (g *URLGuard) Client(timeout time.Duration) *http.Client {
	ports := make([]int, len(g.ports))
	for i, p := range g.ports {
		ports[i] = int(p)
	}

	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(ports...).
		Build()

	return safeurl.Client(cfg).Client
}

// Check は名前解決を行わずにURLを検証する。
func (g *URLGuard) Check(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if !g.allowsScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if _, ok := g.hosts[strings.ToLower(host)]; ok {
		return fmt.Errorf("blocked host: %s", host)
	}

	if port := u.Port(); port != "" && !g.allowsPort(port) {
		return fmt.Errorf("disallowed port: %s", port)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		for _, p := range g.blocked {
			if p.Contains(addr) {
				return fmt.Errorf("blocked IP address: %s", addr)
			}
		}
	}

	return nil
}

func (g *URLGuard) allowsScheme(scheme string) bool {
	for _, s := range g.schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

func (g *URLGuard) allowsPort(port string) bool {
	for _, p := range g.ports {
		if fmt.Sprint(p) == port {
			return true
		}
	}
	return false
}
