package archive

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/net/proxy"
)

// ProxyType names how requests reach the archive.
type ProxyType string

const (
	ProxyNone        ProxyType = "none"
	ProxyDefault     ProxyType = "default"
	ProxySOCKS5      ProxyType = "socks5"
	ProxyHTTP        ProxyType = "http"
	ProxyHTTPCaching ProxyType = "httpcaching"
	ProxyFTPCaching  ProxyType = "ftpcaching"
)

// ProxyTypes lists the selectable proxy types.
var ProxyTypes = []ProxyType{ProxyNone, ProxyDefault, ProxySOCKS5, ProxyHTTP, ProxyHTTPCaching, ProxyFTPCaching}

// Proxy describes an outbound proxy.
type Proxy struct {
	Type     ProxyType
	Host     string
	Port     int
	User     string
	Password string
}

func (p Proxy) addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Transport returns an HTTP transport routed through the proxy.
func (p Proxy) Transport() (*http.Transport, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()

	switch p.Type {
	case "", ProxyNone:
		tr.Proxy = nil
	case ProxyDefault:
		tr.Proxy = http.ProxyFromEnvironment
	case ProxyHTTP, ProxyHTTPCaching:
		if p.Host == "" {
			return nil, fmt.Errorf("%s proxy: host is not set", p.Type)
		}
		u := &url.URL{Scheme: "http", Host: p.addr()}
		if p.User != "" {
			u.User = url.UserPassword(p.User, p.Password)
		}
		tr.Proxy = http.ProxyURL(u)
	case ProxySOCKS5:
		if p.Host == "" {
			return nil, fmt.Errorf("socks5 proxy: host is not set")
		}
		var auth *proxy.Auth
		if p.User != "" {
			auth = &proxy.Auth{User: p.User, Password: p.Password}
		}
		dialer, err := proxy.SOCKS5("tcp", p.addr(), auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy: %w", err)
		}
		tr.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	case ProxyFTPCaching:
		return nil, fmt.Errorf("proxy type %q is not supported", p.Type)
	default:
		return nil, fmt.Errorf("unknown proxy type %q", p.Type)
	}
	return tr, nil
}
