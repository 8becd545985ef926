package mail

import "strings"

// Auth holds the relay credentials. User is also the sender address.
type Auth struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// Settings are the connection parameters supplied by the operator.
type Settings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Secure   bool   `json:"secure"`
	Auth     Auth   `json:"auth"`
	FromName string `json:"fromName"`
}

// Provider describes the quirks of a known relay.
type Provider struct {
	Name       string
	Host       string
	Port       int
	Secure     bool
	RequireTLS bool
	RateLimit  int // messages per rate window, 0 uses the pool default
}

var gmail = Provider{Name: "gmail", Host: "smtp.gmail.com", Port: 465, Secure: true, RateLimit: 14}

// providers is keyed by the registrable domain of the relay host.
var providers = map[string]Provider{
	"gmail.com":      gmail,
	"googlemail.com": gmail,
	"hostinger.com":  {Name: "hostinger", Port: 465, Secure: true, RateLimit: 20},
	"outlook.com":    {Name: "outlook", Port: 587, RequireTLS: true, RateLimit: 14},
	"hotmail.com":    {Name: "outlook", Port: 587, RequireTLS: true, RateLimit: 14},
	"office365.com":  {Name: "outlook", Port: 587, RequireTLS: true, RateLimit: 14},
	"yahoo.com":      {Name: "yahoo", Port: 587, RateLimit: 14},
}

const defaultPort = 587

// Resolved is Settings with the provider table applied.
type Resolved struct {
	Settings
	Provider   string
	RequireTLS bool
	RateLimit  int
}

// Resolve applies the provider table once. An empty host means gmail. A known provider
// fixes Secure and RequireTLS; an explicit port always wins.
func Resolve(s Settings) Resolved {
	s.Host = strings.ToLower(strings.TrimSpace(s.Host))
	if s.Host == "" {
		s.Host = gmail.Host
	}

	p, ok := lookupProvider(s.Host)
	if !ok {
		if s.Port == 0 {
			s.Port = defaultPort
			if s.Secure {
				s.Port = 465
			}
		}
		return Resolved{Settings: s, Provider: "custom"}
	}

	if p.Host != "" {
		s.Host = p.Host
	}
	if s.Port == 0 {
		s.Port = p.Port
	}
	s.Secure = p.Secure
	return Resolved{Settings: s, Provider: p.Name, RequireTLS: p.RequireTLS, RateLimit: p.RateLimit}
}

func lookupProvider(host string) (Provider, bool) {
	labels := strings.Split(host, ".")
	for i := 0; i < len(labels)-1; i++ {
		if p, ok := providers[strings.Join(labels[i:], ".")]; ok {
			return p, true
		}
	}
	return Provider{}, false
}
