package httpx

import "golang.org/x/crypto/acme/autocert"

const certCache = "cache/certs"

// newCertManager gets Let's Encrypt certificates on demand,
// only for the domain when it is set.
func newCertManager(domain string) *autocert.Manager {
	m := &autocert.Manager{Prompt: autocert.AcceptTOS, Cache: autocert.DirCache(certCache)}
	if domain != "" {
		m.HostPolicy = autocert.HostWhitelist(domain)
	}
	return m
}
