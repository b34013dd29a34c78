package client

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// sharedJar is a cookie jar that can be emptied in place. The realtime
// dialer holds the same value, so replacing the jar would leave it stale.
type sharedJar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

func newSharedJar() (*sharedJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &sharedJar{jar: jar}, nil
}

func (j *sharedJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	j.jar.SetCookies(u, cookies)
}

func (j *sharedJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.jar.Cookies(u)
}

func (j *sharedJar) reset() {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}
