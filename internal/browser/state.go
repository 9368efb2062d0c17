package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-rod/rod/lib/proto"
)

type storageState struct {
	Cookies []stateCookie `json:"cookies"`
}

type stateCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadStorageState reads the cookies of a saved browser session. An empty
// path or a missing file yields no cookies.
func LoadStorageState(path string) ([]*proto.NetworkCookieParam, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read storage state: %w", err)
	}

	var state storageState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode storage state: %w", err)
	}

	cookies := make([]*proto.NetworkCookieParam, 0, len(state.Cookies))
	for _, c := range state.Cookies {
		if c.Name == "" {
			continue
		}
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		switch c.SameSite {
		case "Strict":
			param.SameSite = proto.NetworkCookieSameSiteStrict
		case "Lax":
			param.SameSite = proto.NetworkCookieSameSiteLax
		case "None":
			param.SameSite = proto.NetworkCookieSameSiteNone
		}
		cookies = append(cookies, param)
	}
	return cookies, nil
}
