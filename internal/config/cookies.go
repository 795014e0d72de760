package config

import (
	"fmt"
	"strings"
)

// deniedCookies are stripped from the configured cookie string before any
// request is issued (spec §6).
var deniedCookies = map[string]bool{
	"event":    true,
	"__cfduid": true,
}

// prepareCookies parses a "k=v; k=v" cookie header, validates that
// ipb_member_id is present (it is mandatory and doubles as the success-file
// id), strips event/__cfduid, and adds nw=1 if absent. It returns the
// member id and the rewritten cookie string.
func prepareCookies(raw string) (memberID string, cookies string, err error) {
	pairs := strings.Split(raw, ";")

	type kv struct{ key, value string }
	var kept []kv
	haveNw := false

	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(pair[:eq])
		value := strings.TrimSpace(pair[eq+1:])

		if deniedCookies[key] {
			continue
		}
		if key == "ipb_member_id" {
			memberID = value
		}
		if key == "nw" {
			haveNw = true
		}
		kept = append(kept, kv{key, value})
	}

	if memberID == "" {
		return "", "", fmt.Errorf("ipb_member_id cookie is required")
	}
	if !haveNw {
		kept = append(kept, kv{"nw", "1"})
	}

	parts := make([]string, 0, len(kept))
	for _, p := range kept {
		parts = append(parts, p.key+"="+p.value)
	}
	return memberID, strings.Join(parts, "; "), nil
}
